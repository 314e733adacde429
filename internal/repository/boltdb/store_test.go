package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrental-backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Seed(context.Background(), &Fleet{
		Models:   []domain.VehicleModel{{ID: "M1", Name: "VF 8", HourlyRateCents: 12000, BaseCostCents: 500000}},
		Stations: []domain.Station{{ID: "S1", Name: "Central"}, {ID: "S2", Name: "Airport"}},
		Vehicles: []domain.VehicleInstance{
			{ID: "V1", ModelID: "M1", StationID: "S1"},
			{ID: "V2", ModelID: "M1", StationID: "S2"},
			{ID: "V3", ModelID: "M1", StationID: "S2", Status: domain.VehicleStatusMaintenance},
		},
		Customers: []domain.Customer{{ID: "C1", Email: "c1@example.com", Name: "An"}},
	}))
	return s
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("Defaults status to available", func(t *testing.T) {
		v, err := s.Vehicles().GetByID(ctx, "V1")
		require.NoError(t, err)
		assert.Equal(t, domain.VehicleStatusAvailable, v.Status)
	})

	t.Run("Reseeding keeps vehicle status", func(t *testing.T) {
		ok, err := s.Vehicles().CompareAndSetStatus(ctx, "V1", domain.VehicleStatusAvailable, domain.VehicleStatusReserved)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.Seed(ctx, &Fleet{Vehicles: []domain.VehicleInstance{{ID: "V1", ModelID: "M1", StationID: "S1"}}}))
		v, err := s.Vehicles().GetByID(ctx, "V1")
		require.NoError(t, err)
		assert.Equal(t, domain.VehicleStatusReserved, v.Status)
	})

	t.Run("Load fleet file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fleet.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
models:
  - id: M9
    name: VF 9
    hourly_rate_cents: 15000
stations:
  - id: S9
    time_zone: Asia/Ho_Chi_Minh
    open_minute: 420
    close_minute: 1260
vehicles:
  - id: V9
    model_id: M9
    station_id: S9
`), 0600))
		fleet, err := LoadFleet(path)
		require.NoError(t, err)
		require.Len(t, fleet.Stations, 1)
		assert.Equal(t, 1260, fleet.Stations[0].CloseMinute)
		assert.Equal(t, int64(15000), fleet.Models[0].HourlyRateCents)
	})
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.Catalog().GetModel(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), m.HourlyRateCents)

	_, err = s.Catalog().GetStation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stations, err := s.Catalog().ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "S1", stations[0].ID)

	count, err := s.Vehicles().CountByModel(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	available, err := s.Vehicles().ListByModel(ctx, "M1", "S2", domain.VehicleStatusAvailable)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "V2", available[0].ID)
}

func TestVehicleCompareAndSetStatusConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Vehicles().CompareAndSetStatus(ctx, "V2", domain.VehicleStatusAvailable, domain.VehicleStatusReserved)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	v, err := s.Vehicles().GetByID(ctx, "V2")
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusReserved, v.Status)
}

func TestReservationCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Reservations()

	expires := time.Now().UTC().Add(-time.Minute)
	res := &domain.Reservation{ID: "R1", CustomerID: "C1", ModelID: "M1", StationID: "S1", State: domain.ReservationStateDraft}
	require.NoError(t, repo.Create(ctx, res))
	assert.Error(t, repo.Create(ctx, res))

	next := res.Clone()
	next.State = domain.ReservationStatePendingPayment
	next.HoldExpiresAt = &expires

	ok, err := repo.CompareAndSwap(ctx, next, domain.ReservationStateDraft)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := res.Clone()
	stale.State = domain.ReservationStateCancelled
	ok, err = repo.CompareAndSwap(ctx, stale, domain.ReservationStateDraft)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatePendingPayment, stored.State)
	require.NotNil(t, stored.HoldExpiresAt)
	assert.True(t, expires.Equal(*stored.HoldExpiresAt))

	expired, err := repo.ListExpiredHolds(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "R1", expired[0].ID)

	pending, err := repo.ListByState(ctx, domain.ReservationStatePendingPayment, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestContractCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Reservations().Create(ctx, &domain.Reservation{ID: "R1", State: domain.ReservationStateConfirmed}))
	missing, err := s.Reservations().ListConfirmedWithoutContract(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)

	var created int32
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, ok, err := s.Contracts().CreateIfAbsent(ctx, &domain.Contract{
				ID:             "K" + string(rune('a'+i)),
				ReservationID:  "R1",
				IdempotencyKey: "key-1",
			})
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&created, 1)
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	byKey, err := s.Contracts().GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, ids[0], byKey.ID)

	missing, err = s.Reservations().ListConfirmedWithoutContract(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Notifications().Create(ctx, &domain.Notification{
			CustomerID: "C1",
			Title:      "t",
			CreatedOn:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Notifications().Create(ctx, &domain.Notification{CustomerID: "C2", Title: "other"}))

	notes, total, err := s.Notifications().ListByCustomer(ctx, "C1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), total)
	require.Len(t, notes, 2)
	assert.True(t, notes[0].CreatedOn.After(notes[1].CreatedOn))

	notes, _, err = s.Notifications().ListByCustomer(ctx, "C1", 2, 5)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
