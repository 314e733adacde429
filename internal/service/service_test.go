package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/payment"
	"evrental-backend/internal/repository/boltdb"
	"evrental-backend/internal/storage"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ReservationEvent
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, event domain.ReservationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store        *boltdb.Store
	gateway      *payment.Sandbox
	docs         *storage.LocalDocumentStore
	clock        *fakeClock
	sink         *recordingSink
	availability *AvailabilityIndex
	issuer       ContractIssuer
	svc          ReservationService
	listener     PaymentListener
}

// testFleet has one vehicle at the daytime station S1 (07:00-22:00 UTC) and
// two at the always-open station S2. Model M2 has no units.
func testFleet() *boltdb.Fleet {
	return &boltdb.Fleet{
		Models: []domain.VehicleModel{
			{ID: "M1", Manufacturer: "VinFast", Name: "VF 8", HourlyRateCents: 12000, BaseCostCents: 500000},
			{ID: "M2", Manufacturer: "VinFast", Name: "VF 9", HourlyRateCents: 15000, BaseCostCents: 700000},
		},
		Stations: []domain.Station{
			{ID: "S1", Name: "District 1", TimeZone: "UTC", OpenMinute: 7 * 60, CloseMinute: 22 * 60},
			{ID: "S2", Name: "Airport", TimeZone: "UTC"},
		},
		Vehicles: []domain.VehicleInstance{
			{ID: "V1", ModelID: "M1", StationID: "S1", Plate: "51K-001"},
			{ID: "V2", ModelID: "M1", StationID: "S2", Plate: "51K-002"},
			{ID: "V3", ModelID: "M1", StationID: "S2", Plate: "51K-003"},
		},
		Customers: []domain.Customer{
			{ID: "C1", Email: "an@example.com", Name: "An Nguyen", LicenseNo: "B2-123"},
			{ID: "C2", Email: "binh@example.com", Name: "Binh Tran"},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := boltdb.Open(filepath.Join(t.TempDir(), "evrental.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(ctx, testFleet()))

	docs, err := storage.NewLocalDocumentStore("http://localhost:8080", filepath.Join(t.TempDir(), "contracts"))
	require.NoError(t, err)

	h := &harness{
		store:   store,
		gateway: payment.NewSandbox("http://localhost:8080/sandbox/checkout", false),
		docs:    docs,
		clock:   &fakeClock{now: testStart},
		sink:    &recordingSink{},
	}
	policy := DefaultReservationPolicy()
	policy.Now = h.clock.Now

	h.availability = NewAvailabilityIndex(store.Vehicles(), store.Catalog())
	h.issuer = NewContractIssuer(store, docs, h.clock.Now)
	notifier := NewNotifier(h.sink, NewNotificationSink(store.Notifications()))
	h.svc = NewReservationService(store, h.availability, h.gateway, h.issuer, notifier, policy)
	h.listener = NewPaymentListener(store.Reservations(), h.svc, h.gateway,
		payment.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		100, h.clock.Now)
	return h
}

// preview books M1 at station for tomorrow 09:00-13:00.
func (h *harness) preview(t *testing.T, customerID, stationID string) *domain.Reservation {
	t.Helper()
	pickup := testStart.Add(25 * time.Hour)
	r, err := h.svc.RequestPreview(context.Background(), PreviewRequest{
		CustomerID: customerID,
		ModelID:    "M1",
		StationID:  stationID,
		PickupAt:   pickup,
		ReturnAt:   pickup.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	return r
}

func (h *harness) hold(t *testing.T, customerID, stationID string) *domain.Reservation {
	t.Helper()
	r := h.preview(t, customerID, stationID)
	held, err := h.svc.RequestHold(context.Background(), customerID, r.ID)
	require.NoError(t, err)
	return held
}

func (h *harness) vehicleStatus(t *testing.T, id string) domain.VehicleStatus {
	t.Helper()
	v, err := h.store.Vehicles().GetByID(context.Background(), id)
	require.NoError(t, err)
	return v.Status
}

func (h *harness) state(t *testing.T, id string) domain.ReservationState {
	t.Helper()
	r, err := h.store.Reservations().GetByID(context.Background(), id)
	require.NoError(t, err)
	return r.State
}
