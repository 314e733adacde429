package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/security"
	"evrental-backend/internal/service"
	"evrental-backend/internal/storage"
)

type apiHarness struct {
	reservations  *MockReservationService
	payments      *MockPaymentListener
	notifications *MockNotificationService
	contracts     *MockContractRepo
	docs          *storage.LocalDocumentStore
	hub           *Hub
	tokens        security.TokenManager
	router        http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	docs, err := storage.NewLocalDocumentStore("http://localhost:8080", t.TempDir())
	require.NoError(t, err)

	h := &apiHarness{
		reservations:  new(MockReservationService),
		payments:      new(MockPaymentListener),
		notifications: new(MockNotificationService),
		contracts:     new(MockContractRepo),
		docs:          docs,
		hub:           NewHub(),
		tokens:        security.NewTokenManager("test-secret", time.Hour),
	}
	handler := NewHandler(h.reservations, h.payments, h.notifications, h.contracts, h.docs, h.hub)
	h.router = NewRouter(handler, NewAuthMiddleware(h.tokens))
	return h
}

func (h *apiHarness) token(t *testing.T, customerID string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{security.RoleCustomer}
	}
	tok, err := h.tokens.GenerateAccessToken(customerID, customerID+"@example.com", roles)
	require.NoError(t, err)
	return tok
}

func (h *apiHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func sampleReservation(state domain.ReservationState) *domain.Reservation {
	return &domain.Reservation{
		ID:             "R1",
		CustomerID:     "C1",
		ModelID:        "M1",
		StationID:      "S1",
		State:          state,
		IdempotencyKey: "key-r1",
		Cost:           domain.CostBreakdown{BilledUnits: 4, RentalCostCents: 48000, DepositCents: 50000, ServiceFeeCents: 2400, TotalCents: 100400},
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "GET", "/api/v1/reservations/R1", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, rec).Code)
		h.reservations.AssertNotCalled(t, "GetReservation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("garbage token", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "GET", "/api/v1/reservations/R1", "not-a-jwt", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("customer on staff route", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "POST", "/api/v1/reservations/R1/start", h.token(t, "C1"), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		h.reservations.AssertNotCalled(t, "StartRental", mock.Anything, mock.Anything)
	})

	t.Run("staff on staff route", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("StartRental", mock.Anything, "R1").Return(sampleReservation(domain.ReservationStateInProgress), nil)

		rec := h.do(t, "POST", "/api/v1/reservations/R1/start", h.token(t, "desk-1", security.RoleStaff), "")
		assert.Equal(t, http.StatusOK, rec.Code)
		h.reservations.AssertExpectations(t)
	})

	t.Run("health is public", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "GET", "/healthz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPreview(t *testing.T) {
	body := `{"model_id":"M1","station_id":"S1","pickup_at":"2026-03-03T09:00:00Z","return_at":"2026-03-03T13:00:00Z"}`

	t.Run("created", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("RequestPreview", mock.Anything, mock.MatchedBy(func(req service.PreviewRequest) bool {
			return req.CustomerID == "C1" && req.ModelID == "M1" && req.StationID == "S1" &&
				req.PickupAt.Equal(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
		})).Return(sampleReservation(domain.ReservationStateDraft), nil)

		rec := h.do(t, "POST", "/api/v1/reservations/preview", h.token(t, "C1"), body)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp reservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.ReservationStateDraft, resp.Reservation.State)
		assert.Equal(t, int64(100400), resp.Reservation.Cost.TotalCents)
		h.reservations.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "POST", "/api/v1/reservations/preview", h.token(t, "C1"), `{"model_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "POST", "/api/v1/reservations/preview", h.token(t, "C1"), `{"model_id":"M1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		h.reservations.AssertNotCalled(t, "RequestPreview", mock.Anything, mock.Anything)
	})

	t.Run("validation failure", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("RequestPreview", mock.Anything, mock.Anything).
			Return(nil, domain.NewValidationError("pickup_at", domain.ErrOutsideOperatingHours))

		rec := h.do(t, "POST", "/api/v1/reservations/preview", h.token(t, "C1"), body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_FAILED", resp.Code)
		assert.Equal(t, "pickup_at", resp.Field)
	})
}

func TestHold(t *testing.T) {
	t.Run("no vehicle carries suggestions", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("RequestHold", mock.Anything, "C1", "R1").Return(nil, &domain.NoVehicleAvailableError{
			ModelID:     "M1",
			StationID:   "S1",
			Suggestions: []domain.Station{{ID: "S2", Name: "District 7"}},
		})

		rec := h.do(t, "POST", "/api/v1/reservations/R1/hold", h.token(t, "C1"), "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "NO_VEHICLE_AVAILABLE", resp.Code)
		require.Len(t, resp.Suggestions, 1)
		assert.Equal(t, "S2", resp.Suggestions[0].ID)
	})

	t.Run("status mapping", func(t *testing.T) {
		cases := []struct {
			name   string
			err    error
			status int
		}{
			{"expired", domain.ErrHoldExpired, http.StatusGone},
			{"not found", domain.ErrNotFound, http.StatusNotFound},
			{"other customer", domain.ErrForbidden, http.StatusForbidden},
			{"cancelled", domain.ErrReservationCancelled, http.StatusConflict},
			{"wrong state", fmt.Errorf("hold from CONFIRMED: %w", domain.ErrInvalidTransition), http.StatusConflict},
			{"vehicle out of step", fmt.Errorf("vehicle V1 is MAINTENANCE: %w", domain.ErrVehicleStatusMismatch), http.StatusConflict},
			{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				h := newAPIHarness(t)
				h.reservations.On("RequestHold", mock.Anything, "C1", "R1").Return(nil, tc.err)

				rec := h.do(t, "POST", "/api/v1/reservations/R1/hold", h.token(t, "C1"), "")
				assert.Equal(t, tc.status, rec.Code)
			})
		}
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("RequestHold", mock.Anything, "C1", "R1").Return(nil, errors.New("pq: connection refused"))

		rec := h.do(t, "POST", "/api/v1/reservations/R1/hold", h.token(t, "C1"), "")
		assert.Equal(t, "internal error", decodeError(t, rec).Error)
	})
}

func TestCancelAndGet(t *testing.T) {
	t.Run("cancel with reason", func(t *testing.T) {
		h := newAPIHarness(t)
		res := sampleReservation(domain.ReservationStateCancelled)
		res.CancelReason = "plans changed"
		h.reservations.On("Cancel", mock.Anything, "C1", "R1", "plans changed").Return(res, nil)

		rec := h.do(t, "POST", "/api/v1/reservations/R1/cancel", h.token(t, "C1"), `{"reason":"plans changed"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		h.reservations.AssertExpectations(t)
	})

	t.Run("cancel without body", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("Cancel", mock.Anything, "C1", "R1", "").Return(sampleReservation(domain.ReservationStateCancelled), nil)

		rec := h.do(t, "POST", "/api/v1/reservations/R1/cancel", h.token(t, "C1"), "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("staff read is unscoped", func(t *testing.T) {
		h := newAPIHarness(t)
		h.reservations.On("GetReservation", mock.Anything, "", "R1").
			Return(sampleReservation(domain.ReservationStateConfirmed), &domain.Contract{ID: "K1", ReservationID: "R1"}, nil)

		rec := h.do(t, "GET", "/api/v1/reservations/R1", h.token(t, "desk-1", security.RoleStaff), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp reservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Contract)
		assert.Equal(t, "K1", resp.Contract.ID)
	})
}

func TestPaymentCallback(t *testing.T) {
	signal := domain.PaymentSignal{ReservationID: "R1", TransactionID: "T1", Channel: domain.PaymentChannelCallback}
	path := "/api/v1/payments/callback?reservation_id=R1&transaction_id=T1"

	t.Run("confirmed", func(t *testing.T) {
		h := newAPIHarness(t)
		h.payments.On("OnPaymentSignal", mock.Anything, signal).Return(&domain.ConfirmationOutcome{
			Reservation: sampleReservation(domain.ReservationStateConfirmed),
			Contract:    &domain.Contract{ID: "K1", ReservationID: "R1"},
		}, nil)

		rec := h.do(t, "GET", path, "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp callbackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "confirmed", resp.Status)
		assert.Equal(t, "R1", resp.ReservationID)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Equal(t, map[string]any{"status": "confirmed", "reservation_id": "R1"}, raw)
	})

	t.Run("pending", func(t *testing.T) {
		for _, err := range []error{domain.ErrVerificationUnavailable, fmt.Errorf("%w: not paid", domain.ErrUnverifiedPaymentSignal)} {
			h := newAPIHarness(t)
			h.payments.On("OnPaymentSignal", mock.Anything, signal).Return(nil, err)

			rec := h.do(t, "GET", path, "", "")
			assert.Equal(t, http.StatusAccepted, rec.Code)

			var resp callbackResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "pending", resp.Status)
		}
	})

	t.Run("expired", func(t *testing.T) {
		h := newAPIHarness(t)
		h.payments.On("OnPaymentSignal", mock.Anything, signal).Return(nil, domain.ErrHoldExpired)

		rec := h.do(t, "GET", path, "", "")
		assert.Equal(t, http.StatusGone, rec.Code)
	})

	t.Run("missing reservation", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(t, "GET", "/api/v1/payments/callback", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		h.payments.AssertNotCalled(t, "OnPaymentSignal", mock.Anything, mock.Anything)
	})
}

func TestContractDocument(t *testing.T) {
	contract := &domain.Contract{ID: "K1", ReservationID: "R1", IdempotencyKey: "key-r1", DocumentKey: "key-r1"}
	path := "/api/v1/contracts/key-r1/document"

	t.Run("owner downloads", func(t *testing.T) {
		h := newAPIHarness(t)
		require.NoError(t, h.docs.SaveFile(context.Background(), "key-r1", strings.NewReader("<h1>Rental contract K1</h1>")))
		h.contracts.On("GetByIdempotencyKey", mock.Anything, "key-r1").Return(contract, nil)
		h.reservations.On("GetReservation", mock.Anything, "C1", "R1").Return(sampleReservation(domain.ReservationStateConfirmed), contract, nil)

		rec := h.do(t, "GET", path, h.token(t, "C1"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "Rental contract K1")
	})

	t.Run("other customer", func(t *testing.T) {
		h := newAPIHarness(t)
		h.contracts.On("GetByIdempotencyKey", mock.Anything, "key-r1").Return(contract, nil)
		h.reservations.On("GetReservation", mock.Anything, "C2", "R1").Return(nil, nil, domain.ErrForbidden)

		rec := h.do(t, "GET", path, h.token(t, "C2"), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		h := newAPIHarness(t)
		h.contracts.On("GetByIdempotencyKey", mock.Anything, "key-r1").Return(nil, domain.ErrNotFound)

		rec := h.do(t, "GET", path, h.token(t, "C1"), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("document missing from storage", func(t *testing.T) {
		h := newAPIHarness(t)
		h.contracts.On("GetByIdempotencyKey", mock.Anything, "key-r1").Return(contract, nil)
		h.reservations.On("GetReservation", mock.Anything, "C1", "R1").Return(sampleReservation(domain.ReservationStateConfirmed), contract, nil)

		rec := h.do(t, "GET", path, h.token(t, "C1"), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListNotifications(t *testing.T) {
	h := newAPIHarness(t)
	h.notifications.On("GetNotifications", mock.Anything, "C1", int32(2), int32(5)).
		Return([]domain.Notification{{ID: "N1", CustomerID: "C1", Title: "Reservation confirmed"}}, int32(6), nil)

	rec := h.do(t, "GET", "/api/v1/notifications?page=2&page_size=5", h.token(t, "C1"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
		Total         int32                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int32(6), resp.Total)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "N1", resp.Notifications[0].ID)
}

func TestWatchReservation(t *testing.T) {
	h := newAPIHarness(t)
	held := sampleReservation(domain.ReservationStatePendingPayment)
	h.reservations.On("GetReservation", mock.Anything, "C1", "R1").Return(held, nil, nil)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reservations/R1?access_token=" + h.token(t, "C1")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot WSMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, domain.EventType("reservation.snapshot"), snapshot.Type)
	assert.Equal(t, domain.ReservationStatePendingPayment, snapshot.Reservation.State)
	assert.Equal(t, 1, h.hub.subscribers("R1"))

	confirmed := sampleReservation(domain.ReservationStateConfirmed)
	require.NoError(t, h.hub.Publish(context.Background(), domain.ReservationEvent{
		Type:        domain.EventReservationConfirmed,
		Reservation: confirmed,
		Contract:    &domain.Contract{ID: "K1", ReservationID: "R1"},
	}))

	var pushed WSMessage
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, domain.EventReservationConfirmed, pushed.Type)
	assert.Equal(t, domain.ReservationStateConfirmed, pushed.Reservation.State)
	assert.Equal(t, "K1", pushed.Contract.ID)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	assert.Eventually(t, func() bool { return h.hub.subscribers("R1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchReservationSnapshotFollowsSubscribe(t *testing.T) {
	h := newAPIHarness(t)
	// The reservation is confirmed between the ownership check and the
	// subscription.
	h.reservations.On("GetReservation", mock.Anything, "C1", "R1").
		Return(sampleReservation(domain.ReservationStatePendingPayment), nil, nil).Once()
	h.reservations.On("GetReservation", mock.Anything, "C1", "R1").
		Return(sampleReservation(domain.ReservationStateConfirmed), &domain.Contract{ID: "K1", ReservationID: "R1"}, nil)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reservations/R1?access_token=" + h.token(t, "C1")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot WSMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, domain.ReservationStateConfirmed, snapshot.Reservation.State)
	require.NotNil(t, snapshot.Contract)
	assert.Equal(t, "K1", snapshot.Contract.ID)
	h.reservations.AssertNumberOfCalls(t, "GetReservation", 2)
}

func TestWatchReservationRequiresOwnership(t *testing.T) {
	h := newAPIHarness(t)
	h.reservations.On("GetReservation", mock.Anything, "C2", "R1").Return(nil, nil, domain.ErrForbidden)

	rec := h.do(t, "GET", "/ws/reservations/R1?access_token="+h.token(t, "C2"), "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	err := hub.Publish(context.Background(), domain.ReservationEvent{
		Type:        domain.EventReservationExpired,
		Reservation: sampleReservation(domain.ReservationStateExpired),
	})
	assert.NoError(t, err)
	assert.Equal(t, "websocket", hub.Name())
}
