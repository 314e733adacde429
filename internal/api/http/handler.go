package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
	"evrental-backend/internal/service"
	"evrental-backend/internal/storage"
)

type Handler struct {
	reservations  service.ReservationService
	payments      service.PaymentListener
	notifications service.NotificationService
	contracts     repository.ContractRepository
	docs          storage.DocumentStore
	hub           *Hub
}

func NewHandler(
	reservations service.ReservationService,
	payments service.PaymentListener,
	notifications service.NotificationService,
	contracts repository.ContractRepository,
	docs storage.DocumentStore,
	hub *Hub,
) *Handler {
	return &Handler{
		reservations:  reservations,
		payments:      payments,
		notifications: notifications,
		contracts:     contracts,
		docs:          docs,
		hub:           hub,
	}
}

// NewRouter registers every route behind request logging and auth.
func NewRouter(h *Handler, auth *AuthMiddleware) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware, auth.Handler)

	router.HandleFunc("/healthz", h.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/reservations/preview", h.Preview).Methods("POST")
	api.HandleFunc("/reservations/{id}/hold", h.Hold).Methods("POST")
	api.HandleFunc("/reservations/{id}/cancel", h.Cancel).Methods("POST")
	api.HandleFunc("/reservations/{id}/start", h.Start).Methods("POST")
	api.HandleFunc("/reservations/{id}/complete", h.Complete).Methods("POST")
	api.HandleFunc("/reservations/{id}", h.GetReservation).Methods("GET")
	api.HandleFunc("/payments/callback", h.PaymentCallback).Methods("GET")
	api.HandleFunc("/contracts/{key}/document", h.ContractDocument).Methods("GET")
	api.HandleFunc("/notifications", h.ListNotifications).Methods("GET")

	router.HandleFunc("/ws/reservations/{id}", h.WatchReservation).Methods("GET")
	return router
}

type previewRequest struct {
	ModelID   string    `json:"model_id"`
	StationID string    `json:"station_id"`
	PickupAt  time.Time `json:"pickup_at"`
	ReturnAt  time.Time `json:"return_at"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type reservationResponse struct {
	Reservation *domain.Reservation `json:"reservation"`
	Contract    *domain.Contract    `json:"contract,omitempty"`
}

// callbackResponse is served on an unauthenticated route. Details are read
// through the owner's GET /reservations/{id}.
type callbackResponse struct {
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id"`
	Message       string `json:"message,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "BAD_REQUEST"})
		return
	}
	if req.ModelID == "" || req.StationID == "" || req.PickupAt.IsZero() || req.ReturnAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "model_id, station_id, pickup_at and return_at are required", Code: "BAD_REQUEST"})
		return
	}

	claims := claimsFromContext(r.Context())
	res, err := h.reservations.RequestPreview(r.Context(), service.PreviewRequest{
		CustomerID: claims.CustomerID,
		ModelID:    req.ModelID,
		StationID:  req.StationID,
		PickupAt:   req.PickupAt,
		ReturnAt:   req.ReturnAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservationResponse{Reservation: res})
}

func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.RequestHold(r.Context(), customerScope(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Reservation: res})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "BAD_REQUEST"})
			return
		}
	}
	res, err := h.reservations.Cancel(r.Context(), customerScope(r), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Reservation: res})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.StartRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Reservation: res})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.CompleteRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Reservation: res})
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, contract, err := h.reservations.GetReservation(r.Context(), customerScope(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Reservation: res, Contract: contract})
}

// PaymentCallback is where the processor redirects the customer after
// checkout. The query string is only a hint; the listener re-verifies it.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reservationID := q.Get("reservation_id")
	if reservationID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reservation_id is required", Code: "BAD_REQUEST"})
		return
	}

	outcome, err := h.payments.OnPaymentSignal(r.Context(), domain.PaymentSignal{
		ReservationID: reservationID,
		TransactionID: q.Get("transaction_id"),
		Channel:       domain.PaymentChannelCallback,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, callbackResponse{Status: "confirmed", ReservationID: outcome.Reservation.ID})
	case errors.Is(err, domain.ErrVerificationUnavailable):
		// The push channel or reconciliation finishes the job; the page waits
		// on the websocket.
		logger.Warn("Payment callback pending", "reservationID", reservationID, "error", err)
		writeJSON(w, http.StatusAccepted, callbackResponse{Status: "pending", ReservationID: reservationID, Message: "payment is being verified"})
	case errors.Is(err, domain.ErrUnverifiedPaymentSignal):
		writeJSON(w, http.StatusAccepted, callbackResponse{Status: "pending", ReservationID: reservationID, Message: "payment not yet settled"})
	default:
		writeError(w, err)
	}
}

// ContractDocument streams a rendered contract to its owner.
func (h *Handler) ContractDocument(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	contract, err := h.contracts.GetByIdempotencyKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, _, err := h.reservations.GetReservation(r.Context(), customerScope(r), contract.ReservationID); err != nil {
		writeError(w, err)
		return
	}

	file, err := h.docs.ReadFile(r.Context(), contract.DocumentKey)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			writeError(w, domain.ErrNotFound)
			return
		}
		writeError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Content-Disposition", `inline; filename="contract-`+contract.ID+`.html"`)
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Failed to stream contract", "contractID", contract.ID, "error", err)
	}
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	claims := claimsFromContext(r.Context())

	notes, total, err := h.notifications.GetNotifications(r.Context(), claims.CustomerID, int32(page), int32(pageSize))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "total": total})
}

// WatchReservation upgrades to a websocket that receives every later event of
// the reservation.
func (h *Handler) WatchReservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	scope := customerScope(r)
	if _, _, err := h.reservations.GetReservation(r.Context(), scope, id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "reservationID", id, "error", err)
		return
	}
	h.hub.serve(id, conn, func() (WSMessage, error) {
		res, contract, err := h.reservations.GetReservation(r.Context(), scope, id)
		if err != nil {
			return WSMessage{}, err
		}
		return WSMessage{Type: "reservation.snapshot", Reservation: res, Contract: contract}, nil
	})
}
