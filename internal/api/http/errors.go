package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/security"
)

type errorResponse struct {
	Error       string           `json:"error"`
	Code        string           `json:"code"`
	Field       string           `json:"field,omitempty"`
	Suggestions []domain.Station `json:"suggestions,omitempty"`
}

// statusFor maps a service error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	var nva *domain.NoVehicleAvailableError
	switch {
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED"
	case errors.As(err, &nva):
		return http.StatusConflict, "NO_VEHICLE_AVAILABLE"
	case errors.Is(err, domain.ErrHoldExpired):
		return http.StatusGone, "HOLD_EXPIRED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrReservationCancelled):
		return http.StatusConflict, "RESERVATION_CANCELLED"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrVehicleStatusMismatch):
		return http.StatusConflict, "VEHICLE_STATUS_MISMATCH"
	case errors.Is(err, domain.ErrUnverifiedPaymentSignal):
		return http.StatusPaymentRequired, "PAYMENT_UNVERIFIED"
	case errors.Is(err, domain.ErrVerificationUnavailable):
		return http.StatusServiceUnavailable, "PAYMENT_VERIFICATION_UNAVAILABLE"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrExpiredToken), errors.Is(err, security.ErrWrongTokenType):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	var nva *domain.NoVehicleAvailableError
	if errors.As(err, &nva) {
		resp.Suggestions = nva.Suggestions
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}
