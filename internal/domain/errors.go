package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutsideOperatingHours = errors.New("outside station operating hours")
	ErrDurationTooShort      = errors.New("rental duration below minimum")
	ErrPricingInvalid        = errors.New("invalid pricing input")
	ErrPickupInPast          = errors.New("pickup time is in the past")
	ErrInvalidTimeWindow     = errors.New("return must be after pickup")

	ErrHoldExpired             = errors.New("reservation hold expired")
	ErrUnverifiedPaymentSignal = errors.New("payment signal could not be verified")
	ErrVerificationUnavailable = errors.New("payment verification unavailable")
	ErrReservationCancelled    = errors.New("reservation cancelled")
	ErrInvalidTransition       = errors.New("invalid reservation state transition")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("reservation belongs to another customer")
	ErrVehicleStatusMismatch   = errors.New("vehicle not in expected status")
)

// ValidationError is returned for any rejected request input. Validation
// failures never change persisted state.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NoVehicleAvailableError is returned when no instance of the model could be
// claimed at the requested station.
type NoVehicleAvailableError struct {
	ModelID     string
	StationID   string
	Suggestions []Station
}

func (e *NoVehicleAvailableError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no vehicle of model %s available at station %s", e.ModelID, e.StationID)
	}
	ids := make([]string, 0, len(e.Suggestions))
	for _, s := range e.Suggestions {
		ids = append(ids, s.ID)
	}
	return fmt.Sprintf("no vehicle of model %s available at station %s (try %s)", e.ModelID, e.StationID, strings.Join(ids, ", "))
}
