// Package payment talks to the external payment processor: it opens checkout
// sessions for holds and re-verifies confirmation signals against the
// processor's own record.
package payment

import (
	"context"
	"errors"

	"evrental-backend/internal/domain"
)

var (
	// ErrUnavailable marks a transient processor failure worth retrying.
	ErrUnavailable     = errors.New("payment processor unavailable")
	ErrSessionNotFound = errors.New("payment session not found")
)

// SessionRequest describes the checkout opened for one reservation hold.
type SessionRequest struct {
	ReservationID  string `json:"reservation_id"`
	IdempotencyKey string `json:"idempotency_key"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	Description    string `json:"description"`
	ReturnURL      string `json:"return_url"`
	ExpiresAtUnix  int64  `json:"expires_at"`
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error)
	Verify(ctx context.Context, sessionID string) (*domain.PaymentRecord, error)
}
