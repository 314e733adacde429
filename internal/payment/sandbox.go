package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"evrental-backend/internal/domain"
)

// Sandbox is an in-process processor for development and tests. With AutoPay
// every session verifies as paid; otherwise sessions stay open until Pay.
type Sandbox struct {
	mu          sync.Mutex
	autoPay     bool
	checkoutURL string
	sessions    map[string]*domain.PaymentRecord
	// outages makes the next n Verify calls fail with ErrUnavailable.
	outages int
}

func NewSandbox(checkoutURL string, autoPay bool) *Sandbox {
	return &Sandbox{
		autoPay:     autoPay,
		checkoutURL: checkoutURL,
		sessions:    make(map[string]*domain.PaymentRecord),
	}
}

func (s *Sandbox) CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The idempotency key makes a retried create return the same session.
	id := "sbx_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(req.IdempotencyKey)).String()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = &domain.PaymentRecord{
			SessionID:     id,
			OrderID:       "ord_" + req.ReservationID,
			OrderStatus:   "OPEN",
			PaymentStatus: "PENDING",
			AmountCents:   req.AmountCents,
		}
	}
	return &domain.PaymentSession{
		SessionID:  id,
		PaymentURL: fmt.Sprintf("%s?session_id=%s&reservation_id=%s", s.checkoutURL, id, req.ReservationID),
	}, nil
}

func (s *Sandbox) Verify(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outages > 0 {
		s.outages--
		return nil, fmt.Errorf("%w: sandbox outage", ErrUnavailable)
	}
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.autoPay && !rec.Paid() {
		s.settle(rec, "")
	}
	out := *rec
	return &out, nil
}

// Pay settles a session as the processor would after a successful charge.
func (s *Sandbox) Pay(sessionID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.settle(rec, transactionID)
	return nil
}

// Decline marks the order paid but the payment failed.
func (s *Sandbox) Decline(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	rec.OrderStatus = domain.OrderStatusPaid
	rec.PaymentStatus = "FAILED"
	return nil
}

// SetAmount overrides the recorded amount.
func (s *Sandbox) SetAmount(sessionID string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.AmountCents = cents
	}
}

// FailNext makes the next n Verify calls report the processor as unavailable.
func (s *Sandbox) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outages = n
}

func (s *Sandbox) settle(rec *domain.PaymentRecord, transactionID string) {
	if transactionID == "" {
		transactionID = "txn_" + uuid.NewString()
	}
	rec.OrderStatus = domain.OrderStatusPaid
	rec.PaymentStatus = domain.PaymentStatusSucceeded
	rec.TransactionID = transactionID
}
