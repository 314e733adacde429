package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

const serviceName = "payment-processor"

// HTTPGateway is a JSON client for the processor's checkout API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	SessionID  string `json:"id"`
	PaymentURL string `json:"url"`
}

type verifyResponse struct {
	SessionID     string `json:"id"`
	OrderID       string `json:"order_id"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount"`
}

func (g *HTTPGateway) CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error) {
	logger.ExternalServiceCall(serviceName, "CreateSession", "reservationID", req.ReservationID, "amount", req.AmountCents)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out sessionResponse
	err = g.do(ctx, http.MethodPost, "/v1/checkout/sessions", req.IdempotencyKey, body, &out)
	logger.ExternalServiceResult(serviceName, "CreateSession", err, "reservationID", req.ReservationID, "sessionID", out.SessionID)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentSession{SessionID: out.SessionID, PaymentURL: out.PaymentURL}, nil
}

func (g *HTTPGateway) Verify(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	logger.ExternalServiceCall(serviceName, "Verify", "sessionID", sessionID)

	var out verifyResponse
	err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), "", nil, &out)
	logger.ExternalServiceResult(serviceName, "Verify", err, "sessionID", sessionID, "orderStatus", out.OrderStatus, "paymentStatus", out.PaymentStatus)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentRecord{
		SessionID:     out.SessionID,
		OrderID:       out.OrderID,
		OrderStatus:   out.OrderStatus,
		PaymentStatus: out.PaymentStatus,
		TransactionID: out.TransactionID,
		AmountCents:   out.AmountCents,
	}, nil
}

// do sends one request. Transport failures and 5xx/429 responses are reported
// as ErrUnavailable.
func (g *HTTPGateway) do(ctx context.Context, method, path, idempotencyKey string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("payment processor rejected request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode payment processor response: %w", err)
	}
	return nil
}
