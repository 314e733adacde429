package domain

import "time"

// Contract is issued at most once per reservation.
type Contract struct {
	ID             string    `json:"id"`
	ReservationID  string    `json:"reservation_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	DocumentKey    string    `json:"document_key"`
	DocumentURL    string    `json:"document_url"`
	CreatedOn      time.Time `json:"created_on"`
}
