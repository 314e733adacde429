package domain

import "time"

type Notification struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer_id"`
	ReservationID string            `json:"reservation_id"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	IsRead        bool              `json:"is_read"`
	Attributes    map[string]string `json:"attributes"`
	CreatedOn     time.Time         `json:"created_on"`
}
