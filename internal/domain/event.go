package domain

import "time"

type EventType string

const (
	EventReservationHeld      EventType = "reservation.held"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationExpired   EventType = "reservation.expired"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationStarted   EventType = "reservation.started"
	EventReservationCompleted EventType = "reservation.completed"
)

// ReservationEvent is emitted after every committed state change.
type ReservationEvent struct {
	Type        EventType    `json:"type"`
	Reservation *Reservation `json:"reservation"`
	Contract    *Contract    `json:"contract,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}
