package service

import (
	"context"
	"fmt"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

type notifier struct {
	sinks []EventSink
}

// NewNotifier fans events out to sinks in order. A failing sink is logged and
// never blocks the others or the state change that produced the event.
func NewNotifier(sinks ...EventSink) Notifier {
	return &notifier{sinks: sinks}
}

func (n *notifier) Notify(ctx context.Context, event domain.ReservationEvent) {
	for _, sink := range n.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			logger.Error("Event delivery failed", "sink", sink.Name(), "type", event.Type, "reservationID", event.Reservation.ID, "error", err)
		}
	}
}

var eventTitles = map[domain.EventType]string{
	domain.EventReservationHeld:      "Vehicle on hold",
	domain.EventReservationConfirmed: "Reservation confirmed",
	domain.EventReservationExpired:   "Reservation hold expired",
	domain.EventReservationCancelled: "Reservation cancelled",
	domain.EventReservationStarted:   "Rental started",
	domain.EventReservationCompleted: "Rental completed",
}

// notificationSink persists one in-app notification per event.
type notificationSink struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationSink(noteRepo repository.NotificationRepository) EventSink {
	return &notificationSink{noteRepo: noteRepo}
}

func (s *notificationSink) Name() string { return "notifications" }

func (s *notificationSink) Publish(ctx context.Context, event domain.ReservationEvent) error {
	r := event.Reservation
	note := &domain.Notification{
		CustomerID:    r.CustomerID,
		ReservationID: r.ID,
		Title:         eventTitles[event.Type],
		Message:       eventMessage(event),
		Attributes: map[string]string{
			"type":           string(event.Type),
			"reservation_id": r.ID,
			"state":          string(r.State),
		},
		CreatedOn: event.OccurredAt,
	}
	if event.Contract != nil {
		note.Attributes["contract_id"] = event.Contract.ID
	}
	return s.noteRepo.Create(ctx, note)
}

func eventMessage(event domain.ReservationEvent) string {
	r := event.Reservation
	switch event.Type {
	case domain.EventReservationHeld:
		return fmt.Sprintf("Vehicle %s is held until %s. Complete payment to confirm.", r.VehicleInstanceID, r.HoldExpiresAt.Format("15:04 MST"))
	case domain.EventReservationConfirmed:
		return fmt.Sprintf("Payment received. Pick up your vehicle at %s on %s.", r.StationID, r.PickupAt.Format("2006-01-02 15:04 MST"))
	case domain.EventReservationExpired:
		return "Payment was not completed in time and the vehicle was released."
	case domain.EventReservationCancelled:
		if r.CancelReason != "" {
			return "Reservation cancelled: " + r.CancelReason
		}
		return "Reservation cancelled."
	case domain.EventReservationStarted:
		return fmt.Sprintf("Enjoy your trip. Return by %s.", r.ReturnAt.Format("2006-01-02 15:04 MST"))
	case domain.EventReservationCompleted:
		return "Vehicle returned. Thank you for riding with us."
	}
	return string(event.Type)
}

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, customerID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.ListByCustomer(ctx, customerID, pageSize, offset)
}
