package messaging

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/service"
)

// PaymentMessage is the body the processor pushes when a checkout settles.
type PaymentMessage struct {
	ReservationID string `json:"reservation_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

type PaymentConsumer struct {
	listener service.PaymentListener
	channel  *amqp.Channel
	queue    string
	prefetch int
}

func NewPaymentConsumer(listener service.PaymentListener, ch *amqp.Channel, queue string, prefetch int) *PaymentConsumer {
	return &PaymentConsumer{
		listener: listener,
		channel:  ch,
		queue:    queue,
		prefetch: prefetch,
	}
}

// Start consumes until ctx is cancelled or the channel closes.
func (c *PaymentConsumer) Start(ctx context.Context) error {
	if c.prefetch > 0 {
		if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
			return err
		}
	}
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false, // manual acknowledgment
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("Payment consumer channel closed", "queue", c.queue)
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()
	logger.Info("Payment consumer started", "queue", c.queue)
	return nil
}

func (c *PaymentConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var body PaymentMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil || body.ReservationID == "" {
		logger.Error("Malformed payment message", "queue", c.queue, "error", err)
		// Don't requeue malformed messages
		msg.Nack(false, false)
		return
	}

	outcome, err := c.listener.OnPaymentSignal(ctx, domain.PaymentSignal{
		ReservationID: body.ReservationID,
		TransactionID: body.TransactionID,
		Channel:       domain.PaymentChannelPush,
	})
	switch {
	case err == nil:
		logger.Info("Payment push processed", "reservationID", body.ReservationID, "duplicate", outcome.Duplicate)
		msg.Ack(false)
	case errors.Is(err, domain.ErrVerificationUnavailable):
		logger.Warn("Payment verification unavailable, requeueing", "reservationID", body.ReservationID)
		msg.Nack(false, true)
	case isFinal(err):
		logger.Info("Payment push dropped", "reservationID", body.ReservationID, "error", err)
		msg.Ack(false)
	case !msg.Redelivered:
		logger.Error("Payment push failed, requeueing once", "reservationID", body.ReservationID, "error", err)
		msg.Nack(false, true)
	default:
		logger.Error("Payment push failed again, dropping", "reservationID", body.ReservationID, "error", err)
		msg.Nack(false, false)
	}
}

// isFinal reports errors a redelivery cannot change.
func isFinal(err error) bool {
	if domain.IsValidation(err) {
		return true
	}
	for _, target := range []error{
		domain.ErrUnverifiedPaymentSignal,
		domain.ErrHoldExpired,
		domain.ErrReservationCancelled,
		domain.ErrInvalidTransition,
		domain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
