// Package messaging carries payment confirmations in from the processor's
// push channel and reservation events out to other services over RabbitMQ.
package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"evrental-backend/internal/logger"
)

// Connect dials the broker, retrying while it comes up.
func Connect(ctx context.Context, url string, attempts int, wait time.Duration) (*amqp.Connection, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("RabbitMQ not ready, retrying", "attempt", i, "of", attempts, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
}

// DeclareTopology declares the durable payment queue and the topic exchange
// reservation events are published on.
func DeclareTopology(ch *amqp.Channel, paymentQueue, eventsExchange string) error {
	if _, err := ch.QueueDeclare(
		paymentQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", paymentQueue, err)
	}
	if err := ch.ExchangeDeclare(
		eventsExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", eventsExchange, err)
	}
	return nil
}
