package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"travel-backoffice/logger"
)

// EmailQueue publishes emails to Kafka for the email consumer to send. Without a publisher
// it falls back to sending directly.
type EmailQueue struct {
	publisher EventPublisher
	topic     string
	direct    Mailer
}

// NewEmailQueue returns a queue. publisher is nil when Kafka is disabled; direct may be nil
// when SMTP is not configured, in which case emails are dropped with a warning.
func NewEmailQueue(publisher EventPublisher, topic string, direct Mailer) *EmailQueue {
	return &EmailQueue{publisher: publisher, topic: topic, direct: direct}
}

// Send queues msg, or delivers it immediately when no publisher is configured.
func (q *EmailQueue) Send(ctx context.Context, msg Email) error {
	msg.Event = EventEmailSend
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if q.publisher == nil {
		if q.direct == nil {
			logger.Warn("No email transport configured, dropping email to %s", msg.Recipient)
			return nil
		}
		return q.direct.Send(ctx, msg)
	}

	logger.Info("Publishing email event to Kafka. Recipient: %s, Subject: %s", msg.Recipient, msg.Subject)
	if err := q.publisher.Publish(ctx, q.topic, fmt.Sprintf("email-%s", msg.Recipient), msg); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}

// HandleEmailEvent returns the consumer handler for email.send events.
func HandleEmailEvent(mailer Mailer) func(ctx context.Context, event map[string]interface{}, raw []byte) error {
	return func(ctx context.Context, _ map[string]interface{}, raw []byte) error {
		var msg Email
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("error unmarshaling email event: %w", err)
		}
		if msg.Recipient == "" {
			return fmt.Errorf("email event has no recipient")
		}
		if mailer == nil {
			return fmt.Errorf("smtp is not configured")
		}
		return mailer.Send(ctx, msg)
	}
}
