package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"travel-backoffice/logger"
	"travel-backoffice/models"
)

// Event types published to Kafka
const (
	EventPaymentLinkCreated = "booking.payment_link.created"
	EventBookingConfirmed   = "booking.confirmed"
	EventPaymentFailed      = "booking.payment_failed"
	EventEmailSend          = "email.send"
)

// Confirmation sources, also used as metric labels
const (
	SourceStatusCheck = "status_check"
	SourceCallback    = "callback"
	SourceWebhook     = "webhook"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// BookingEvent represents a booking state change for Kafka
type BookingEvent struct {
	EventID           string    `json:"event_id"`
	Event             string    `json:"event"`
	BookingID         int64     `json:"booking_id"`
	Source            string    `json:"source,omitempty"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"payment_status"`
	Amount            float64   `json:"amount"`
	CustomerEmail     string    `json:"customer_email"`
	PaymentLinkID     string    `json:"payment_link_id,omitempty"`
	ProviderOrderID   string    `json:"provider_order_id,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewBookingEvent snapshots b into an event.
func NewBookingEvent(event string, b *models.Booking, source string) BookingEvent {
	return BookingEvent{
		EventID:           uuid.NewString(),
		Event:             event,
		BookingID:         b.ID,
		Source:            source,
		Status:            b.Status,
		PaymentStatus:     b.PaymentStatus,
		Amount:            b.Amount,
		CustomerEmail:     b.CustomerEmail,
		PaymentLinkID:     b.PaymentLinkID,
		ProviderOrderID:   b.ProviderOrderID,
		ProviderPaymentID: b.ProviderPaymentID,
		Timestamp:         time.Now().UTC(),
	}
}

// Events publishes booking events keyed by booking so they stay ordered per partition.
// A nil *Events or a nil publisher drops events.
type Events struct {
	publisher EventPublisher
	topic     string
}

func NewEvents(publisher EventPublisher, topic string) *Events {
	return &Events{publisher: publisher, topic: topic}
}

// Emit publishes the event. Failures are logged; the producer dead-letters them.
func (e *Events) Emit(ctx context.Context, event string, b *models.Booking, source string) error {
	if e == nil || e.publisher == nil {
		return nil
	}
	ev := NewBookingEvent(event, b, source)
	if err := e.publisher.Publish(ctx, e.topic, fmt.Sprintf("booking-%d", b.ID), ev); err != nil {
		logger.Warn("failed to publish %s event for booking %d: %v", event, b.ID, err)
		return err
	}
	logger.Info("Published %s event to Kafka topic '%s' for booking %d", event, e.topic, b.ID)
	return nil
}

// Tasks runs best-effort side effects (events, emails) outside the request that triggered
// them. A nil *Tasks runs them inline.
type Tasks struct {
	wg sync.WaitGroup
}

func NewTasks() *Tasks {
	return &Tasks{}
}

// Go runs fn with a context that survives the caller's cancellation.
func (t *Tasks) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	run := func() {
		if err := fn(detached); err != nil {
			logger.Warn("%s failed: %v", name, err)
		}
	}
	if t == nil {
		run()
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		run()
	}()
}

// Wait blocks until every started task has returned.
func (t *Tasks) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}
