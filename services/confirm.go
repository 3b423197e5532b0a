package services

import (
	"context"

	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
)

// Confirmer applies the paid transition shared by the status check, the redirect callback and
// the webhook. The store update is conditional, so concurrent confirmations of the same booking
// produce one event and one email.
type Confirmer struct {
	store    BookingStore
	events   *Events
	notifier *Notifier
	tasks    *Tasks
}

func NewConfirmer(store BookingStore, events *Events, notifier *Notifier, tasks *Tasks) *Confirmer {
	return &Confirmer{store: store, events: events, notifier: notifier, tasks: tasks}
}

// Confirm marks b Confirmed/Paid and updates it in place. It reports whether this call made the
// change; a booking that was already paid keeps its stored payment id.
func (c *Confirmer) Confirm(ctx context.Context, b *models.Booking, paymentID, source string) (bool, error) {
	changed, err := c.store.MarkPaid(ctx, b.ID, paymentID)
	if err != nil {
		logger.Error("Failed to confirm booking %d (payment %s, via %s): %v", b.ID, paymentID, source, err)
		return false, err
	}

	b.Status = models.BookingConfirmed
	b.PaymentStatus = models.PaymentPaid
	if !changed {
		logger.Info("Booking %d already paid, %s confirmation is a no-op", b.ID, source)
		return false, nil
	}
	if b.ProviderPaymentID == "" {
		b.ProviderPaymentID = paymentID
	}

	logger.Info("Booking %d confirmed via %s (payment %s)", b.ID, source, paymentID)
	metrics.IncConfirmed(source)

	snapshot := *b
	c.tasks.Go(ctx, "booking.confirmed event", func(ctx context.Context) error {
		return c.events.Emit(ctx, EventBookingConfirmed, &snapshot, source)
	})
	c.tasks.Go(ctx, "confirmation email", func(ctx context.Context) error {
		return c.notifier.SendConfirmation(ctx, &snapshot)
	})
	return true, nil
}

// Fail records a failed payment on a pending booking. Paid bookings are never downgraded.
func (c *Confirmer) Fail(ctx context.Context, b *models.Booking, source string) (bool, error) {
	changed, err := c.store.MarkFailed(ctx, b.ID)
	if err != nil {
		return false, err
	}
	if !changed {
		logger.Info("Booking %d not pending (payment_status=%s), ignoring failed payment", b.ID, b.PaymentStatus)
		return false, nil
	}

	b.PaymentStatus = models.PaymentFailed
	logger.Warn("Payment failed for booking %d via %s", b.ID, source)

	snapshot := *b
	c.tasks.Go(ctx, "booking.payment_failed event", func(ctx context.Context) error {
		return c.events.Emit(ctx, EventPaymentFailed, &snapshot, source)
	})
	return true, nil
}
