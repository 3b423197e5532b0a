package repository

import (
	"context"
	"database/sql"

	"travel-backoffice/errors"
)

// Processing states of an audited webhook
const (
	WebhookReceived  = "RECEIVED"
	WebhookProcessed = "PROCESSED"
	WebhookIgnored   = "IGNORED"
	WebhookFailed    = "FAILED"
	WebhookRejected  = "REJECTED"
)

const maxWebhookErrorLength = 500

// WebhookRecord is one provider delivery as written to the audit table.
type WebhookRecord struct {
	WebhookID      string
	EventType      string
	Payload        []byte
	SignatureValid bool
}

// WebhookRepository keeps the payment_webhooks audit log.
type WebhookRepository struct {
	db *sql.DB
}

// NewWebhookRepository creates a new webhook repository instance
func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Record inserts a delivery. A repeated webhook id bumps retry_count instead.
func (r *WebhookRepository) Record(ctx context.Context, rec WebhookRecord) error {
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_webhooks (webhook_id, event_type, payload, signature_valid, status)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (webhook_id) DO UPDATE
		SET updated_at = NOW(),
			retry_count = payment_webhooks.retry_count + 1,
			signature_valid = EXCLUDED.signature_valid`,
		rec.WebhookID, rec.EventType, string(payload), rec.SignatureValid, WebhookReceived)
	if err != nil {
		return errors.E(errors.Internal, "error recording webhook", err)
	}
	return nil
}

// UpdateStatus stores the processing outcome of a delivery.
func (r *WebhookRepository) UpdateStatus(ctx context.Context, webhookID, status string, bookingID int64, errMsg string) error {
	if len(errMsg) > maxWebhookErrorLength {
		errMsg = errMsg[:maxWebhookErrorLength]
	}

	var booking sql.NullInt64
	if bookingID > 0 {
		booking = sql.NullInt64{Int64: bookingID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET status = $2, booking_id = COALESCE($3, booking_id), error_message = $4,
			processed_at = NOW(), updated_at = NOW()
		WHERE webhook_id = $1`,
		webhookID, status, booking, nullString(errMsg))
	if err != nil {
		return errors.E(errors.Internal, "error updating webhook status", err)
	}
	return nil
}
