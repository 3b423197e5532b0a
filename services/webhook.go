package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
	"travel-backoffice/repository"
)

// Webhook events acted upon
const (
	HookLinkPaid        = "payment_link.paid"
	HookPaymentCaptured = "payment.captured"
	HookOrderPaid       = "order.paid"
	HookPaymentFailed   = "payment.failed"
)

// WebhookDelivery is one inbound POST from the provider.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	EventID   string
}

// WebhookResult describes how a delivery was handled. The HTTP response does not depend on it.
type WebhookResult struct {
	EventID   string
	Event     string
	Status    string
	BookingID int64
}

// WebhookService verifies, de-duplicates, audits and applies provider webhooks.
type WebhookService struct {
	secret    string
	store     BookingStore
	audit     WebhookAuditor
	deduper   *Deduper
	confirmer *Confirmer
	tieBreak  string
}

func NewWebhookService(secret string, store BookingStore, audit WebhookAuditor, deduper *Deduper, confirmer *Confirmer, tieBreak string) *WebhookService {
	return &WebhookService{
		secret:    secret,
		store:     store,
		audit:     audit,
		deduper:   deduper,
		confirmer: confirmer,
		tieBreak:  tieBreak,
	}
}

// Handle processes a delivery. Unsigned or mis-signed deliveries, and every delivery when no
// secret is configured, fail with Unauthorized and change nothing. Processing failures are
// returned so the provider retries; a missing booking is not a failure.
func (s *WebhookService) Handle(ctx context.Context, d WebhookDelivery) (*WebhookResult, error) {
	if !VerifySignature(s.secret, d.Body, d.Signature) {
		if s.secret == "" {
			logger.Error("[WEBHOOK] RAZORPAY_WEBHOOK_SECRET is not configured, rejecting delivery")
		} else {
			logger.Warn("[WEBHOOK] Invalid or missing signature, rejecting delivery")
		}
		s.auditRejected(ctx, d.Body)
		metrics.IncWebhook("unknown", "rejected")
		return nil, errors.NewUnauthorizedError("invalid webhook signature")
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		metrics.IncWebhook("unknown", "invalid")
		return nil, errors.E(errors.Invalid, "invalid payload format", err)
	}

	eventID := strings.TrimSpace(d.EventID)
	if eventID == "" {
		eventID = event.ID
	}
	if eventID == "" {
		eventID = "webhook_" + uuid.NewString()
	}
	result := &WebhookResult{EventID: eventID, Event: event.Event}
	logger.Info("[WEBHOOK] Received: %s (%s)", event.Event, eventID)

	claimed, err := s.deduper.Claim(ctx, eventID)
	if err != nil {
		logger.Warn("[WEBHOOK] Dedupe unavailable, processing %s anyway: %v", eventID, err)
	}
	if !claimed {
		logger.Info("[WEBHOOK] Duplicate delivery %s ignored", eventID)
		result.Status = "DUPLICATE"
		metrics.IncWebhook(event.Event, "duplicate")
		return result, nil
	}

	if err := s.audit.Record(ctx, repository.WebhookRecord{
		WebhookID:      eventID,
		EventType:      event.Event,
		Payload:        d.Body,
		SignatureValid: true,
	}); err != nil {
		s.release(ctx, eventID)
		metrics.IncWebhook(event.Event, "error")
		return nil, err
	}

	bookingID, status, err := s.apply(ctx, &event)
	result.BookingID = bookingID
	if err != nil {
		logger.Error("[WEBHOOK] Processing %s (%s) failed: %v", event.Event, eventID, err)
		if auditErr := s.audit.UpdateStatus(ctx, eventID, repository.WebhookFailed, bookingID, err.Error()); auditErr != nil {
			logger.Error("[WEBHOOK] Failed to update audit status for %s: %v", eventID, auditErr)
		}
		s.release(ctx, eventID)
		metrics.IncWebhook(event.Event, "error")
		return nil, err
	}

	result.Status = status
	if err := s.audit.UpdateStatus(ctx, eventID, status, bookingID, ""); err != nil {
		logger.Error("[WEBHOOK] Failed to update audit status for %s: %v", eventID, err)
	}
	metrics.IncWebhook(event.Event, strings.ToLower(status))
	return result, nil
}

func (s *WebhookService) apply(ctx context.Context, event *models.WebhookEvent) (int64, string, error) {
	switch event.Event {
	case HookLinkPaid, HookPaymentCaptured, HookOrderPaid:
		ref, paymentID := webhookReferences(event)
		b, err := s.match(ctx, ref)
		if err != nil || b == nil {
			return 0, repository.WebhookIgnored, err
		}
		if _, err := s.confirmer.Confirm(ctx, b, paymentID, SourceWebhook); err != nil {
			return b.ID, "", err
		}
		return b.ID, repository.WebhookProcessed, nil

	case HookPaymentFailed:
		ref, _ := webhookReferences(event)
		b, err := s.match(ctx, ref)
		if err != nil || b == nil {
			return 0, repository.WebhookIgnored, err
		}
		if event.Payload.Payment != nil && event.Payload.Payment.Entity.Error != nil {
			logger.Warn("[WEBHOOK] Payment failed for booking %d: %s", b.ID, event.Payload.Payment.Entity.Error.Description)
		}
		if _, err := s.confirmer.Fail(ctx, b, SourceWebhook); err != nil {
			return b.ID, "", err
		}
		return b.ID, repository.WebhookProcessed, nil

	default:
		logger.Info("[WEBHOOK] Unhandled event type: %s - acknowledging anyway", event.Event)
		return 0, repository.WebhookIgnored, nil
	}
}

func (s *WebhookService) match(ctx context.Context, ref string) (*models.Booking, error) {
	if ref == "" {
		logger.Warn("[WEBHOOK] No payment link or order id in payload")
		return nil, nil
	}
	matches, err := s.store.FindByPaymentReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		logger.Warn("[WEBHOOK] No booking found for %s", ref)
		return nil, nil
	}
	b := PickBooking(matches, s.tieBreak, ref)
	return &b, nil
}

// webhookReferences extracts the identifier used to find the booking and the payment id to
// record. The payment-link entity wins over the payment entity when both are present.
func webhookReferences(event *models.WebhookEvent) (ref, paymentID string) {
	if event.Payload.Payment != nil {
		p := event.Payload.Payment.Entity
		paymentID = p.ID
		ref = p.PaymentLinkID
		if ref == "" {
			ref = p.OrderID
		}
	}

	if event.Payload.PaymentLink != nil {
		l := event.Payload.PaymentLink.Entity
		linkID := l.PaymentLinkID
		if linkID == "" && strings.HasPrefix(l.ID, linkIDPrefix) {
			linkID = l.ID
		}
		if linkID != "" {
			ref = linkID
		}
		if paymentID == "" && l.ID != "" && l.ID != linkID {
			paymentID = l.ID
		}
	}

	if ref == "" && event.Payload.Order != nil {
		ref = event.Payload.Order.Entity.ID
	}
	return ref, paymentID
}

func (s *WebhookService) auditRejected(ctx context.Context, body []byte) {
	payload := body
	if !json.Valid(payload) {
		payload = nil
	}
	id := "rejected_" + uuid.NewString()
	var envelope struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(body, &envelope)
	if envelope.Event == "" {
		envelope.Event = "unknown"
	}

	if err := s.audit.Record(ctx, repository.WebhookRecord{WebhookID: id, EventType: envelope.Event, Payload: payload}); err != nil {
		logger.Error("[WEBHOOK] Failed to audit rejected delivery: %v", err)
		return
	}
	if err := s.audit.UpdateStatus(ctx, id, repository.WebhookRejected, 0, "invalid signature"); err != nil {
		logger.Error("[WEBHOOK] Failed to audit rejected delivery: %v", err)
	}
}

func (s *WebhookService) release(ctx context.Context, eventID string) {
	if err := s.deduper.Release(ctx, eventID); err != nil {
		logger.Warn("[WEBHOOK] Failed to release claim on %s: %v", eventID, err)
	}
}
