package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
)

// CallbackParams are the query parameters of the provider's redirect back to us.
type CallbackParams struct {
	LinkID      string
	PaymentID   string
	ReferenceID string
	Status      string
	Signature   string
}

// CallbackParamsFromQuery reads the razorpay_* redirect parameters.
func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		LinkID:      strings.TrimSpace(q.Get("razorpay_payment_link_id")),
		PaymentID:   strings.TrimSpace(q.Get("razorpay_payment_id")),
		ReferenceID: q.Get("razorpay_payment_link_reference_id"),
		Status:      strings.TrimSpace(q.Get("razorpay_payment_link_status")),
		Signature:   strings.TrimSpace(q.Get("razorpay_signature")),
	}
}

// CallbackOptions configures the redirect targets and signature policy.
type CallbackOptions struct {
	AppBaseURL       string
	KeySecret        string
	RequireSignature bool
	TieBreak         string
}

// CallbackService turns the buyer's redirect into a booking confirmation and a page to show.
// Unsigned redirects are only trusted after the provider reports the link as paid.
type CallbackService struct {
	store     BookingStore
	provider  PaymentProvider
	confirmer *Confirmer
	opts      CallbackOptions
}

func NewCallbackService(store BookingStore, provider PaymentProvider, confirmer *Confirmer, opts CallbackOptions) *CallbackService {
	opts.AppBaseURL = strings.TrimRight(opts.AppBaseURL, "/")
	return &CallbackService{store: store, provider: provider, confirmer: confirmer, opts: opts}
}

// SuccessURL is the page shown after a confirmed payment.
func (s *CallbackService) SuccessURL(bookingID int64) string {
	return s.opts.AppBaseURL + "/payment-success?bookingId=" + strconv.FormatInt(bookingID, 10)
}

// FailureURL is the page shown for anything but a confirmed payment.
func (s *CallbackService) FailureURL() string {
	return s.opts.AppBaseURL + "/payment-failed"
}

// Handle returns where to redirect the buyer. It never fails: every error leads to the
// failure page and is only logged.
func (s *CallbackService) Handle(ctx context.Context, p CallbackParams) string {
	logger.Info("[CALLBACK] link=%s payment=%s status=%s", p.LinkID, p.PaymentID, p.Status)

	signed, accepted := s.signatureAccepted(p)
	if !accepted {
		metrics.IncResolution("callback_rejected")
		return s.FailureURL()
	}

	if p.Status != models.LinkPaid {
		logger.Info("[CALLBACK] Payment link %s reported status %q, booking left unchanged", p.LinkID, p.Status)
		metrics.IncResolution("callback_" + linkStatusLabel(p.Status, "failed"))
		return s.FailureURL()
	}

	paymentID := p.PaymentID
	if !signed {
		link, ok := s.paidAtProvider(ctx, p.LinkID)
		if !ok {
			metrics.IncResolution("callback_rejected")
			return s.FailureURL()
		}
		if id := link.FirstPaymentID(); id != "" {
			paymentID = id
		}
	}

	matches, err := s.store.FindByPaymentReference(ctx, p.LinkID)
	if err != nil {
		logger.Error("[CALLBACK] Booking lookup for %s failed: %v", p.LinkID, err)
		return s.FailureURL()
	}
	if len(matches) == 0 {
		logger.Warn("[CALLBACK] No booking found for payment link %s", p.LinkID)
		return s.FailureURL()
	}
	b := PickBooking(matches, s.opts.TieBreak, p.LinkID)

	if _, err := s.confirmer.Confirm(ctx, &b, paymentID, SourceCallback); err != nil {
		logger.Error("[CALLBACK] Confirming booking %d failed: %v", b.ID, err)
		return s.FailureURL()
	}
	metrics.IncResolution("callback_paid")
	return s.SuccessURL(b.ID)
}

// signatureAccepted reports whether the redirect carried a signature and whether it may be
// processed further.
func (s *CallbackService) signatureAccepted(p CallbackParams) (signed, accepted bool) {
	if p.Signature == "" {
		if s.opts.RequireSignature {
			logger.Warn("[CALLBACK] Missing razorpay_signature for link %s", p.LinkID)
			return false, false
		}
		return false, true
	}
	payload := CallbackSignaturePayload(p.LinkID, p.ReferenceID, p.Status, p.PaymentID)
	if !VerifySignature(s.opts.KeySecret, payload, p.Signature) {
		logger.Warn("[CALLBACK] Invalid razorpay_signature for link %s", p.LinkID)
		return true, false
	}
	return true, true
}

func (s *CallbackService) paidAtProvider(ctx context.Context, linkID string) (*models.PaymentLink, bool) {
	if linkID == "" || s.provider == nil || !s.provider.Configured() {
		logger.Warn("[CALLBACK] Unsigned callback for link %q cannot be verified with the provider", linkID)
		return nil, false
	}
	link, err := s.provider.FetchPaymentLink(ctx, linkID)
	if err != nil {
		logger.Warn("[CALLBACK] Verifying unsigned callback for link %s failed: %v", linkID, err)
		return nil, false
	}
	if link.Status != models.LinkPaid {
		logger.Warn("[CALLBACK] Unsigned callback claims link %s is paid, provider reports %q", linkID, link.Status)
		return nil, false
	}
	return link, true
}

// linkStatusLabel keeps metric labels to the known link statuses.
func linkStatusLabel(status, fallback string) string {
	switch status {
	case models.LinkCreated, models.LinkPartiallyPaid, models.LinkPaid, models.LinkExpired, models.LinkCancelled:
		return status
	default:
		return fallback
	}
}
