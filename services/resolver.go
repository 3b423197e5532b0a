package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"travel-backoffice/config"
	"travel-backoffice/errors"
	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
)

// RecoveryWindow is how far around a booking's creation time the recovery search looks for
// its payment link. Both ends are inclusive.
const RecoveryWindow = time.Hour

const linkIDPrefix = "plink_"

// StatusCheckRequest is the body of POST /payment-status-check. At least one field is required.
type StatusCheckRequest struct {
	BookingID       int64
	RazorpayOrderID string
}

// StatusResult is returned for every resolved booking, including soft failures where the
// provider could not answer. Soft failures carry Success=false, Error and the booking's last
// known status.
type StatusResult struct {
	Success bool                   `json:"success"`
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Booking *models.BookingSummary `json:"booking,omitempty"`
}

// Resolver answers whether a booking has been paid and confirms it when it has.
type Resolver struct {
	provider  PaymentProvider
	store     BookingStore
	confirmer *Confirmer
	tieBreak  string
}

func NewResolver(provider PaymentProvider, store BookingStore, confirmer *Confirmer, tieBreak string) *Resolver {
	return &Resolver{provider: provider, store: store, confirmer: confirmer, tieBreak: tieBreak}
}

// Resolve looks up the booking, recovers its payment-link id if needed, asks the provider for
// the link status and confirms the booking when the link is paid.
//
// Returned errors are hard failures: Invalid when no identifier is given, NotFound when no
// booking matches, Config when credentials are missing, Internal on store failures. Provider
// failures are reported in the result instead.
func (r *Resolver) Resolve(ctx context.Context, req StatusCheckRequest) (*StatusResult, error) {
	ref := strings.TrimSpace(req.RazorpayOrderID)
	if req.BookingID <= 0 && ref == "" {
		return nil, errors.NewInvalidParamsError("bookingId or razorpayOrderId is required")
	}

	b, err := r.findBooking(ctx, req.BookingID, ref)
	if err != nil {
		return nil, err
	}

	if b.IsPaid() {
		metrics.IncResolution("already_paid")
		return paidResult(b), nil
	}

	if !r.provider.Configured() {
		return nil, errors.NewConfigError("Razorpay credentials not configured")
	}

	linkID := b.PaymentLinkID
	if linkID == "" && strings.HasPrefix(ref, linkIDPrefix) {
		linkID = ref
	}

	if linkID == "" && b.PaymentLinkURL != "" {
		link, err := r.recoverLink(ctx, b)
		if err != nil {
			if errors.KindOf(err) == errors.Config {
				return nil, err
			}
			metrics.IncResolution("provider_error")
			return softFailure(b, err), nil
		}
		if link != nil {
			linkID = link.ID
			if _, err := r.store.SetRecoveredLink(ctx, b.ID, link.ID, link.OrderID); err != nil {
				logger.Error("Recovered payment link %s not saved on booking %d: %v", link.ID, b.ID, err)
			} else {
				b.PaymentLinkID = link.ID
				if b.ProviderOrderID == "" {
					b.ProviderOrderID = link.OrderID
				}
			}
		}
	}

	if linkID == "" {
		logger.Warn("No payment link id resolvable for booking %d", b.ID)
		metrics.IncResolution("unresolved")
		return &StatusResult{
			Success: false,
			Status:  b.Status,
			Error:   "No payment link found for this booking",
			Booking: summary(b),
		}, nil
	}

	link, err := r.provider.FetchPaymentLink(ctx, linkID)
	if err != nil {
		if errors.KindOf(err) == errors.Config {
			return nil, err
		}
		logger.Warn("Payment link %s status fetch failed for booking %d: %v", linkID, b.ID, err)
		metrics.IncResolution("provider_error")
		return softFailure(b, err), nil
	}

	if link.Status != models.LinkPaid {
		metrics.IncResolution(linkStatusLabel(link.Status, "unknown"))
		return &StatusResult{Success: true, Status: link.Status, Booking: summary(b)}, nil
	}

	if _, err := r.confirmer.Confirm(ctx, b, link.FirstPaymentID(), SourceStatusCheck); err != nil {
		return nil, err
	}
	metrics.IncResolution(models.LinkPaid)
	return paidResult(b), nil
}

func (r *Resolver) findBooking(ctx context.Context, id int64, ref string) (*models.Booking, error) {
	if id > 0 {
		return r.store.GetByID(ctx, id)
	}

	matches, err := r.store.FindByPaymentReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no booking found for payment reference %s", ref))
	}
	b := PickBooking(matches, r.tieBreak, ref)
	return &b, nil
}

// recoverLink searches the provider's links created around the booking for one that belongs
// to it. It returns nil, nil when nothing matches.
func (r *Resolver) recoverLink(ctx context.Context, b *models.Booking) (*models.PaymentLink, error) {
	created := b.CreatedAt.Unix()
	window := int64(RecoveryWindow / time.Second)
	from, to := created-window, created+window

	links, err := r.provider.ListPaymentLinks(ctx, time.Unix(from, 0), time.Unix(to, 0))
	if err != nil {
		logger.Warn("Payment link recovery search failed for booking %d: %v", b.ID, err)
		return nil, err
	}

	var matches []models.PaymentLink
	for _, l := range links {
		// The provider filters by window too; keep the bound exact regardless.
		if l.CreatedAt != 0 && (l.CreatedAt < from || l.CreatedAt > to) {
			continue
		}
		if LinkMatchesBooking(&l, b) {
			matches = append(matches, l)
		}
	}

	if len(matches) == 0 {
		logger.Info("Recovery found no payment link for booking %d among %d candidates", b.ID, len(links))
		return nil, nil
	}
	link := PickLink(matches, r.tieBreak, b.ID)
	logger.Info("Recovered payment link %s for booking %d", link.ID, b.ID)
	return &link, nil
}

// LinkMatchesBooking reports whether l was issued for b: same customer email and same amount
// in paise, or the same hosted URL. The booking amount is rounded to the nearest paisa before
// comparing, so amounts stored with sub-paisa precision may round differently than the
// provider did.
func LinkMatchesBooking(l *models.PaymentLink, b *models.Booking) bool {
	if b.PaymentLinkURL != "" && l.ShortURL == b.PaymentLinkURL {
		return true
	}
	return b.CustomerEmail != "" &&
		strings.EqualFold(strings.TrimSpace(l.Customer.Email), strings.TrimSpace(b.CustomerEmail)) &&
		l.Amount == b.AmountPaise()
}

// PickBooking applies the tie-break policy to bookings matching ref. first keeps store order,
// latest picks the most recently created booking.
func PickBooking(matches []models.Booking, policy, ref string) models.Booking {
	best := matches[0]
	if policy == config.TieBreakLatest {
		for _, m := range matches[1:] {
			if m.CreatedAt.After(best.CreatedAt) || (m.CreatedAt.Equal(best.CreatedAt) && m.ID > best.ID) {
				best = m
			}
		}
	}
	if len(matches) > 1 {
		ids := make([]int64, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		logger.Warn("Payment reference %s matches %d bookings %v, using %d (tie-break %s)", ref, len(matches), ids, best.ID, policy)
	}
	return best
}

// PickLink applies the tie-break policy to payment links matching a booking.
func PickLink(matches []models.PaymentLink, policy string, bookingID int64) models.PaymentLink {
	best := matches[0]
	if policy == config.TieBreakLatest {
		for _, m := range matches[1:] {
			if m.CreatedAt > best.CreatedAt {
				best = m
			}
		}
	}
	if len(matches) > 1 {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		logger.Warn("Booking %d matches %d payment links %v, using %s (tie-break %s)", bookingID, len(matches), ids, best.ID, policy)
	}
	return best
}

func summary(b *models.Booking) *models.BookingSummary {
	s := b.Summary()
	return &s
}

func paidResult(b *models.Booking) *StatusResult {
	return &StatusResult{Success: true, Status: models.LinkPaid, Booking: summary(b)}
}

func softFailure(b *models.Booking, err error) *StatusResult {
	return &StatusResult{
		Success: false,
		Status:  b.Status,
		Error:   "Razorpay error: " + errors.Message(err),
		Booking: summary(b),
	}
}
