package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-backoffice/config"
	"travel-backoffice/errors"
	"travel-backoffice/metrics"
	"travel-backoffice/models"
)

var bookingCreated = time.Unix(1_700_000_000, 0).UTC()

func pendingBooking(id int64) models.Booking {
	return models.Booking{
		ID:            id,
		CustomerName:  "Asha Rao",
		CustomerEmail: "asha@example.com",
		Amount:        4999.50,
		Travelers:     2,
		Destination:   "Goa",
		CreatedAt:     bookingCreated,
		UpdatedAt:     bookingCreated,
	}
}

func paidLink(id string) models.PaymentLink {
	return models.PaymentLink{
		ID:       id,
		OrderID:  "order_" + id,
		ShortURL: "https://rzp.io/l/" + id,
		Status:   models.LinkPaid,
		Amount:   499950,
		Payments: []models.LinkPayment{{PaymentID: "pay_" + id, Status: "captured"}},
	}
}

func TestResolve_ConfirmsPaidLink(t *testing.T) {
	b := pendingBooking(1)
	b.PaymentLinkID = "plink_A"
	b.ProviderOrderID = "order_plink_A"
	h := newHarness(b)
	h.provider = newFakeProvider(paidLink("plink_A"))

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 1})
	require.NoError(t, err)
	h.tasks.Wait()

	assert.True(t, res.Success)
	assert.Equal(t, models.LinkPaid, res.Status)
	require.NotNil(t, res.Booking)
	assert.Equal(t, models.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, models.PaymentPaid, res.Booking.PaymentStatus)

	stored := h.store.get(t, 1)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "pay_plink_A", stored.ProviderPaymentID)

	events := h.publisher.bookingEvents(EventBookingConfirmed)
	require.Len(t, events, 1)
	assert.Equal(t, SourceStatusCheck, events[0].Source)
	assert.Equal(t, int64(1), events[0].BookingID)

	mails := h.mailer.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, "asha@example.com", mails[0].Recipient)
	assert.Equal(t, "receipt_1.pdf", mails[0].AttachmentName)
	h.store.assertPaidImpliesConfirmed(t)
}

func TestResolve_RecoversMissingLinkID(t *testing.T) {
	b := pendingBooking(2)
	b.PaymentLinkURL = "https://rzp.io/l/other"
	h := newHarness(b)

	match := paidLink("plink_B")
	match.Customer.Email = "ASHA@example.com "
	match.CreatedAt = bookingCreated.Unix() + 120
	h.provider = newFakeProvider(match)
	h.provider.listed = []models.PaymentLink{
		{ID: "plink_other_amount", Amount: 100, Customer: models.LinkCustomer{Email: "asha@example.com"}, CreatedAt: bookingCreated.Unix()},
		match,
	}

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 2})
	require.NoError(t, err)
	h.tasks.Wait()

	assert.True(t, res.Success)
	assert.Equal(t, models.LinkPaid, res.Status)

	stored := h.store.get(t, 2)
	assert.Equal(t, "plink_B", stored.PaymentLinkID)
	assert.Equal(t, "order_plink_B", stored.ProviderOrderID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)

	_, fetches, lists := h.provider.calls()
	assert.Equal(t, 1, lists)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, bookingCreated.Add(-time.Hour).Unix(), h.provider.listFrom.Unix())
	assert.Equal(t, bookingCreated.Add(time.Hour).Unix(), h.provider.listTo.Unix())
}

func TestResolve_RecoveryMatchesShortURL(t *testing.T) {
	b := pendingBooking(3)
	b.CustomerEmail = "someone-else@example.com"
	b.PaymentLinkURL = "https://rzp.io/l/plink_C"
	h := newHarness(b)

	link := paidLink("plink_C")
	link.Status = models.LinkCreated
	link.CreatedAt = bookingCreated.Unix()
	h.provider = newFakeProvider(link)
	h.provider.listed = []models.PaymentLink{link}

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 3})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.LinkCreated, res.Status)
	stored := h.store.get(t, 3)
	assert.Equal(t, "plink_C", stored.PaymentLinkID)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestResolve_RecoveryWindowBounds(t *testing.T) {
	tests := []struct {
		name      string
		offset    int64
		recovered bool
	}{
		{"exactly one hour after", 3600, true},
		{"exactly one hour before", -3600, true},
		{"one second past the window", 3601, false},
		{"one second before the window", -3601, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pendingBooking(4)
			b.PaymentLinkURL = "https://rzp.io/l/unrelated"
			h := newHarness(b)

			link := paidLink("plink_W")
			link.Customer.Email = b.CustomerEmail
			link.CreatedAt = bookingCreated.Unix() + tt.offset
			h.provider = newFakeProvider(link)
			h.provider.listed = []models.PaymentLink{link}

			res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 4})
			require.NoError(t, err)
			h.tasks.Wait()

			stored := h.store.get(t, 4)
			if tt.recovered {
				assert.True(t, res.Success)
				assert.Equal(t, "plink_W", stored.PaymentLinkID)
				assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
			} else {
				assert.False(t, res.Success)
				assert.Equal(t, "No payment link found for this booking", res.Error)
				assert.Empty(t, stored.PaymentLinkID)
				assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
			}
		})
	}
}

func TestResolve_RecoveryTieBreak(t *testing.T) {
	older := paidLink("plink_old")
	older.Customer.Email = "asha@example.com"
	older.CreatedAt = bookingCreated.Unix() + 10
	newer := paidLink("plink_new_one")
	newer.Customer.Email = "asha@example.com"
	newer.CreatedAt = bookingCreated.Unix() + 20

	tests := []struct {
		policy string
		want   string
	}{
		{config.TieBreakFirst, "plink_old"},
		{config.TieBreakLatest, "plink_new_one"},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			b := pendingBooking(5)
			b.PaymentLinkURL = "https://rzp.io/l/unrelated"
			h := newHarness(b)
			h.provider = newFakeProvider(older, newer)
			h.provider.listed = []models.PaymentLink{older, newer}

			_, err := h.resolver(tt.policy).Resolve(context.Background(), StatusCheckRequest{BookingID: 5})
			require.NoError(t, err)
			h.tasks.Wait()

			assert.Equal(t, tt.want, h.store.get(t, 5).PaymentLinkID)
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	b := pendingBooking(6)
	b.PaymentLinkID = "plink_I"
	h := newHarness(b)
	h.provider = newFakeProvider(paidLink("plink_I"))
	r := h.resolver(config.TieBreakFirst)

	first, err := r.Resolve(context.Background(), StatusCheckRequest{BookingID: 6})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), StatusCheckRequest{BookingID: 6})
	require.NoError(t, err)
	h.tasks.Wait()

	assert.Equal(t, first, second)
	assert.Len(t, h.publisher.bookingEvents(EventBookingConfirmed), 1)
	assert.Len(t, h.mailer.messages(), 1)

	// the second call short-circuits on the stored state
	_, fetches, _ := h.provider.calls()
	assert.Equal(t, 1, fetches)
}

func TestResolve_AlreadyPaidSkipsProvider(t *testing.T) {
	b := pendingBooking(7)
	b.Status = models.BookingConfirmed
	b.PaymentStatus = models.PaymentPaid
	h := newHarness(b)
	h.provider.configured = false

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 7})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.LinkPaid, res.Status)
	creates, fetches, lists := h.provider.calls()
	assert.Zero(t, creates+fetches+lists)
}

func TestResolve_NotPaidLeavesBookingUnchanged(t *testing.T) {
	for _, status := range []string{models.LinkCreated, models.LinkPartiallyPaid, models.LinkExpired, models.LinkCancelled} {
		t.Run(status, func(t *testing.T) {
			b := pendingBooking(8)
			b.PaymentLinkID = "plink_N"
			h := newHarness(b)
			link := paidLink("plink_N")
			link.Status = status
			h.provider = newFakeProvider(link)

			res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 8})
			require.NoError(t, err)
			h.tasks.Wait()

			assert.True(t, res.Success)
			assert.Equal(t, status, res.Status)
			assert.Equal(t, models.BookingPending, res.Booking.Status)
			stored := h.store.get(t, 8)
			assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
			assert.Equal(t, int64(0), stored.Version)
			assert.Empty(t, h.publisher.bookingEvents(EventBookingConfirmed))
		})
	}
}

func TestResolve_ProviderErrorIsSoftFailure(t *testing.T) {
	b := pendingBooking(9)
	b.PaymentLinkID = "plink_E"
	h := newHarness(b)
	h.provider.fetchErr = &errors.ProviderError{StatusCode: 502, Description: "gateway unavailable"}

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 9})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "Razorpay error: gateway unavailable", res.Error)
	assert.Equal(t, models.BookingPending, res.Status)
	assert.Equal(t, int64(9), res.Booking.ID)
	assert.Equal(t, models.PaymentPending, h.store.get(t, 9).PaymentStatus)
}

func TestResolve_RecoveryListErrorIsSoftFailure(t *testing.T) {
	b := pendingBooking(10)
	b.PaymentLinkURL = "https://rzp.io/l/x"
	h := newHarness(b)
	h.provider.listErr = &errors.ProviderError{Description: "timeout"}

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 10})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Razorpay error: timeout", res.Error)
}

func TestResolve_NoLinkAndNoURL(t *testing.T) {
	h := newHarness(pendingBooking(11))

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 11})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No payment link found for this booking", res.Error)

	_, _, lists := h.provider.calls()
	assert.Zero(t, lists)
}

func TestResolve_LinkReferenceFallback(t *testing.T) {
	b := pendingBooking(12)
	b.ProviderOrderID = "plink_R"
	h := newHarness(b)
	h.provider = newFakeProvider(paidLink("plink_R"))

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{RazorpayOrderID: "plink_R"})
	require.NoError(t, err)
	h.tasks.Wait()

	assert.True(t, res.Success)
	assert.Equal(t, int64(12), res.Booking.ID)
	assert.Equal(t, models.PaymentPaid, h.store.get(t, 12).PaymentStatus)
}

func TestResolve_HardFailures(t *testing.T) {
	t.Run("no identifiers", func(t *testing.T) {
		h := newHarness()
		_, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{RazorpayOrderID: "  "})
		assert.Equal(t, errors.Invalid, errors.KindOf(err))
	})

	t.Run("unknown booking id", func(t *testing.T) {
		h := newHarness()
		_, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 404})
		assert.Equal(t, errors.NotFound, errors.KindOf(err))
	})

	t.Run("unknown reference", func(t *testing.T) {
		h := newHarness(pendingBooking(1))
		_, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{RazorpayOrderID: "order_missing"})
		assert.Equal(t, errors.NotFound, errors.KindOf(err))
	})

	t.Run("credentials missing", func(t *testing.T) {
		b := pendingBooking(1)
		b.PaymentLinkID = "plink_X"
		h := newHarness(b)
		h.provider.configured = false
		_, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 1})
		assert.Equal(t, errors.Config, errors.KindOf(err))
	})

	t.Run("store failure on confirm", func(t *testing.T) {
		b := pendingBooking(1)
		b.PaymentLinkID = "plink_S"
		h := newHarness(b)
		h.provider = newFakeProvider(paidLink("plink_S"))
		h.store.markPaidErr = errors.NewInternalServerError("database unavailable")
		_, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 1})
		assert.Equal(t, errors.Internal, errors.KindOf(err))
	})
}

func TestPickBooking(t *testing.T) {
	a := models.Booking{ID: 1, CreatedAt: bookingCreated}
	b := models.Booking{ID: 2, CreatedAt: bookingCreated.Add(time.Minute)}
	c := models.Booking{ID: 3, CreatedAt: bookingCreated.Add(time.Minute)}

	assert.Equal(t, int64(1), PickBooking([]models.Booking{a, b, c}, config.TieBreakFirst, "ref").ID)
	assert.Equal(t, int64(3), PickBooking([]models.Booking{a, c, b}, config.TieBreakLatest, "ref").ID)
	assert.Equal(t, int64(1), PickBooking([]models.Booking{a}, config.TieBreakLatest, "ref").ID)
}

func TestLinkMatchesBooking(t *testing.T) {
	b := &models.Booking{CustomerEmail: "Traveller@Example.com", Amount: 1234.56}

	assert.True(t, LinkMatchesBooking(&models.PaymentLink{Amount: 123456, Customer: models.LinkCustomer{Email: "traveller@example.com"}}, b))
	assert.False(t, LinkMatchesBooking(&models.PaymentLink{Amount: 123457, Customer: models.LinkCustomer{Email: "traveller@example.com"}}, b))
	assert.False(t, LinkMatchesBooking(&models.PaymentLink{Amount: 123456, Customer: models.LinkCustomer{Email: "other@example.com"}}, b))

	b.PaymentLinkURL = "https://rzp.io/l/abc"
	assert.True(t, LinkMatchesBooking(&models.PaymentLink{ShortURL: "https://rzp.io/l/abc"}, b))
}

func TestToPaiseRoundTrip(t *testing.T) {
	for _, amount := range []float64{0.01, 0.1, 1, 19.99, 4999.5, 123456.78} {
		paise := models.ToPaise(amount)
		assert.Equal(t, paise, models.ToPaise(float64(paise)/100), "amount %v", amount)
	}
}

func TestResolve_UnexpectedProviderStatusUsesBoundedLabel(t *testing.T) {
	metrics.Register()

	b := pendingBooking(78)
	b.PaymentLinkID = "plink_odd"
	h := newHarness(b)
	odd := paidLink("plink_odd")
	odd.Status = "on_hold_7f3a"
	odd.Payments = nil
	h.provider.links[odd.ID] = odd

	res, err := h.resolver(config.TieBreakFirst).Resolve(context.Background(), StatusCheckRequest{BookingID: 78})
	require.NoError(t, err)
	assert.Equal(t, "on_hold_7f3a", res.Status)
	assert.Equal(t, models.PaymentPending, h.store.get(t, 78).PaymentStatus)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `travel_backoffice_payment_resolutions_total{outcome="unknown"}`)
	assert.NotContains(t, body, "on_hold_7f3a")
}
