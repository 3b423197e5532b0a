package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-backoffice/errors"
	"travel-backoffice/models"
	"travel-backoffice/services"
)

type stubIssuer struct {
	got  services.PaymentLinkRequest
	link *models.IssuedPaymentLink
	err  error
}

func (s *stubIssuer) Issue(_ context.Context, req services.PaymentLinkRequest) (*models.IssuedPaymentLink, error) {
	s.got = req
	return s.link, s.err
}

type stubResolver struct {
	got    services.StatusCheckRequest
	result *services.StatusResult
	err    error
}

func (s *stubResolver) Resolve(_ context.Context, req services.StatusCheckRequest) (*services.StatusResult, error) {
	s.got = req
	return s.result, s.err
}

type stubCallbacks struct {
	got    services.CallbackParams
	target string
}

func (s *stubCallbacks) Handle(_ context.Context, p services.CallbackParams) string {
	s.got = p
	return s.target
}

type stubWebhooks struct {
	got services.WebhookDelivery
	err error
}

func (s *stubWebhooks) Handle(_ context.Context, d services.WebhookDelivery) (*services.WebhookResult, error) {
	s.got = d
	if s.err != nil {
		return nil, s.err
	}
	return &services.WebhookResult{EventID: d.EventID, Status: "PROCESSED"}, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreatePaymentLink(t *testing.T) {
	issuer := &stubIssuer{link: &models.IssuedPaymentLink{URL: "https://rzp.io/l/x", LinkID: "plink_x", OrderID: "order_x", Status: "created"}}
	h := NewPaymentHandler(issuer, nil, nil, nil)

	body := `{"amount": 2500, "customer_email": "a@example.com", "booking_id": "17"}`
	rec := httptest.NewRecorder()
	h.CreatePaymentLink(rec, httptest.NewRequest(http.MethodPost, "/payment-link", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(17), int64(issuer.got.BookingID))
	assert.Equal(t, 2500.0, issuer.got.Amount)

	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "https://rzp.io/l/x", out["payment_link"])
	assert.Equal(t, "plink_x", out["payment_link_id"])
	assert.Equal(t, "plink_x", out["order_id"])
	assert.Equal(t, "order_x", out["razorpay_order_id"])
}

func TestCreatePaymentLinkErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest, "invalid JSON body"},
		{"validation", `{}`, errors.NewInvalidParamsError("amount is required"), http.StatusBadRequest, "amount is required"},
		{"credentials missing", `{}`, errors.NewConfigError("Razorpay credentials not configured"), http.StatusInternalServerError, "Razorpay credentials not configured"},
		{"provider rejection", `{}`, &errors.ProviderError{StatusCode: 400, Description: "invalid amount"}, http.StatusBadRequest, "invalid amount"},
		{"provider unreachable", `{}`, &errors.ProviderError{Description: "dial tcp: timeout"}, http.StatusBadGateway, "dial tcp: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentHandler(&stubIssuer{err: tt.err}, nil, nil, nil)
			rec := httptest.NewRecorder()
			h.CreatePaymentLink(rec, httptest.NewRequest(http.MethodPost, "/payment-link", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, rec.Code)
			out := decodeBody(t, rec)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tt.msg, out["error"])
		})
	}

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewPaymentHandler(&stubIssuer{}, nil, nil, nil).CreatePaymentLink(rec, httptest.NewRequest(http.MethodGet, "/payment-link", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestCheckPaymentStatus(t *testing.T) {
	t.Run("soft failure is 200", func(t *testing.T) {
		resolver := &stubResolver{result: &services.StatusResult{
			Success: false,
			Status:  models.BookingPending,
			Error:   "Razorpay error: The id provided does not exist",
			Booking: &models.BookingSummary{ID: 502, Status: models.BookingPending, PaymentStatus: models.PaymentPending},
		}}
		h := NewPaymentHandler(nil, resolver, nil, nil)

		rec := httptest.NewRecorder()
		h.CheckPaymentStatus(rec, httptest.NewRequest(http.MethodPost, "/payment-status-check", strings.NewReader(`{"bookingId": 502}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(502), resolver.got.BookingID)
		out := decodeBody(t, rec)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "Pending", out["status"])
		assert.Equal(t, "Razorpay error: The id provided does not exist", out["error"])
		booking := out["booking"].(map[string]interface{})
		assert.Equal(t, float64(502), booking["id"])
	})

	t.Run("reference lookup", func(t *testing.T) {
		resolver := &stubResolver{result: &services.StatusResult{Success: true, Status: "paid"}}
		rec := httptest.NewRecorder()
		NewPaymentHandler(nil, resolver, nil, nil).CheckPaymentStatus(rec,
			httptest.NewRequest(http.MethodPost, "/payment-status-check", strings.NewReader(`{"razorpayOrderId": "plink_1"}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "plink_1", resolver.got.RazorpayOrderID)
		assert.Zero(t, resolver.got.BookingID)
	})

	t.Run("not found", func(t *testing.T) {
		resolver := &stubResolver{err: errors.NewNotFoundError("booking 9 not found")}
		rec := httptest.NewRecorder()
		NewPaymentHandler(nil, resolver, nil, nil).CheckPaymentStatus(rec,
			httptest.NewRequest(http.MethodPost, "/payment-status-check", strings.NewReader(`{"bookingId": "9"}`)))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "booking 9 not found", decodeBody(t, rec)["error"])
	})
}

func TestPaymentCallbackRedirects(t *testing.T) {
	callbacks := &stubCallbacks{target: "https://trips.example.com/payment-failed"}
	h := NewPaymentHandler(nil, nil, callbacks, nil)

	url := "/payment-callback?razorpay_payment_link_id=plink_1&razorpay_payment_id=pay_1&razorpay_payment_link_reference_id=r&razorpay_payment_link_status=failed"
	rec := httptest.NewRecorder()
	h.PaymentCallback(rec, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://trips.example.com/payment-failed", rec.Header().Get("Location"))
	assert.Equal(t, "plink_1", callbacks.got.LinkID)
	assert.Equal(t, "failed", callbacks.got.Status)
}

func TestPaymentWebhook(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		webhooks := &stubWebhooks{}
		h := NewPaymentHandler(nil, nil, nil, webhooks)

		req := httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(`{"event":"payment_link.paid"}`))
		req.Header.Set("X-Razorpay-Signature", "sig")
		req.Header.Set("X-Razorpay-Event-Id", "evt_1")
		rec := httptest.NewRecorder()
		h.PaymentWebhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		assert.Equal(t, `{"event":"payment_link.paid"}`, string(webhooks.got.Body))
		assert.Equal(t, "sig", webhooks.got.Signature)
		assert.Equal(t, "evt_1", webhooks.got.EventID)
	})

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad signature", errors.NewUnauthorizedError("invalid webhook signature"), http.StatusUnauthorized},
		{"bad payload", errors.NewInvalidParamsError("invalid payload format"), http.StatusBadRequest},
		{"store failure", errors.NewInternalServerError("database unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentHandler(nil, nil, nil, &stubWebhooks{err: tt.err})
			rec := httptest.NewRecorder()
			h.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(`{}`)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
