package razorpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-backoffice/errors"
	"travel-backoffice/models"
)

// rewriteTransport sends every request to the test server regardless of the SDK's base URL.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient(Options{
		KeyID:     "rzp_test_key",
		KeySecret: "secret",
		Timeout:   2 * time.Second,
		Transport: rewriteTransport{target: target},
	})
}

func TestCreatePaymentLink(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"plink_1","short_url":"https://rzp.io/i/abc","order_id":"order_9","status":"created","amount":500000}`)
	})

	link, err := client.CreatePaymentLink(context.Background(), models.CreatePaymentLinkRequest{
		AmountPaise:    500000,
		Currency:       "INR",
		Description:    "Goa package",
		CustomerEmail:  "a@x.com",
		BookingID:      501,
		CallbackURL:    "https://admin.example.com/payment-callback",
		CallbackMethod: "get",
	})
	require.NoError(t, err)
	assert.Equal(t, "plink_1", link.ID)
	assert.Equal(t, "order_9", link.OrderID)
	assert.Equal(t, "https://rzp.io/i/abc", link.ShortURL)

	assert.EqualValues(t, 500000, body["amount"])
	assert.Equal(t, "INR", body["currency"])
	assert.Equal(t, map[string]interface{}{"booking_id": "501"}, body["notes"])
	assert.Equal(t, "https://admin.example.com/payment-callback", body["callback_url"])
}

func TestCreatePaymentLinkWithoutCallback(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"plink_2","short_url":"https://rzp.io/i/def","status":"created","amount":100}`)
	})

	_, err := client.CreatePaymentLink(context.Background(), models.CreatePaymentLinkRequest{
		AmountPaise: 100,
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "callback_url")
	assert.NotContains(t, body, "callback_method")
}

func TestFetchPaymentLinkProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_links/plink_missing", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`)
	})

	_, err := client.FetchPaymentLink(context.Background(), "plink_missing")
	require.Error(t, err)

	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.Contains(t, pe.Description, "does not exist")
	assert.Equal(t, errors.External, errors.KindOf(err))
}

func TestFetchPaymentLinkPaid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"plink_1","status":"paid","payments":[{"payment_id":"pay_9","amount":500000,"status":"captured"}]}`)
	})

	link, err := client.FetchPaymentLink(context.Background(), "plink_1")
	require.NoError(t, err)
	assert.Equal(t, models.LinkPaid, link.Status)
	assert.Equal(t, "pay_9", link.FirstPaymentID())
}

func TestListPaymentLinksSendsWindow(t *testing.T) {
	from := time.Unix(1700000000, 0)
	to := from.Add(2 * time.Hour)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_links", r.URL.Path)
		assert.Equal(t, "1700000000", r.URL.Query().Get("from"))
		assert.Equal(t, "1700007200", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"payment_links":[{"id":"plink_a","short_url":"https://rzp.io/l/abc123","created_at":1700003600}]}`)
	})

	links, err := client.ListPaymentLinks(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "plink_a", links[0].ID)
	assert.Equal(t, int64(1700003600), links[0].CreatedAt)
}

func TestMissingCredentials(t *testing.T) {
	client := NewClient(Options{KeyID: "rzp_test_key"})
	assert.False(t, client.Configured())

	_, err := client.FetchPaymentLink(context.Background(), "plink_1")
	require.Error(t, err)
	assert.Equal(t, errors.Config, errors.KindOf(err))
}

func TestCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchPaymentLink(ctx, "plink_1")
	require.Error(t, err)
	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, pe.StatusCode)
}
