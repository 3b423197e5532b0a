// Package razorpay adapts the Razorpay SDK to the payment-link operations the booking flow needs.
package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/razorpay/razorpay-go"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
	"travel-backoffice/models"
)

// Options configures the adapter. Transport is optional and only replaced in tests.
type Options struct {
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client issues, fetches and lists payment links.
type Client struct {
	opts Options
}

// NewClient builds the adapter. Missing credentials are reported per call, not here.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &Client{opts: opts}
}

// Configured reports whether both API credentials are present.
func (c *Client) Configured() bool {
	return c.opts.KeyID != "" && c.opts.KeySecret != ""
}

// recordingTransport binds outgoing requests to the caller's context and remembers the
// status of the last response, which the SDK does not expose.
type recordingTransport struct {
	ctx  context.Context
	base http.RoundTripper

	mu     sync.Mutex
	status int
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if resp != nil {
		t.mu.Lock()
		t.status = resp.StatusCode
		t.mu.Unlock()
	}
	return resp, err
}

func (t *recordingTransport) lastStatus() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// sdk returns a client whose HTTP traffic goes through a fresh recordingTransport.
func (c *Client) sdk(ctx context.Context) (*razorpay.Client, *recordingTransport, error) {
	if !c.Configured() {
		return nil, nil, errors.NewConfigError("Razorpay credentials not configured")
	}

	rt := &recordingTransport{ctx: ctx, base: c.opts.Transport}
	client := razorpay.NewClient(c.opts.KeyID, c.opts.KeySecret)
	client.Request.HTTPClient = &http.Client{Transport: rt, Timeout: c.opts.Timeout}
	return client, rt, nil
}

func providerError(ctx context.Context, rt *recordingTransport, err error) error {
	if ctx.Err() != nil {
		return &errors.ProviderError{Description: "request to Razorpay timed out or was cancelled"}
	}
	return &errors.ProviderError{StatusCode: rt.lastStatus(), Description: err.Error()}
}

// decode converts the SDK's generic map into a typed value.
func decode(src map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// CreatePaymentLink creates a hosted payment link.
func (c *Client) CreatePaymentLink(ctx context.Context, req models.CreatePaymentLinkRequest) (*models.PaymentLink, error) {
	client, rt, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":      req.AmountPaise,
		"currency":    req.Currency,
		"description": req.Description,
		"customer": map[string]interface{}{
			"name":    req.CustomerName,
			"email":   req.CustomerEmail,
			"contact": req.CustomerPhone,
		},
		"notify": map[string]interface{}{
			"sms":   req.CustomerPhone != "",
			"email": true,
		},
		"reminder_enable": true,
	}
	if req.BookingID > 0 {
		id := strconv.FormatInt(req.BookingID, 10)
		data["reference_id"] = fmt.Sprintf("booking_%s_%d", id, time.Now().Unix())
		data["notes"] = map[string]interface{}{"booking_id": id}
	}
	if req.CallbackURL != "" {
		data["callback_url"] = req.CallbackURL
		data["callback_method"] = req.CallbackMethod
	}

	resp, err := client.PaymentLink.Create(data, nil)
	if err != nil {
		logger.Error("Razorpay payment link creation failed: %v", err)
		return nil, providerError(ctx, rt, err)
	}

	var link models.PaymentLink
	if err := decode(resp, &link); err != nil {
		return nil, errors.E(errors.External, "unexpected payment link response", err)
	}
	return &link, nil
}

// FetchPaymentLink returns the current state of a payment link.
func (c *Client) FetchPaymentLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	client, rt, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.PaymentLink.Fetch(id, nil, nil)
	if err != nil {
		return nil, providerError(ctx, rt, err)
	}

	var link models.PaymentLink
	if err := decode(resp, &link); err != nil {
		return nil, errors.E(errors.External, "unexpected payment link response", err)
	}
	return &link, nil
}

// ListPaymentLinks returns the links created in [from, to], in the provider's order.
func (c *Client) ListPaymentLinks(ctx context.Context, from, to time.Time) ([]models.PaymentLink, error) {
	client, rt, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.PaymentLink.All(map[string]interface{}{
		"from": from.Unix(),
		"to":   to.Unix(),
	}, nil)
	if err != nil {
		return nil, providerError(ctx, rt, err)
	}

	var page struct {
		PaymentLinks []models.PaymentLink `json:"payment_links"`
	}
	if err := decode(resp, &page); err != nil {
		return nil, errors.E(errors.External, "unexpected payment link list response", err)
	}
	return page.PaymentLinks, nil
}
