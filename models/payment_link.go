package models

import "time"

// Payment-link states reported by the provider
const (
	LinkCreated       = "created"
	LinkPartiallyPaid = "partially_paid"
	LinkPaid          = "paid"
	LinkExpired       = "expired"
	LinkCancelled     = "cancelled"
)

// LinkCustomer is the customer block of a payment link.
type LinkCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// LinkPayment is one payment captured against a payment link.
type LinkPayment struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	CreatedAt int64  `json:"created_at"`
}

// PaymentLink is the provider's hosted checkout page as returned by its API.
type PaymentLink struct {
	ID          string        `json:"id"`
	ShortURL    string        `json:"short_url"`
	OrderID     string        `json:"order_id"`
	Status      string        `json:"status"`
	Amount      int64         `json:"amount"`
	AmountPaid  int64         `json:"amount_paid"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	ReferenceID string        `json:"reference_id"`
	CreatedAt   int64         `json:"created_at"`
	Customer    LinkCustomer  `json:"customer"`
	Payments    []LinkPayment `json:"payments"`
}

// Created returns the creation time reported by the provider.
func (l *PaymentLink) Created() time.Time {
	return time.Unix(l.CreatedAt, 0)
}

// FirstPaymentID returns the id of the first payment record, or "" when none is present.
func (l *PaymentLink) FirstPaymentID() string {
	for _, p := range l.Payments {
		if p.PaymentID != "" {
			return p.PaymentID
		}
	}
	return ""
}

// CreatePaymentLinkRequest is what the issuer sends to the provider.
type CreatePaymentLinkRequest struct {
	AmountPaise    int64
	Currency       string
	Description    string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	BookingID      int64
	CallbackURL    string
	CallbackMethod string
}

// IssuedPaymentLink is returned to the caller after a link is created.
// LinkID and OrderID are distinct provider identifiers and both must be kept.
type IssuedPaymentLink struct {
	URL     string `json:"payment_link"`
	LinkID  string `json:"payment_link_id"`
	OrderID string `json:"razorpay_order_id"`
	Status  string `json:"status"`
}

// WebhookEvent is the envelope of a provider webhook.
type WebhookEvent struct {
	ID        string         `json:"id,omitempty"`
	Event     string         `json:"event"`
	CreatedAt int64          `json:"created_at,omitempty"`
	Contains  []string       `json:"contains,omitempty"`
	Payload   WebhookPayload `json:"payload"`
}

// WebhookPayload carries whichever entities the event embeds.
type WebhookPayload struct {
	PaymentLink *WebhookEntity `json:"payment_link,omitempty"`
	Payment     *WebhookEntity `json:"payment,omitempty"`
	Order       *WebhookEntity `json:"order,omitempty"`
}

// WebhookEntity wraps an entity object.
type WebhookEntity struct {
	Entity EntityFields `json:"entity"`
}

// EntityFields is the union of fields read from payment-link, payment and order entities.
type EntityFields struct {
	ID            string       `json:"id"`
	PaymentLinkID string       `json:"payment_link_id,omitempty"`
	OrderID       string       `json:"order_id,omitempty"`
	ShortURL      string       `json:"short_url,omitempty"`
	Status        string       `json:"status,omitempty"`
	Amount        int64        `json:"amount,omitempty"`
	Email         string       `json:"email,omitempty"`
	Error         *EntityError `json:"error,omitempty"`
}

// EntityError is the failure block on failed payments.
type EntityError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
