package handlers

import (
	"context"
	"net/http"
	"strings"

	resp "travel-backoffice/http/response"
	"travel-backoffice/logger"
	"travel-backoffice/models"
	"travel-backoffice/services"
	"travel-backoffice/utils"
)

// PaymentLinkIssuer is satisfied by *services.Issuer.
type PaymentLinkIssuer interface {
	Issue(ctx context.Context, req services.PaymentLinkRequest) (*models.IssuedPaymentLink, error)
}

// StatusResolver is satisfied by *services.Resolver.
type StatusResolver interface {
	Resolve(ctx context.Context, req services.StatusCheckRequest) (*services.StatusResult, error)
}

// CallbackProcessor is satisfied by *services.CallbackService.
type CallbackProcessor interface {
	Handle(ctx context.Context, p services.CallbackParams) string
}

// WebhookProcessor is satisfied by *services.WebhookService.
type WebhookProcessor interface {
	Handle(ctx context.Context, d services.WebhookDelivery) (*services.WebhookResult, error)
}

// PaymentHandler serves the payment-link, status-check, callback and webhook endpoints.
type PaymentHandler struct {
	issuer    PaymentLinkIssuer
	resolver  StatusResolver
	callbacks CallbackProcessor
	webhooks  WebhookProcessor
}

func NewPaymentHandler(issuer PaymentLinkIssuer, resolver StatusResolver, callbacks CallbackProcessor, webhooks WebhookProcessor) *PaymentHandler {
	return &PaymentHandler{issuer: issuer, resolver: resolver, callbacks: callbacks, webhooks: webhooks}
}

type paymentLinkResponse struct {
	Success         bool   `json:"success"`
	PaymentLink     string `json:"payment_link"`
	PaymentLinkID   string `json:"payment_link_id"`
	OrderID         string `json:"order_id"`
	RazorpayOrderID string `json:"razorpay_order_id"`
	Status          string `json:"status,omitempty"`
}

// CreatePaymentLink issues a hosted payment link.
// POST /payment-link
func (h *PaymentHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req services.PaymentLinkRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		resp.PaymentFailure(w, err)
		return
	}

	link, err := h.issuer.Issue(r.Context(), req)
	if err != nil {
		resp.PaymentFailure(w, err)
		return
	}

	// order_id carries the payment link id for older clients
	resp.SendJSON(w, http.StatusOK, paymentLinkResponse{
		Success:         true,
		PaymentLink:     link.URL,
		PaymentLinkID:   link.LinkID,
		OrderID:         link.LinkID,
		RazorpayOrderID: link.OrderID,
		Status:          link.Status,
	})
}

type statusCheckBody struct {
	BookingID       utils.FlexibleID `json:"bookingId"`
	RazorpayOrderID string           `json:"razorpayOrderId"`
}

// CheckPaymentStatus resolves a booking's payment state. Provider failures are answered with
// 200 and success=false so polling clients keep polling.
// POST /payment-status-check
func (h *PaymentHandler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body statusCheckBody
	if err := utils.DecodeJSONRequest(r, &body); err != nil {
		resp.PaymentFailure(w, err)
		return
	}

	result, err := h.resolver.Resolve(r.Context(), services.StatusCheckRequest{
		BookingID:       int64(body.BookingID),
		RazorpayOrderID: body.RazorpayOrderID,
	})
	if err != nil {
		resp.PaymentFailure(w, err)
		return
	}
	resp.SendJSON(w, http.StatusOK, result)
}

// PaymentCallback redirects the buyer to the success or failure page.
// GET /payment-callback
func (h *PaymentHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target := h.callbacks.Handle(r.Context(), services.CallbackParamsFromQuery(r.URL.Query()))
	http.Redirect(w, r, target, http.StatusFound)
}

// PaymentWebhook receives provider events. Signature failures answer 401, processing failures
// 5xx so the provider retries.
// POST /payment-webhook
func (h *PaymentHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := utils.ReadBody(r)
	if err != nil {
		resp.PaymentFailure(w, err)
		return
	}

	result, err := h.webhooks.Handle(r.Context(), services.WebhookDelivery{
		Body:      body,
		Signature: strings.TrimSpace(r.Header.Get("X-Razorpay-Signature")),
		EventID:   strings.TrimSpace(r.Header.Get("X-Razorpay-Event-Id")),
	})
	if err != nil {
		resp.PaymentFailure(w, err)
		return
	}

	logger.Debug("[WEBHOOK] %s (%s) handled with status %s", result.Event, result.EventID, result.Status)
	resp.SendJSON(w, http.StatusOK, map[string]bool{"success": true})
}
