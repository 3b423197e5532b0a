package http

import (
	"net/http"

	"travel-backoffice/http/handlers"
	"travel-backoffice/http/middleware"
	"travel-backoffice/metrics"
)

// Deps are the handlers the router mounts. DLQ is nil when Kafka is disabled.
type Deps struct {
	Payments    *handlers.PaymentHandler
	Bookings    *handlers.BookingHandler
	DLQ         *handlers.DLQHandler
	DB          handlers.Pinger
	StatusLimit *middleware.RateLimiter
}

// NewRouter configures all HTTP routes and middleware
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, middleware.Instrument(pattern, middleware.EnableCORS(h)))
	}

	// Payment APIs
	route("/payment-link", d.Payments.CreatePaymentLink)
	route("/payment-status-check", d.StatusLimit.Limit(d.Payments.CheckPaymentStatus))
	route("/payment-callback", d.Payments.PaymentCallback)
	route("/payment-webhook", d.Payments.PaymentWebhook)

	// Booking APIs
	route("/bookings", d.Bookings.Bookings)
	route("/booking", d.Bookings.GetBooking)
	route("/bookings/export", d.Bookings.ExportBookings)
	route("/bookings/import", d.Bookings.ImportBookings)

	// DLQ Management APIs
	if d.DLQ != nil {
		route("/api/dlq/messages", d.DLQ.GetDLQMessages)
		route("/api/dlq/messages/retry", d.DLQ.RetryDLQMessage)
		route("/api/dlq/messages/resolve", d.DLQ.ResolveDLQMessage)
		route("/api/dlq/stats", d.DLQ.GetDLQStats)
	}

	mux.HandleFunc("/healthz", handlers.Healthz)
	if d.DB != nil {
		mux.HandleFunc("/readyz", handlers.Readyz(d.DB))
	}
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
