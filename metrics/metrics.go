package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "travel_backoffice"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	paymentLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_links_created_total",
			Help:      "Payment link creation attempts by result.",
		},
		[]string{"result"},
	)

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_resolutions_total",
			Help:      "Payment status checks by outcome.",
		},
		[]string{"outcome"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Provider webhooks by event and result.",
		},
		[]string{"event", "result"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_confirmed_total",
			Help:      "Bookings flipped to Confirmed/Paid by the path that flipped them.",
		},
		[]string{"source"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, paymentLinks, resolutions, webhooks, confirmations)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one served request.
func ObserveHTTP(endpoint string, code string, seconds float64) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
	httpDuration.WithLabelValues(endpoint).Observe(seconds)
}

func IncPaymentLink(result string) {
	paymentLinks.WithLabelValues(result).Inc()
}

func IncResolution(outcome string) {
	resolutions.WithLabelValues(outcome).Inc()
}

func IncWebhook(event, result string) {
	webhooks.WithLabelValues(event, result).Inc()
}

// IncConfirmed counts a booking confirmation. Only the caller that changed the row calls it.
func IncConfirmed(source string) {
	confirmations.WithLabelValues(source).Inc()
}
