package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"travel-backoffice/http/response"
	"travel-backoffice/logger"
	"travel-backoffice/metrics"
)

// EnableCORS answers preflight requests and sets the CORS headers on every response.
func EnableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Razorpay-Signature, X-Razorpay-Event-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument logs each request and records it under endpoint in the HTTP metrics.
func Instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		dur := time.Since(start)

		metrics.ObserveHTTP(endpoint, strconv.Itoa(recorder.status), dur.Seconds())
		logger.Info("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	}
}

// RateLimiter keeps one token bucket per client address. X-Forwarded-For is only read when
// the peer is a trusted proxy.
type RateLimiter struct {
	limiters sync.Map // map[string]*clientLimiter
	rps      float64
	burst    int
	trusted  []*net.IPNet
	now      func() time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter returns a limiter allowing rps requests per second per client. rps <= 0
// disables limiting. trustedProxies holds IPs or CIDRs of reverse proxies in front of us.
func NewRateLimiter(rps float64, burst int, trustedProxies ...string) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	l := &RateLimiter{rps: rps, burst: burst, now: time.Now}
	for _, p := range trustedProxies {
		if n := parseNet(p); n != nil {
			l.trusted = append(l.trusted, n)
		} else {
			logger.Warn("Ignoring invalid trusted proxy %q", p)
		}
	}
	return l
}

func parseNet(s string) *net.IPNet {
	s = strings.TrimSpace(s)
	if _, n, err := net.ParseCIDR(s); err == nil {
		return n
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	bits := 128
	if ip.To4() != nil {
		ip, bits = ip.To4(), 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

// Limit rejects requests over the client's allowance with 429.
func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.rps <= 0 {
			next(w, r)
			return
		}
		if !l.getLimiter(l.clientKey(r)).Allow() {
			response.SendJSON(w, http.StatusTooManyRequests, response.PaymentError{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := l.now().UnixNano()
	if v, ok := l.limiters.Load(key); ok {
		c := v.(*clientLimiter)
		c.lastSeen.Store(now)
		return c.lim
	}

	c := &clientLimiter{lim: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
	c.lastSeen.Store(now)
	actual, loaded := l.limiters.LoadOrStore(key, c)
	if loaded {
		c = actual.(*clientLimiter)
		c.lastSeen.Store(now)
	}
	return c.lim
}

// Sweep drops clients not seen for idle and returns how many were removed.
func (l *RateLimiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()
	removed := 0
	l.limiters.Range(func(k, v interface{}) bool {
		if v.(*clientLimiter).lastSeen.Load() < cutoff {
			l.limiters.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *RateLimiter) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	if l == nil || l.rps <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(idle); n > 0 {
				logger.Debug("Rate limiter dropped %d idle clients", n)
			}
		}
	}
}

func (l *RateLimiter) isTrusted(ip net.IP) bool {
	for _, n := range l.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientKey is the peer address, or the nearest untrusted X-Forwarded-For hop when the peer
// is a trusted proxy.
func (l *RateLimiter) clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	peer := net.ParseIP(host)
	if peer == nil || !l.isTrusted(peer) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		if !l.isTrusted(ip) {
			return ip.String()
		}
	}
	return host
}
