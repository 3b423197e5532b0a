package handlers

import (
	"context"
	"net/http"
	"time"

	resp "travel-backoffice/http/response"
	"travel-backoffice/logger"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Healthz reports that the process is serving.
// GET /healthz
func Healthz(w http.ResponseWriter, _ *http.Request) {
	resp.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the database answers within two seconds.
// GET /readyz
func Readyz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Warn("Readiness check failed: %v", err)
			resp.SendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		resp.SendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
