package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	resp "travel-backoffice/http/response"
	"travel-backoffice/logger"
	"travel-backoffice/services/kafka"
	"travel-backoffice/utils"
)

// DLQAdmin is satisfied by *kafka.DLQStore.
type DLQAdmin interface {
	List(ctx context.Context, limit int) ([]kafka.DLQMessage, error)
	Resolve(ctx context.Context, messageID, notes string) error
	Stats(ctx context.Context) (kafka.DLQStats, error)
}

// DLQRetrier is satisfied by *kafka.Retrier.
type DLQRetrier interface {
	Retry(ctx context.Context, messageID string) (bool, error)
}

// DLQHandler exposes the dead-letter table to operators.
type DLQHandler struct {
	store   DLQAdmin
	retrier DLQRetrier
}

func NewDLQHandler(store DLQAdmin, retrier DLQRetrier) *DLQHandler {
	return &DLQHandler{store: store, retrier: retrier}
}

// GetDLQMessages retrieves unresolved DLQ messages
// GET /api/dlq/messages?limit=50
func (h *DLQHandler) GetDLQMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	messages, err := h.store.List(r.Context(), utils.ParseLimit(r, 50))
	if err != nil {
		logger.Error("Error fetching DLQ messages: %v", err)
		resp.ErrorResponse(w, http.StatusInternalServerError, "Failed to fetch DLQ messages")
		return
	}
	if messages == nil {
		messages = []kafka.DLQMessage{}
	}

	resp.SuccessResponse(w, http.StatusOK, "DLQ messages retrieved", map[string]interface{}{
		"count": len(messages),
		"data":  messages,
	})
}

// RetryDLQMessage replays one DLQ message
// POST /api/dlq/messages/retry?id=
func (h *DLQHandler) RetryDLQMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	messageID := r.URL.Query().Get("id")
	if messageID == "" {
		resp.ErrorResponse(w, http.StatusBadRequest, "Missing message ID parameter")
		return
	}

	ok, err := h.retrier.Retry(r.Context(), messageID)
	if err != nil {
		logger.Error("Error retrying DLQ message %s: %v", messageID, err)
		resp.Error(w, err)
		return
	}
	if !ok {
		resp.ErrorResponse(w, http.StatusBadGateway, "Retry failed, message kept in DLQ")
		return
	}

	resp.SuccessResponse(w, http.StatusOK, "Message retried", map[string]interface{}{
		"messageId": messageID,
	})
}

// ResolveDLQMessage marks a DLQ message as resolved
// POST /api/dlq/messages/resolve?id=
func (h *DLQHandler) ResolveDLQMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	messageID := r.URL.Query().Get("id")
	if messageID == "" {
		resp.ErrorResponse(w, http.StatusBadRequest, "Missing message ID parameter")
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Notes == "" {
		req.Notes = "Manually resolved"
	}

	if err := h.store.Resolve(r.Context(), messageID, req.Notes); err != nil {
		logger.Error("Error resolving DLQ message %s: %v", messageID, err)
		resp.Error(w, err)
		return
	}

	resp.SuccessResponse(w, http.StatusOK, "Message marked as resolved", map[string]interface{}{
		"messageId": messageID,
	})
}

// GetDLQStats retrieves statistics about DLQ messages
// GET /api/dlq/stats
func (h *DLQHandler) GetDLQStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		resp.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		logger.Error("Error fetching DLQ statistics: %v", err)
		resp.ErrorResponse(w, http.StatusInternalServerError, "Failed to fetch DLQ statistics")
		return
	}

	resp.SuccessResponse(w, http.StatusOK, "DLQ statistics", stats)
}
