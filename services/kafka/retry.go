package kafka

import (
	"context"
	"time"

	"travel-backoffice/logger"
)

// Retrier replays dead letters. Messages from consumed topics go back through the consumer's
// handlers; messages that never reached the broker are published again.
type Retrier struct {
	store    *DLQStore
	consumer *Consumer
	producer *Producer
	consumed map[string]bool
}

func NewRetrier(store *DLQStore, consumer *Consumer, producer *Producer, consumedTopics ...string) *Retrier {
	consumed := make(map[string]bool, len(consumedTopics))
	for _, t := range consumedTopics {
		consumed[t] = true
	}
	return &Retrier{store: store, consumer: consumer, producer: producer, consumed: consumed}
}

// Retry replays one message and reports whether it succeeded. The attempt is always counted.
func (r *Retrier) Retry(ctx context.Context, messageID string) (bool, error) {
	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return false, err
	}

	var replayErr error
	if r.consumed[msg.Topic] && r.consumer != nil {
		replayErr = r.consumer.Reprocess(ctx, msg)
	} else {
		replayErr = r.producer.Republish(ctx, msg.Topic, string(msg.Key), msg.Value)
	}

	ok := replayErr == nil
	if !ok {
		logger.Warn("DLQ message %s retry failed: %v", messageID, replayErr)
	}
	if err := r.store.MarkRetried(ctx, messageID, ok, "Retried successfully"); err != nil {
		return ok, err
	}
	return ok, nil
}

// RunAutoRetry replays retryable messages every interval until ctx is cancelled.
func (r *Retrier) RunAutoRetry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("DLQ auto-retry started (every %v)", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("DLQ auto-retry stopped")
			return
		case <-ticker.C:
			r.retryBatch(ctx)
		}
	}
}

func (r *Retrier) retryBatch(ctx context.Context) {
	ids, err := r.store.Retryable(ctx, 10)
	if err != nil {
		logger.Error("DLQ auto-retry query failed: %v", err)
		return
	}

	resolved := 0
	for _, id := range ids {
		ok, err := r.Retry(ctx, id)
		if err != nil {
			logger.Error("DLQ auto-retry of %s failed: %v", id, err)
			continue
		}
		if ok {
			resolved++
		}
	}
	if len(ids) > 0 {
		logger.Info("DLQ auto-retry processed %d messages, %d resolved", len(ids), resolved)
	}
}
