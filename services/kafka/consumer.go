package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"travel-backoffice/logger"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventHandler processes one decoded event. The raw message is passed along for handlers that
// decode into their own types.
type EventHandler func(ctx context.Context, event map[string]interface{}, raw []byte) error

// NewReader creates a consumer-group reader for topic, or nil when no brokers are configured.
func NewReader(brokers []string, topic, groupID string) Reader {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          groupID,
		StartOffset:      kafka.LastOffset,
		CommitInterval:   time.Second,
		MaxBytes:         10e6,
		SessionTimeout:   20 * time.Second,
		ReadBackoffMin:   100 * time.Millisecond,
		ReadBackoffMax:   time.Second,
		QueueCapacity:    100,
		RebalanceTimeout: 60 * time.Second,
	})
}

// Consumer routes messages to handlers by their "event" field. Failures go to the DLQ.
type Consumer struct {
	reader Reader
	dlq    DeadLetterSink

	mu       sync.RWMutex
	handlers map[string]EventHandler
	running  bool
}

func NewConsumer(r Reader, dlq DeadLetterSink) *Consumer {
	return &Consumer{reader: r, dlq: dlq, handlers: map[string]EventHandler{}}
}

// Register binds a handler to an event type.
func (c *Consumer) Register(event string, fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
	logger.Info("Kafka handler registered for %s", event)
}

// Run reads until ctx is cancelled. It returns immediately when no reader is configured.
func (c *Consumer) Run(ctx context.Context) {
	if c.reader == nil {
		logger.Info("Kafka consumer is disabled")
		return
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		logger.Warn("Consumer already running")
		return
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logger.Info("Kafka consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Kafka consumer stopped")
				return
			}
			if strings.Contains(err.Error(), "Group Coordinator Not Available") {
				time.Sleep(500 * time.Millisecond)
				continue
			}
			logger.Warn("Kafka read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		c.Handle(ctx, msg)
	}
}

// IsRunning reports whether Run is active.
func (c *Consumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Handle processes one message and reports whether it succeeded. Failed messages are
// dead-lettered.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) bool {
	if err := c.dispatch(ctx, msg); err != nil {
		logger.Error("Kafka message on %s failed: %v", msg.Topic, err)
		if c.dlq != nil {
			if dlqErr := c.dlq.Store(ctx, msg.Topic, string(msg.Key), msg.Value, err.Error()); dlqErr != nil {
				logger.Error("Failed to dead-letter message: %v", dlqErr)
			}
		}
		return false
	}
	return true
}

// Reprocess runs a message through the handlers without dead-lettering it again.
func (c *Consumer) Reprocess(ctx context.Context, msg kafka.Message) error {
	return c.dispatch(ctx, msg)
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) error {
	var event map[string]interface{}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	eventType, _ := event["event"].(string)
	if eventType == "" {
		eventType, _ = event["event_type"].(string)
	}
	if eventType == "" {
		return fmt.Errorf("message does not contain a valid event type")
	}

	c.mu.RLock()
	fn, ok := c.handlers[eventType]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := fn(ctx, event, msg.Value); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// Close closes the reader.
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
