package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"travel-backoffice/logger"
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterSink receives messages that could not be published or processed.
type DeadLetterSink interface {
	Store(ctx context.Context, topic, key string, value []byte, errorMsg string) error
}

// Producer publishes JSON events with retries. A nil writer disables publishing.
type Producer struct {
	mu          sync.Mutex
	writer      Writer
	dlq         DeadLetterSink
	attempts    int
	backoff     time.Duration
	isConnected bool
}

// NewWriter creates a writer for the given brokers, or nil when none are configured.
func NewWriter(brokers []string) Writer {
	if len(brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		Async:        false,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewProducer wraps w. dlq may be nil.
func NewProducer(w Writer, dlq DeadLetterSink) *Producer {
	p := &Producer{dlq: dlq, attempts: 3, backoff: time.Second}
	if w != nil {
		p.writer = w
		p.isConnected = true
	}
	return p
}

// WithBackoff overrides the base retry delay.
func (p *Producer) WithBackoff(d time.Duration) *Producer {
	p.backoff = d
	return p
}

// Enabled reports whether a writer is configured.
func (p *Producer) Enabled() bool {
	return p != nil && p.writer != nil
}

// Publish marshals value to JSON and publishes it to topic under key, retrying with
// exponential backoff. After the last failed attempt the message goes to the DLQ.
// Publishing is a no-op when Kafka is disabled.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if !p.Enabled() {
		logger.Debug("Kafka disabled, skipping publish to topic: %s", topic)
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		logger.Error("Error marshaling Kafka message: %v", err)
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(writeCtx, msg)
		cancel()

		if err == nil {
			p.setConnected(true)
			return nil
		}

		lastErr = err
		p.setConnected(false)
		if attempt < p.attempts-1 {
			wait := time.Duration(math.Pow(2, float64(attempt))) * p.backoff
			logger.Warn("Kafka publish attempt %d/%d failed, retrying in %v: %v", attempt+1, p.attempts, wait, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				attempt = p.attempts
			}
		}
	}

	logger.Error("Kafka publish to %s failed after %d attempts: %v", topic, p.attempts, lastErr)
	if p.dlq != nil {
		if dlqErr := p.dlq.Store(context.WithoutCancel(ctx), topic, key, payload, lastErr.Error()); dlqErr != nil {
			logger.Error("Failed to send message to DLQ: %v", dlqErr)
		}
	}
	return lastErr
}

// Republish writes an already encoded payload once. Used when replaying dead letters, so a
// failure is returned to the caller instead of being dead-lettered again.
func (p *Producer) Republish(ctx context.Context, topic, key string, payload []byte) error {
	if !p.Enabled() {
		return fmt.Errorf("kafka is disabled")
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := p.writer.WriteMessages(writeCtx, kafka.Message{Topic: topic, Key: []byte(key), Value: payload})
	p.setConnected(err == nil)
	return err
}

func (p *Producer) setConnected(v bool) {
	p.mu.Lock()
	p.isConnected = v
	p.mu.Unlock()
}

// IsConnected returns true if the last publish succeeded.
func (p *Producer) IsConnected() bool {
	if !p.Enabled() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isConnected
}

// Close gracefully closes the writer.
func (p *Producer) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}

// EnsureTopics creates the topics in the background, retrying while brokers come up.
func EnsureTopics(brokers []string, topics []string) {
	if len(brokers) == 0 {
		return
	}
	go func() {
		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * time.Second)

			conn, err := kafka.Dial("tcp", brokers[0])
			if err != nil {
				if attempt == maxRetries-1 {
					logger.Warn("Could not connect to Kafka broker for topic creation after %d attempts: %v", maxRetries, err)
				}
				continue
			}

			ready := 0
			for _, topic := range topics {
				err := conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
				if err == nil || strings.Contains(err.Error(), "already exists") {
					ready++
				}
			}
			conn.Close()

			if ready == len(topics) {
				logger.Info("Kafka topics ready: %v", topics)
				return
			}
		}
	}()
}
