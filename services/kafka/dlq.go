package kafka

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"travel-backoffice/errors"
	"travel-backoffice/logger"
)

// DLQMessage is a dead-lettered message as stored in Postgres.
type DLQMessage struct {
	ID           int64           `json:"id"`
	MessageID    string          `json:"message_id"`
	Topic        string          `json:"topic"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"error_message"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DLQStats summarises the dead-letter table.
type DLQStats struct {
	Total      int `json:"total_dlq_messages"`
	Unresolved int `json:"unresolved_messages"`
	Resolved   int `json:"resolved_messages"`
}

// DLQStore persists dead-lettered messages and optionally mirrors them to a Kafka topic.
type DLQStore struct {
	db *sql.DB

	mu     sync.Mutex
	writer Writer
	topic  string
}

func NewDLQStore(db *sql.DB) *DLQStore {
	return &DLQStore{db: db}
}

// WithTopic mirrors stored messages to topic through w.
func (s *DLQStore) WithTopic(w Writer, topic string) *DLQStore {
	s.writer = w
	s.topic = topic
	return s
}

// Store records the message. Mirroring to the DLQ topic is attempted once; a missing topic
// disables further mirroring.
func (s *DLQStore) Store(ctx context.Context, topic, key string, value []byte, errorMsg string) error {
	s.mirror(ctx, topic, key, value, errorMsg)

	if !json.Valid(value) {
		wrapped, _ := json.Marshal(map[string]string{"raw": string(value)})
		value = wrapped
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dlq_messages (message_id, topic, key, value, error_message)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (message_id) DO NOTHING`,
		uuid.NewString(), topic, key, string(value), errorMsg)
	if err != nil {
		logger.Error("Error storing DLQ message in database: %v", err)
		return errors.E(errors.Internal, "error storing DLQ message", err)
	}

	logger.Info("DLQ message stored. Topic: %s, Key: %s", topic, key)
	return nil
}

func (s *DLQStore) mirror(ctx context.Context, topic, key string, value []byte, errorMsg string) {
	s.mu.Lock()
	w, dlqTopic := s.writer, s.topic
	s.mu.Unlock()
	if w == nil || dlqTopic == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"original_topic": topic,
		"original_key":   key,
		"original_value": string(value),
		"error_message":  errorMsg,
		"timestamp":      time.Now().Unix(),
	})
	if err != nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = w.WriteMessages(writeCtx, kafka.Message{Topic: dlqTopic, Key: []byte(key), Value: payload})
	if err == nil {
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "unknown topic") {
		logger.Warn("DLQ topic missing on broker; disabling DLQ mirroring: %v", err)
		s.mu.Lock()
		s.writer = nil
		s.mu.Unlock()
		return
	}
	logger.Warn("DLQ publish failed, storing to DB only: %v", err)
}

// List returns unresolved messages, newest first.
func (s *DLQStore) List(ctx context.Context, limit int) ([]DLQMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, topic, key, value, error_message, retry_count, created_at
		FROM dlq_messages
		WHERE resolved = FALSE
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.E(errors.Internal, "error querying DLQ messages", err)
	}
	defer rows.Close()

	messages := []DLQMessage{}
	for rows.Next() {
		var m DLQMessage
		var value []byte
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Topic, &m.Key, &value, &m.ErrorMessage, &m.RetryCount, &m.CreatedAt); err != nil {
			return nil, errors.E(errors.Internal, "error scanning DLQ message", err)
		}
		m.Value = json.RawMessage(value)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.Internal, "error iterating DLQ messages", err)
	}
	return messages, nil
}

// Get loads one message for reprocessing.
func (s *DLQStore) Get(ctx context.Context, messageID string) (kafka.Message, error) {
	var value []byte
	var topic, key string
	err := s.db.QueryRowContext(ctx,
		"SELECT value, topic, key FROM dlq_messages WHERE message_id = $1", messageID).Scan(&value, &topic, &key)
	if err == sql.ErrNoRows {
		return kafka.Message{}, errors.NewNotFoundError("DLQ message not found")
	}
	if err != nil {
		return kafka.Message{}, errors.E(errors.Internal, "error retrieving DLQ message", err)
	}
	return kafka.Message{Topic: topic, Key: []byte(key), Value: value}, nil
}

// MarkRetried bumps the retry counter and resolves the message when the retry succeeded.
func (s *DLQStore) MarkRetried(ctx context.Context, messageID string, succeeded bool, note string) error {
	query := `
		UPDATE dlq_messages
		SET retry_count = retry_count + 1, last_retry_at = NOW()
		WHERE message_id = $1`
	args := []interface{}{messageID}
	if succeeded {
		query = `
			UPDATE dlq_messages
			SET retry_count = retry_count + 1, last_retry_at = NOW(), resolved = TRUE, resolved_at = NOW(), notes = $2
			WHERE message_id = $1`
		args = append(args, note)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.E(errors.Internal, "error updating DLQ message", err)
	}
	return nil
}

// Resolve marks a message as handled without reprocessing it.
func (s *DLQStore) Resolve(ctx context.Context, messageID, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dlq_messages
		SET resolved = TRUE, resolved_at = NOW(), notes = $2
		WHERE message_id = $1`, messageID, notes)
	if err != nil {
		return errors.E(errors.Internal, "error resolving DLQ message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("DLQ message not found")
	}
	logger.Info("DLQ message %s marked as resolved", messageID)
	return nil
}

// Stats counts total, unresolved and resolved messages.
func (s *DLQStore) Stats(ctx context.Context) (DLQStats, error) {
	var st DLQStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE resolved = FALSE),
			COUNT(*) FILTER (WHERE resolved = TRUE)
		FROM dlq_messages`).Scan(&st.Total, &st.Unresolved, &st.Resolved)
	if err != nil {
		return st, errors.E(errors.Internal, "error reading DLQ statistics", err)
	}
	return st, nil
}

// Retryable lists unresolved messages that still have retries left, oldest first.
func (s *DLQStore) Retryable(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id FROM dlq_messages
		WHERE resolved = FALSE AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.E(errors.Internal, "error querying retryable DLQ messages", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.E(errors.Internal, "error scanning DLQ message id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
