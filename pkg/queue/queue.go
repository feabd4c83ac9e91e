package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one payload.
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Publisher enqueues messages.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// DiscardError marks a payload that no retry can fix; it goes straight to the dead letter list.
type DiscardError struct{ Err error }

func (e *DiscardError) Error() string { return e.Err.Error() }
func (e *DiscardError) Unwrap() error { return e.Err }

// Discard wraps err as a DiscardError.
func Discard(err error) error {
	if err == nil {
		return nil
	}
	return &DiscardError{Err: err}
}

type step int

const (
	stepAck step = iota
	stepRetry
	stepDead
)

// nextStep decides what happens to msg after a handler returned err.
func nextStep(msg Message, err error, retryLimit int) step {
	var d *DiscardError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return stepAck
	case errors.As(err, &d):
		return stepDead
	case msg.Attempts < retryLimit:
		return stepRetry
	default:
		return stepDead
	}
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var out T
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &out, nil
}
