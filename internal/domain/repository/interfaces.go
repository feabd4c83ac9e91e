package repository

import (
	"context"
	"time"

	"EdgeScan/internal/domain/models"
)

// EventPublisher fans task events out to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.TaskEvent) error
	Close() error
}

// ResultCache stores finished rankings keyed by payload fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]models.CombinationResult, bool, error)
	Set(ctx context.Context, key string, results []models.CombinationResult, ttl time.Duration) error
}

type Metrics interface {
	RecordCombination(outcome string)
	RecordTask(outcome string)
	RecordRobust(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
