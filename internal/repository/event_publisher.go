package repository

import (
	"context"
	"errors"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	pkgkafka "EdgeScan/pkg/kafka"
	applogger "EdgeScan/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrPublisherOpen is returned while the breaker rejects publishes.
var ErrPublisherOpen = errors.New("event publisher unavailable")

// producer is the slice of pkg/kafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher implements EventPublisher for Kafka. Events are keyed by task
// id so one task's events stay ordered within a partition.
// A breaker trips after repeated broker failures so tasks stop waiting on a dead
// cluster; publishes fail fast with ErrPublisherOpen until it half-opens.
type KafkaEventPublisher struct {
	producer producer
	topic    string
	progress bool
	breaker  *gobreaker.CircuitBreaker
}

// NewKafkaEventPublisher creates a publisher; progress events are sent only when
// withProgress is set.
func NewKafkaEventPublisher(p producer, topic string, withProgress bool) domrepo.EventPublisher {
	return &KafkaEventPublisher{
		producer: p,
		topic:    topic,
		progress: withProgress,
		breaker:  newBreaker("kafka-events:" + topic),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.TaskEvent) error {
	if e == nil || (e.Type == models.EventProgress && !p.progress) {
		return nil
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.producer.Publish(ctx, p.topic, []byte(e.TaskID), e)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrPublisherOpen
	}
	return err
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// batchProducer is the batch slice of pkg/kafka.Producer.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaLogPublisher ships aggregated error logs, one message per entry keyed by level.
type KafkaLogPublisher struct {
	producer batchProducer
}

func NewKafkaLogPublisher(p batchProducer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: p}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	entries, ok := payload.([]applogger.AggregatedLogEntry)
	if !ok {
		return p.producer.PublishBatch(ctx, topic, []pkgkafka.Message{{Value: payload}})
	}
	msgs := make([]pkgkafka.Message, len(entries))
	for i := range entries {
		msgs[i] = pkgkafka.Message{Key: []byte(entries[i].Level), Value: entries[i]}
	}
	return p.producer.PublishBatch(ctx, topic, msgs)
}
