package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/usecase"
	xhttp "EdgeScan/pkg/http"
	pkgkafka "EdgeScan/pkg/kafka"
	xlogger "EdgeScan/pkg/logger"
	"EdgeScan/pkg/queue"
)

// JobType is the queue message type for optimization requests.
const JobType = "optimize"

// Submitter starts optimization tasks.
type Submitter interface {
	Submit(ctx context.Context, p *models.OptimizePayload) (usecase.TaskSnapshot, error)
}

// OptimizeIntake accepts optimization requests from a message bus. Each message is
// one OptimizePayload in JSON; progress and results go out on the task events topic.
type OptimizeIntake struct {
	logger *xlogger.Logger
	tasks  Submitter
	topic  string
}

func NewOptimizeIntake(logger *xlogger.Logger, tasks Submitter, topic string) *OptimizeIntake {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &OptimizeIntake{logger: logger, tasks: tasks, topic: topic}
}

// Topic implements pkg/kafka.MessageHandler.
func (h *OptimizeIntake) Topic() string { return h.topic }

// Handle implements pkg/kafka.MessageHandler. Malformed requests are not retried.
func (h *OptimizeIntake) Handle(ctx context.Context, b []byte) error {
	err := h.submit(ctx, b)
	if isPermanent(err) {
		return pkgkafka.Permanent(err)
	}
	return err
}

// Job exposes the intake as a Redis queue job.
func (h *OptimizeIntake) Job() queue.Job { return optimizeJob{h} }

func (h *OptimizeIntake) submit(ctx context.Context, b []byte) error {
	var p models.OptimizePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidRequest, err)
	}
	if err := xhttp.ValidateStruct(ctx, &p); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidRequest, err)
	}
	snap, err := h.tasks.Submit(ctx, &p)
	if err != nil {
		h.logger.Warn("intake.submit rejected", xlogger.String("topic", h.topic), xlogger.Error(err))
		return err
	}
	h.logger.Info("intake.submit accepted",
		xlogger.String("topic", h.topic),
		xlogger.String("task_id", snap.ID),
		xlogger.Bool("cached", snap.Cached))
	return nil
}

// isPermanent reports whether resubmitting the same bytes can never succeed.
// A full task registry is transient.
func isPermanent(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, usecase.ErrTooManyTasks):
		return false
	case errors.Is(err, usecase.ErrInvalidRequest),
		errors.Is(err, usecase.ErrNoSeries),
		errors.Is(err, usecase.ErrNoCandleStore),
		backtest.IsInputError(err),
		backtest.IsSampleError(err):
		return true
	default:
		return false
	}
}

type optimizeJob struct{ h *OptimizeIntake }

func (j optimizeJob) Name() string { return "optimize-intake" }
func (j optimizeJob) Type() string { return JobType }

func (j optimizeJob) Handle(ctx context.Context, payload json.RawMessage) error {
	err := j.h.submit(ctx, payload)
	if isPermanent(err) {
		return queue.Discard(err)
	}
	return err
}

var _ pkgkafka.MessageHandler = (*OptimizeIntake)(nil)
