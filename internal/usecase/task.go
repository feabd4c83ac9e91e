package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskStarted    = errors.New("task already started")
	ErrTooManyTasks   = errors.New("too many running tasks")
	ErrNonFinite      = errors.New("non-finite statistic")
)

// TaskState is the lifecycle of one optimization.
type TaskState string

const (
	TaskIdle      TaskState = "IDLE"
	TaskRunning   TaskState = "RUNNING"
	TaskDone      TaskState = "DONE"
	TaskCancelled TaskState = "CANCELLED"
	TaskFailed    TaskState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == TaskDone || s == TaskCancelled || s == TaskFailed
}

// EventSink receives every event a task emits, in order, from the task goroutine.
type EventSink interface {
	Emit(e models.TaskEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(models.TaskEvent)

func (f EventSinkFunc) Emit(e models.TaskEvent) { f(e) }

// Runner is the computation a task drives.
type Runner interface {
	Run(ctx context.Context, ds *backtest.Dataset, p *models.OptimizePayload, onProgress optimizer.ProgressFunc) ([]models.CombinationResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, ds *backtest.Dataset, p *models.OptimizePayload, onProgress optimizer.ProgressFunc) ([]models.CombinationResult, error)

func (f RunnerFunc) Run(ctx context.Context, ds *backtest.Dataset, p *models.OptimizePayload, onProgress optimizer.ProgressFunc) ([]models.CombinationResult, error) {
	return f(ctx, ds, p, onProgress)
}

// TaskSnapshot is a copy of a task's observable state.
type TaskSnapshot struct {
	ID         string                     `json:"id"`
	State      TaskState                  `json:"state"`
	Progress   *models.Progress           `json:"progress,omitempty"`
	Results    []models.CombinationResult `json:"results,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Cached     bool                       `json:"cached,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	FinishedAt *time.Time                 `json:"finishedAt,omitempty"`
}

// OptimizeTask runs one optimization as Idle -> Running -> {Done|Cancelled|Failed}.
// The host talks to it only through Start, Cancel and the events it emits.
type OptimizeTask struct {
	id      string
	ds      *backtest.Dataset
	payload models.OptimizePayload
	runner  Runner
	sink    EventSink
	cached  bool

	mu         sync.Mutex
	state      TaskState
	cancel     context.CancelFunc
	cancelReq  bool
	progress   *models.Progress
	results    []models.CombinationResult
	errMsg     string
	createdAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

// NewOptimizeTask copies p; the dataset must not be shared with other tasks.
func NewOptimizeTask(id string, ds *backtest.Dataset, p *models.OptimizePayload, runner Runner, sink EventSink) *OptimizeTask {
	if sink == nil {
		sink = EventSinkFunc(func(models.TaskEvent) {})
	}
	return &OptimizeTask{
		id:        id,
		ds:        ds,
		payload:   *p,
		runner:    runner,
		sink:      sink,
		state:     TaskIdle,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (t *OptimizeTask) ID() string { return t.id }

// Done is closed once the task reaches a terminal state.
func (t *OptimizeTask) Done() <-chan struct{} { return t.done }

func (t *OptimizeTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves the task to Running and computes on a new goroutine.
func (t *OptimizeTask) Start(ctx context.Context) error {
	run, err := t.begin(ctx)
	if err != nil {
		return err
	}
	go t.execute(run)
	return nil
}

// Run is Start followed by waiting for the terminal state.
func (t *OptimizeTask) Run(ctx context.Context) (TaskSnapshot, error) {
	run, err := t.begin(ctx)
	if err != nil {
		return TaskSnapshot{}, err
	}
	t.execute(run)
	return t.Snapshot(), nil
}

func (t *OptimizeTask) begin(ctx context.Context) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskIdle {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskStarted, t.id, t.state)
	}
	run, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state = TaskRunning
	if t.cancelReq {
		cancel()
	}
	return run, nil
}

// Cancel requests cooperative cancellation. It reports false once the task is terminal.
func (t *OptimizeTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.cancelReq = true
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

// Snapshot copies the current observable state.
func (t *OptimizeTask) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TaskSnapshot{
		ID:        t.id,
		State:     t.state,
		Results:   models.CloneResults(t.results),
		Error:     t.errMsg,
		Cached:    t.cached,
		CreatedAt: t.createdAt,
	}
	if t.progress != nil {
		p := *t.progress
		s.Progress = &p
	}
	if !t.finishedAt.IsZero() {
		f := t.finishedAt
		s.FinishedAt = &f
	}
	return s
}

func (t *OptimizeTask) execute(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	results, err := t.safeRun(ctx)
	if err == nil {
		for i := range results {
			if err = checkFinite(results[i].Result); err != nil {
				break
			}
			if math.IsNaN(results[i].RobustnessScore) || math.IsInf(results[i].RobustnessScore, 0) {
				err = fmt.Errorf("%w: robustness score", ErrNonFinite)
				break
			}
		}
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		t.finish(TaskCancelled, nil, "")
		t.emit(models.TaskEvent{Type: models.EventCancelled})
	case err != nil:
		t.finish(TaskFailed, nil, err.Error())
		t.emit(models.TaskEvent{Type: models.EventError, Error: err.Error()})
	default:
		t.finish(TaskDone, models.CloneResults(results), "")
		t.emit(models.TaskEvent{Type: models.EventDone, Results: models.CloneResults(results), Cached: t.cached})
	}
}

// safeRun converts a panic in the runner into an error.
func (t *OptimizeTask) safeRun(ctx context.Context) (results []models.CombinationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("internal failure: %v", r)
		}
	}()
	return t.runner.Run(ctx, t.ds, &t.payload, t.onProgress)
}

func (t *OptimizeTask) onProgress(p models.Progress) {
	t.mu.Lock()
	cp := p
	t.progress = &cp
	t.mu.Unlock()
	t.emit(models.TaskEvent{Type: models.EventProgress, Progress: &p})
}

func (t *OptimizeTask) finish(state TaskState, results []models.CombinationResult, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.results = results
	t.errMsg = msg
	t.finishedAt = time.Now()
}

func (t *OptimizeTask) emit(e models.TaskEvent) {
	e.TaskID = t.id
	e.Time = time.Now()
	t.sink.Emit(e)
}

// checkFinite rejects results carrying NaN or infinite statistics.
func checkFinite(r *models.BacktestResult) error {
	if r == nil {
		return fmt.Errorf("%w: missing result", ErrNonFinite)
	}
	type stat struct {
		name string
		v    float64
	}
	vals := []stat{
		{"winRate", r.WinRate},
		{"wilsonLower95", r.WilsonLower95},
		{"breakEvenRate", r.BreakEvenRate},
		{"pValue", r.PValue},
		{"expectancyR", r.ExpectancyR},
		{"rewardRisk", r.RewardRisk},
		{"painRatio", r.PainRatio},
		{"durationMean", r.Duration.Mean},
	}
	if r.SQN != nil {
		vals = append(vals, stat{"sqn", *r.SQN})
	}
	if r.SQN100 != nil {
		vals = append(vals, stat{"sqn100", *r.SQN100})
	}
	for _, s := range vals {
		if math.IsNaN(s.v) || math.IsInf(s.v, 0) {
			return fmt.Errorf("%w: %s", ErrNonFinite, s.name)
		}
	}
	return nil
}
