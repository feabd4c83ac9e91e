package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/pkg/logger"

	"github.com/google/uuid"
)

// ManagerConfig bounds the task registry.
type ManagerConfig struct {
	MaxRunning int
	Retention  time.Duration
	CacheTTL   time.Duration
	SubBuffer  int
}

// TaskManager owns running optimizations: it starts them, fans their events out to
// subscribers and the event publisher, and caches finished rankings.
type TaskManager struct {
	log       *logger.Logger
	runner    Runner
	series    *SeriesUseCase
	publisher domrepo.EventPublisher
	cache     domrepo.ResultCache
	metrics   domrepo.Metrics
	cfg       ManagerConfig

	mu    sync.RWMutex
	tasks map[string]*entry
}

type entry struct {
	task *OptimizeTask
	key  string

	mu      sync.Mutex
	subs    map[int]chan models.TaskEvent
	nextSub int
	last    *models.TaskEvent
}

func NewTaskManager(
	log *logger.Logger,
	runner Runner,
	series *SeriesUseCase,
	publisher domrepo.EventPublisher,
	cache domrepo.ResultCache,
	metrics domrepo.Metrics,
	cfg ManagerConfig,
) *TaskManager {
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = 4
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SubBuffer <= 0 {
		cfg.SubBuffer = 64
	}
	return &TaskManager{
		log:       log,
		runner:    runner,
		series:    series,
		publisher: publisher,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		tasks:     make(map[string]*entry),
	}
}

// PayloadKey fingerprints a payload for result caching.
func PayloadKey(p *models.OptimizePayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return "optimize:" + hex.EncodeToString(sum[:]), nil
}

// openEnded reports whether p reads a stored series with no upper bound. Its data keeps
// growing, so its ranking is neither served from nor written to the result cache.
func openEnded(p *models.OptimizePayload) bool {
	stored := func(embedded []models.CandleDTO, src *models.SeriesSource) bool {
		return len(embedded) == 0 && src != nil && src.To.IsZero()
	}
	return stored(p.Series, p.Source) || stored(p.HTF, p.HTFSource) || stored(p.LTF, p.LTFSource)
}

// Submit validates p, resolves its series and starts a task. A cached ranking completes
// the task without recomputation.
func (m *TaskManager) Submit(ctx context.Context, p *models.OptimizePayload) (TaskSnapshot, error) {
	m.reap()
	if m.running() >= m.cfg.MaxRunning {
		return TaskSnapshot{}, ErrTooManyTasks
	}

	ds, err := m.series.Dataset(ctx, p)
	if err != nil {
		return TaskSnapshot{}, err
	}

	var key string
	if !openEnded(p) {
		if key, err = PayloadKey(p); err != nil {
			return TaskSnapshot{}, err
		}
	}

	runner := m.runner
	cached := false
	if m.cache != nil && key != "" {
		hit, ok, err := m.cache.Get(ctx, key)
		switch {
		case err != nil:
			m.log.Warn("result cache get failed", logger.String("key", key), logger.Error(err))
		case ok:
			cached = true
			runner = RunnerFunc(func(context.Context, *backtest.Dataset, *models.OptimizePayload, optimizer.ProgressFunc) ([]models.CombinationResult, error) {
				return hit, nil
			})
		}
	}

	id := uuid.NewString()
	e := &entry{key: key, subs: make(map[int]chan models.TaskEvent)}
	e.task = NewOptimizeTask(id, ds, p, runner, EventSinkFunc(func(ev models.TaskEvent) { m.dispatch(e, ev) }))
	e.task.cached = cached

	// the slot is reserved under the same lock that counts running tasks
	m.mu.Lock()
	if m.runningLocked() >= m.cfg.MaxRunning {
		m.mu.Unlock()
		return TaskSnapshot{}, ErrTooManyTasks
	}
	m.tasks[id] = e
	m.mu.Unlock()

	// detached from the request context; Cancel or Shutdown ends it
	if err := e.task.Start(context.Background()); err != nil {
		return TaskSnapshot{}, err
	}
	m.log.Info("optimization submitted",
		logger.String("task_id", id),
		logger.String("mode", string(p.Mode)),
		logger.Int("candidate", p.CandidateIndex),
		logger.Int("bars", len(ds.Series)),
		logger.Bool("cached", cached),
	)
	return e.task.Snapshot(), nil
}

// Get returns the task's current snapshot.
func (m *TaskManager) Get(id string) (TaskSnapshot, error) {
	e, err := m.lookup(id)
	if err != nil {
		return TaskSnapshot{}, err
	}
	return e.task.Snapshot(), nil
}

// Cancel requests cancellation; the terminal event confirms it.
func (m *TaskManager) Cancel(id string) (TaskSnapshot, error) {
	e, err := m.lookup(id)
	if err != nil {
		return TaskSnapshot{}, err
	}
	if e.task.Cancel() {
		m.log.Info("optimization cancel requested", logger.String("task_id", id))
	}
	return e.task.Snapshot(), nil
}

// Subscribe streams the task's events. A finished task yields its terminal event only.
// The channel is closed after the terminal event or when unsubscribe is called.
func (m *TaskManager) Subscribe(id string) (<-chan models.TaskEvent, func(), error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan models.TaskEvent, m.cfg.SubBuffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last != nil && e.last.Terminal() {
		ch <- *e.last
		close(ch)
		return ch, func() {}, nil
	}
	if e.last != nil {
		ch <- *e.last
	}
	sid := e.nextSub
	e.nextSub++
	e.subs[sid] = ch
	unsubscribe := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[sid]; ok {
			delete(e.subs, sid)
			close(c)
		}
	}
	return ch, unsubscribe, nil
}

// Shutdown cancels every running task and waits for them or ctx.
func (m *TaskManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.tasks))
	for _, e := range m.tasks {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.task.Cancel()
	}
	for _, e := range entries {
		select {
		case <-e.task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *TaskManager) dispatch(e *entry, ev models.TaskEvent) {
	// cached before subscribers see the terminal event
	if ev.Type == models.EventDone {
		m.storeResults(e, ev)
	}

	e.mu.Lock()
	cp := ev
	e.last = &cp
	for sid, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; progress is lossy, terminal events are not
			if ev.Terminal() {
				m.log.Warn("dropping terminal event for slow subscriber", logger.String("task_id", ev.TaskID))
			}
		}
		if ev.Terminal() {
			delete(e.subs, sid)
			close(ch)
		}
	}
	e.mu.Unlock()

	if m.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.publisher.Publish(ctx, &ev); err != nil {
			m.log.Error("publish task event failed", logger.String("task_id", ev.TaskID), logger.Error(err))
			if m.metrics != nil {
				m.metrics.RecordError("publish")
			}
		}
		cancel()
	}

	if !ev.Terminal() {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordTask(string(ev.Type))
	}
	switch ev.Type {
	case models.EventDone:
		m.log.Info("optimization done", logger.String("task_id", ev.TaskID), logger.Int("results", len(ev.Results)), logger.Bool("cached", ev.Cached))
	case models.EventError:
		m.log.Error("optimization failed", logger.String("task_id", ev.TaskID), logger.String("reason", ev.Error))
	case models.EventCancelled:
		m.log.Info("optimization cancelled", logger.String("task_id", ev.TaskID))
	}
}

func (m *TaskManager) storeResults(e *entry, ev models.TaskEvent) {
	if m.cache == nil || ev.Cached || e.key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cache.Set(ctx, e.key, ev.Results, m.cfg.CacheTTL); err != nil {
		m.log.Warn("result cache set failed", logger.String("key", e.key), logger.Error(err))
	}
}

func (m *TaskManager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e, nil
}

func (m *TaskManager) running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runningLocked()
}

func (m *TaskManager) runningLocked() int {
	n := 0
	for _, e := range m.tasks {
		if !e.task.State().Terminal() {
			n++
		}
	}
	return n
}

// reap forgets terminal tasks older than the retention window.
func (m *TaskManager) reap() {
	cutoff := time.Now().Add(-m.cfg.Retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.tasks {
		s := e.task.Snapshot()
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(m.tasks, id)
		}
	}
}
