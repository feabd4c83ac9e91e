package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []models.TaskEvent
}

func (f *fakePublisher) Publish(_ context.Context, e *models.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.TaskID == id {
			n++
		}
	}
	return n
}

type memResults struct {
	mu   sync.Mutex
	data map[string][]models.CombinationResult
}

func (m *memResults) Get(_ context.Context, key string) ([]models.CombinationResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memResults) Set(_ context.Context, key string, results []models.CombinationResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = results
	return nil
}

func (m *memResults) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func flatSeries(n int) []models.CandleDTO {
	out := make([]models.CandleDTO, n)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rsi, hour := 50.0, 11
	for i := range out {
		sma, adx, body, adr := 99.0, 30.0, 0.4, 50.0
		out[i] = models.CandleDTO{
			Time:         t0.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Open:         100,
			High:         101.5,
			Low:          99.9,
			Close:        100,
			RSI:          &rsi,
			SMA200:       &sma,
			ADX:          &adx,
			BodySizePct:  &body,
			ADRFilledPct: &adr,
			HourUTC:      &hour,
		}
	}
	return out
}

func optimizePayload(n int) *models.OptimizePayload {
	return &models.OptimizePayload{
		Mode:                 models.RankStandard,
		Series:               flatSeries(n),
		CandidateIndex:       n - 1,
		Trade:                models.TradeParams{Type: models.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 101},
		RSITolerance:         10,
		VolumeTolerancePct:   30,
		BuyPressureTolerance: 10,
		TrendSide:            models.TrendMatch,
		TimeMode:             models.TimeUTC,
		HTFMode:              models.HTFMark,
		ADXThreshold:         25,
		BarMinutes:           60,
		HTFBarMinutes:        240,
		MinScore:             70,
		MaxDurationBars:      20,
	}
}

func newManager(runner Runner, pub *fakePublisher, cache *memResults, cfg ManagerConfig) *TaskManager {
	var (
		p domrepo.EventPublisher
		c domrepo.ResultCache
	)
	if pub != nil {
		p = pub
	}
	if cache != nil {
		c = cache
	}
	return NewTaskManager(logger.NewNop(), runner, NewSeriesUseCase(nil, 0), p, c, nil, cfg)
}

func drain(t *testing.T, ch <-chan models.TaskEvent) []models.TaskEvent {
	t.Helper()
	var out []models.TaskEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("stream did not close")
		}
	}
}

func TestTaskManagerRunsAndCaches(t *testing.T) {
	pub := &fakePublisher{}
	cache := &memResults{data: map[string][]models.CombinationResult{}}
	m := newManager(optimizer.New(), pub, cache, ManagerConfig{})
	p := optimizePayload(300)

	snap, err := m.Submit(context.Background(), p)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	assert.False(t, snap.Cached)

	ch, _, err := m.Subscribe(snap.ID)
	require.NoError(t, err)
	events := drain(t, ch)
	require.NotEmpty(t, events)
	done := events[len(events)-1]
	assert.Equal(t, models.EventDone, done.Type)
	assert.Len(t, done.Results, optimizer.TopN)

	got, err := m.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, got.State)
	assert.Equal(t, done.Results, got.Results)

	key, err := PayloadKey(p)
	require.NoError(t, err)
	cached, ok, _ := cache.Get(context.Background(), key)
	require.True(t, ok)
	assert.Len(t, cached, optimizer.TopN)
	assert.Positive(t, pub.count(snap.ID))

	// identical payload is served from the cache
	again, err := m.Submit(context.Background(), p)
	require.NoError(t, err)
	ch, _, err = m.Subscribe(again.ID)
	require.NoError(t, err)
	events = drain(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, models.EventDone, last.Type)
	assert.True(t, last.Cached)
	assert.Equal(t, done.Results, last.Results)
}

func TestTaskManagerCancel(t *testing.T) {
	started := make(chan struct{})
	m := newManager(blockingRunner(started), &fakePublisher{}, nil, ManagerConfig{MaxRunning: 1})

	snap, err := m.Submit(context.Background(), optimizePayload(250))
	require.NoError(t, err)
	<-started

	_, err = m.Submit(context.Background(), optimizePayload(250))
	assert.ErrorIs(t, err, ErrTooManyTasks)

	ch, _, err := m.Subscribe(snap.ID)
	require.NoError(t, err)
	_, err = m.Cancel(snap.ID)
	require.NoError(t, err)

	events := drain(t, ch)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventCancelled, events[len(events)-1].Type)

	got, err := m.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, got.State)
}

func TestTaskManagerErrors(t *testing.T) {
	m := newManager(optimizer.New(), nil, nil, ManagerConfig{})

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = m.Cancel("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, _, err = m.Subscribe("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = m.Submit(context.Background(), &models.OptimizePayload{})
	assert.ErrorIs(t, err, ErrNoSeries)

	p := optimizePayload(10)
	p.Series = nil
	p.Source = &models.SeriesSource{Symbol: "BTCUSDT", Timeframe: "1h"}
	_, err = m.Submit(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoCandleStore)
}

func TestTaskManagerShutdown(t *testing.T) {
	started := make(chan struct{})
	m := newManager(blockingRunner(started), nil, nil, ManagerConfig{})
	snap, err := m.Submit(context.Background(), optimizePayload(250))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := m.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, got.State)
}

func TestTaskManagerSubmitRespectsLimitUnderContention(t *testing.T) {
	idle := RunnerFunc(func(ctx context.Context, _ *backtest.Dataset, _ *models.OptimizePayload, _ optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := newManager(idle, nil, nil, ManagerConfig{MaxRunning: 2})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Submit(context.Background(), optimizePayload(250))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrTooManyTasks):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 14, rejected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}

func TestTaskManagerSkipsCacheForOpenEndedSource(t *testing.T) {
	store := &fakeStore{candles: map[domrepo.Timeframe][]models.Candle{domrepo.TF1h: models.ToCandles(flatSeries(300))}}
	cache := &memResults{data: map[string][]models.CombinationResult{}}
	m := NewTaskManager(logger.NewNop(), staticRunner(sampleResults(), nil), NewSeriesUseCase(store, 0), nil, cache, nil, ManagerConfig{})

	p := optimizePayload(300)
	p.Series = nil
	p.Source = &models.SeriesSource{Symbol: "ETHUSDT", Timeframe: "1h"}
	assert.True(t, openEnded(p))

	snap, err := m.Submit(context.Background(), p)
	require.NoError(t, err)
	ch, _, err := m.Subscribe(snap.ID)
	require.NoError(t, err)
	events := drain(t, ch)
	require.Equal(t, models.EventDone, events[len(events)-1].Type)
	assert.Zero(t, cache.len())

	// a closed range is stable and cached
	p.Source.To = time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	assert.False(t, openEnded(p))
	snap, err = m.Submit(context.Background(), p)
	require.NoError(t, err)
	ch, _, err = m.Subscribe(snap.ID)
	require.NoError(t, err)
	drain(t, ch)
	assert.Equal(t, 1, cache.len())
}
