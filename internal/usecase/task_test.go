package usecase

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []models.TaskEvent
}

func (r *recorder) Emit(e models.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() models.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func sampleResults() []models.CombinationResult {
	sqn := 2.2
	return []models.CombinationResult{{
		Signature: "RSI|MARK",
		Config:    models.NewFilterConfig(models.FilterSet(0).With(models.FilterRSI), models.Tolerances{RSI: 10}, models.TierNormal, models.HTFMark),
		Result:    &models.BacktestResult{Matches: 10, Wins: 6, Losses: 4, WinRate: 60, SQN: &sqn},
		IsRobust:  true,
	}}
}

func staticRunner(results []models.CombinationResult, err error) Runner {
	return RunnerFunc(func(_ context.Context, _ *backtest.Dataset, _ *models.OptimizePayload, progress optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		progress(models.Progress{Percent: 50, Processed: 1, Total: 2, Stage: optimizer.StageScanning})
		progress(models.Progress{Percent: 100, Processed: 2, Total: 2, Stage: optimizer.StageRanking})
		return results, err
	})
}

// blockingRunner waits for cancellation.
func blockingRunner(started chan<- struct{}) Runner {
	return RunnerFunc(func(ctx context.Context, _ *backtest.Dataset, _ *models.OptimizePayload, _ optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func waitDone(t *testing.T, task *OptimizeTask) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task %s did not finish", task.ID())
	}
}

func TestOptimizeTaskDone(t *testing.T) {
	rec := &recorder{}
	results := sampleResults()
	task := NewOptimizeTask("t1", nil, &models.OptimizePayload{}, staticRunner(results, nil), rec)
	assert.Equal(t, TaskIdle, task.State())

	snap, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskDone, snap.State)
	assert.Equal(t, []models.EventType{models.EventProgress, models.EventProgress, models.EventDone}, rec.types())
	assert.Equal(t, "t1", rec.last().TaskID)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 100.0, snap.Progress.Percent)
	require.NotNil(t, snap.FinishedAt)

	// results are copied out
	rec.last().Results[0].Result.WinRate = 1
	*results[0].Result.SQN = 99
	again := task.Snapshot()
	assert.Equal(t, 60.0, again.Results[0].Result.WinRate)
	assert.Equal(t, 2.2, *again.Results[0].Result.SQN)
	assert.Equal(t, 2.2, *rec.last().Results[0].Result.SQN)

	_, err = task.Run(context.Background())
	assert.ErrorIs(t, err, ErrTaskStarted)
	assert.False(t, task.Cancel(), "terminal tasks ignore cancel")
}

func TestOptimizeTaskCancelWhileRunning(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	task := NewOptimizeTask("t2", nil, &models.OptimizePayload{}, blockingRunner(started), rec)

	require.NoError(t, task.Start(context.Background()))
	<-started
	assert.Equal(t, TaskRunning, task.State())
	assert.True(t, task.Cancel())
	waitDone(t, task)

	assert.Equal(t, TaskCancelled, task.State())
	assert.Equal(t, []models.EventType{models.EventCancelled}, rec.types())
	assert.Empty(t, task.Snapshot().Results)
}

func TestOptimizeTaskCancelBeforeStart(t *testing.T) {
	rec := &recorder{}
	task := NewOptimizeTask("t3", nil, &models.OptimizePayload{}, blockingRunner(make(chan struct{})), rec)
	assert.True(t, task.Cancel())

	snap, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, snap.State)
	assert.Equal(t, []models.EventType{models.EventCancelled}, rec.types())
}

func TestOptimizeTaskPanicIsReported(t *testing.T) {
	rec := &recorder{}
	runner := RunnerFunc(func(context.Context, *backtest.Dataset, *models.OptimizePayload, optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		var ds *backtest.Dataset
		_ = ds.Series[0]
		return nil, nil
	})
	task := NewOptimizeTask("t4", nil, &models.OptimizePayload{}, runner, rec)

	snap, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, snap.State)
	assert.Contains(t, snap.Error, "internal failure")
	assert.Equal(t, models.EventError, rec.last().Type)
}

func TestOptimizeTaskNonFiniteIsReported(t *testing.T) {
	bad := sampleResults()
	bad[0].Result.PValue = math.NaN()
	rec := &recorder{}
	task := NewOptimizeTask("t5", nil, &models.OptimizePayload{}, staticRunner(bad, nil), rec)

	snap, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, snap.State)
	assert.Contains(t, snap.Error, "pValue")
	assert.Equal(t, models.EventError, rec.last().Type)
}

func TestOptimizeTaskCopiesPayload(t *testing.T) {
	p := &models.OptimizePayload{CandidateIndex: 7}
	var seen int
	runner := RunnerFunc(func(_ context.Context, _ *backtest.Dataset, got *models.OptimizePayload, _ optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		seen = got.CandidateIndex
		return nil, nil
	})
	task := NewOptimizeTask("t6", nil, p, runner, nil)
	p.CandidateIndex = 9

	_, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, seen)
}
