package server

import (
	"context"
	"testing"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/internal/usecase"
	xhttp "EdgeScan/pkg/http"
	applogger "EdgeScan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCloser struct {
	name  string
	order *[]string
}

func (c orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func embedded(n int) *models.OptimizePayload {
	series := make([]models.CandleDTO, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		series[i] = models.CandleDTO{Time: t0.Add(time.Duration(i) * time.Hour).Format(time.RFC3339), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return &models.OptimizePayload{Series: series, CandidateIndex: n - 1, BarMinutes: 60, HTFBarMinutes: 240}
}

func TestRunContextShutsDownInOrder(t *testing.T) {
	l := applogger.NewNop()
	started := make(chan struct{})
	runner := usecase.RunnerFunc(func(ctx context.Context, _ *backtest.Dataset, _ *models.OptimizePayload, _ optimizer.ProgressFunc) ([]models.CombinationResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tasks := usecase.NewTaskManager(l, runner, usecase.NewSeriesUseCase(nil, 0), nil, nil, nil, usecase.ManagerConfig{})
	srv := xhttp.NewServer(l, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics(false))

	var order []string
	app := New(l, srv, tasks,
		WithCloser("first", orderCloser{"first", &order}),
		WithCloser("second", orderCloser{"second", &order}),
		WithCloser("nil", nil),
		WithShutdownTimeout(5*time.Second),
	)

	snap, err := tasks.Submit(context.Background(), embedded(250))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.RunContext(ctx))

	assert.Equal(t, []string{"second", "first"}, order)
	got, err := tasks.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.TaskCancelled, got.State)
}
