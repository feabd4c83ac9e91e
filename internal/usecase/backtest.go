package usecase

import (
	"context"
	"fmt"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	"EdgeScan/internal/services/backtest"
)

// BacktestUseCase evaluates a single explicit filter configuration.
type BacktestUseCase struct {
	series  *SeriesUseCase
	metrics domrepo.Metrics
}

func NewBacktestUseCase(series *SeriesUseCase, metrics domrepo.Metrics) *BacktestUseCase {
	return &BacktestUseCase{series: series, metrics: metrics}
}

// Evaluate returns the backtest statistics or a labeled input/sample error.
func (uc *BacktestUseCase) Evaluate(ctx context.Context, req *models.BacktestRequest) (*models.BacktestResult, error) {
	set, unknown := models.ParseFilterSet(req.Filters)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown filters %v", ErrInvalidRequest, unknown)
	}

	ds, err := uc.series.Dataset(ctx, &req.OptimizePayload)
	if err != nil {
		return nil, err
	}

	tol := req.Tolerances()
	if req.Tier == models.TierLoose {
		tol = tol.Loosen()
	}
	cfg := models.NewFilterConfig(set, tol, req.Tier, req.HTFMode)
	if req.MinScore > 0 {
		cfg.MinScore = req.MinScore
	}
	cfg.Cooldown = req.Cooldown
	cfg.UseLTF = cfg.UseLTF || req.UseLTF

	start := time.Now()
	res, err := backtest.Evaluate(ds, req.CandidateIndex, req.Trade, cfg)
	if uc.metrics != nil {
		uc.metrics.RecordLatency("backtest", time.Since(start).Seconds())
		if err != nil {
			uc.metrics.RecordError("backtest")
		}
	}
	if err != nil {
		return nil, err
	}
	if err := checkFinite(res); err != nil {
		return nil, err
	}
	return res, nil
}
