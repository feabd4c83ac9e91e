// Package optimizer enumerates filter combinations over one dataset and ranks the
// configurations with the most defensible edge.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/domain/repository"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/pkg/logger"
)

const (
	// TopN is the size of the ranked output.
	TopN = 5
	// DefaultMaxRobust stops the search once this many robust signatures exist.
	DefaultMaxRobust = 8
	// DefaultProgressEvery is the outer-iteration interval between progress reports.
	DefaultProgressEvery = 64
	// RobustWinRate is the win rate both tiers must reach for a robust signature.
	RobustWinRate = 50.0
)

// Progress stages.
const (
	StageScanning = "scanning"
	StageRanking  = "ranking"
)

// ProgressFunc receives coarse progress reports; it runs on the optimizing goroutine.
type ProgressFunc func(models.Progress)

// Optimizer runs the combinatorial search.
type Optimizer struct {
	log           *logger.Logger
	metrics       repository.Metrics
	maxRobust     int
	progressEvery int
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for run summaries.
func WithLogger(l *logger.Logger) Option {
	return func(o *Optimizer) { o.log = l }
}

// WithMetrics records per-combination outcomes.
func WithMetrics(m repository.Metrics) Option {
	return func(o *Optimizer) { o.metrics = m }
}

// WithMaxRobust overrides the early-stop threshold.
func WithMaxRobust(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxRobust = n
		}
	}
}

// WithProgressEvery overrides the progress interval.
func WithProgressEvery(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.progressEvery = n
		}
	}
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{maxRobust: DefaultMaxRobust, progressEvery: DefaultProgressEvery}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SettingsFromPayload extracts the run-wide scanner settings.
func SettingsFromPayload(p *models.OptimizePayload) backtest.Settings {
	return backtest.Settings{
		TimeMode:     p.TimeMode,
		TrendSide:    p.TrendSide,
		ADXThreshold: p.ADXThreshold,
		MaxDuration:  p.MaxDurationBars,
		MinScanIndex: p.MinScanIndex,
		BarInterval:  p.BarInterval(),
		HTFInterval:  p.HTFInterval(),
	}
}

// DatasetFromPayload builds a dataset from the series embedded in p.
func DatasetFromPayload(p *models.OptimizePayload) *backtest.Dataset {
	return backtest.NewDataset(
		models.ToCandles(p.Series),
		models.ToCandles(p.HTF),
		models.ToCandles(p.LTF),
		SettingsFromPayload(p),
	)
}

// Toggles lists the filters enumerated for ds, in enum order. Volume, buy pressure and
// delta join only when flagged or present; HTF and LTF only when their series exist.
func Toggles(ds *backtest.Dataset, extended bool) []models.FilterID {
	out := []models.FilterID{
		models.FilterRSI,
		models.FilterTrend,
		models.FilterTime,
		models.FilterVolatility,
	}
	if extended || models.HasExtendedIndicators(ds.Series) {
		out = append(out, models.FilterVolume, models.FilterBuyPressure, models.FilterDelta)
	}
	out = append(out, models.FilterADR, models.FilterRegime)
	if ds.HTF != nil {
		out = append(out, models.FilterHTF)
	}
	if ds.LTF != nil {
		out = append(out, models.FilterLTF)
	}
	return out
}

// Optimize runs the search over the series embedded in p.
func (o *Optimizer) Optimize(ctx context.Context, p *models.OptimizePayload, onProgress ProgressFunc) ([]models.CombinationResult, error) {
	return o.Run(ctx, DatasetFromPayload(p), p, onProgress)
}

// Run enumerates every non-empty toggle subset, both tiers and, when HTF is toggled, both
// HTF modes. Cancellation is observed once per subset and returns ctx.Err().
func (o *Optimizer) Run(ctx context.Context, ds *backtest.Dataset, p *models.OptimizePayload, onProgress ProgressFunc) ([]models.CombinationResult, error) {
	if err := validate(ds, p); err != nil {
		return nil, err
	}

	start := time.Now()
	toggles := Toggles(ds, p.ExtendedIndicators)
	total := 1<<len(toggles) - 1
	normal := p.Tolerances()
	loose := normal.Loosen()

	var (
		accepted  []models.CombinationResult
		robust    int
		processed int
		evaluated int
	)
	report := func(stage string) {
		if onProgress == nil {
			return
		}
		onProgress(models.Progress{
			Percent:   float64(processed) / float64(total) * 100,
			Processed: processed,
			Total:     total,
			Stage:     stage,
		})
	}

	for mask := 1; mask <= total; mask++ {
		if err := ctx.Err(); err != nil {
			o.logCancelled(processed, total)
			return nil, err
		}

		set := maskToSet(toggles, mask)
		for _, mode := range modesFor(set, p.HTFMode) {
			n := o.evaluate(ds, p, models.NewFilterConfig(set, normal, models.TierNormal, mode))
			l := o.evaluate(ds, p, models.NewFilterConfig(set, loose, models.TierLoose, mode))
			evaluated += 2

			group := classify(n, l)
			for _, c := range group {
				if c.IsRobust {
					robust++
				}
			}
			accepted = append(accepted, group...)
		}

		processed = mask
		if robust >= o.maxRobust {
			break
		}
		if mask%o.progressEvery == 0 {
			report(StageScanning)
		}
	}

	ranked := Rank(Dedup(accepted), p.Mode, p.Custom)
	processed = total
	report(StageRanking)

	if o.metrics != nil {
		o.metrics.RecordRobust(robust)
		o.metrics.RecordLatency("optimize", time.Since(start).Seconds())
	}
	if o.log != nil {
		o.log.Info("optimization finished",
			logger.Int("toggles", len(toggles)),
			logger.Int("evaluated", evaluated),
			logger.Int("accepted", len(accepted)),
			logger.Int("robust", robust),
			logger.Int("returned", len(ranked)),
			logger.String("mode", string(p.Mode)),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
	return ranked, nil
}

// evaluate runs one configuration; skipped runs return nil.
func (o *Optimizer) evaluate(ds *backtest.Dataset, p *models.OptimizePayload, cfg models.FilterConfig) *models.CombinationResult {
	cfg.MinScore = models.DefaultMinScore
	if p.MinScore > 0 {
		cfg.MinScore = p.MinScore
	}
	cfg.Cooldown = p.Cooldown

	res, err := backtest.Evaluate(ds, p.CandidateIndex, p.Trade, cfg)
	switch {
	case err == nil && res.Matches >= backtest.MinMatches:
		o.record("accepted")
		return &models.CombinationResult{Config: cfg, Result: res, Signature: cfg.Signature()}
	case err == nil, backtest.IsSampleError(err):
		o.record("insufficient")
	case backtest.IsInputError(err):
		o.record("invalid")
	default:
		o.record("error")
	}
	return nil
}

func (o *Optimizer) record(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordCombination(outcome)
	}
}

func (o *Optimizer) logCancelled(processed, total int) {
	if o.log != nil {
		o.log.Info("optimization cancelled",
			logger.Int("processed", processed),
			logger.Int("total", total),
		)
	}
}

// validate rejects inputs that would fail every combination identically.
func validate(ds *backtest.Dataset, p *models.OptimizePayload) error {
	if p == nil {
		return errors.New("nil payload")
	}
	if ds == nil || len(ds.Series) == 0 {
		return backtest.ErrEmptySeries
	}
	if p.CandidateIndex < 0 || p.CandidateIndex >= len(ds.Series) {
		return fmt.Errorf("%w: %d not in [0,%d)", backtest.ErrCandidateOutOfRange, p.CandidateIndex, len(ds.Series))
	}
	if _, _, err := p.Trade.Normalize(); err != nil {
		return err
	}
	return nil
}

func maskToSet(toggles []models.FilterID, mask int) models.FilterSet {
	var set models.FilterSet
	for i, f := range toggles {
		if mask&(1<<i) != 0 {
			set = set.With(f)
		}
	}
	return set
}

// modesFor branches on HTF handling only when the HTF toggle is active.
func modesFor(set models.FilterSet, fallback models.HTFMode) []models.HTFMode {
	if set.Has(models.FilterHTF) {
		return []models.HTFMode{models.HTFDiscard, models.HTFMark}
	}
	if fallback == "" {
		fallback = models.HTFMark
	}
	return []models.HTFMode{fallback}
}
