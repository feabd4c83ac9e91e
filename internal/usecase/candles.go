package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/pkg/util"
)

var (
	// ErrNoSeries means the payload neither embeds nor names a primary series.
	ErrNoSeries = errors.New("series or source required")
	// ErrNoCandleStore means a stored source was named but no store is configured.
	ErrNoCandleStore = errors.New("candle store not configured")
)

// SeriesUseCase resolves payload series, embedded or stored, into a backtest dataset.
type SeriesUseCase struct {
	store domrepo.CandleStore
	limit int
}

func NewSeriesUseCase(store domrepo.CandleStore, limit int) *SeriesUseCase {
	if limit <= 0 {
		limit = 50000
	}
	return &SeriesUseCase{store: store, limit: limit}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
	Candles   []models.Candle
}

func (uc *SeriesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if uc.store == nil {
		return nil, ErrNoCandleStore
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidRequest)
	}
	if !p.To.IsZero() && p.From.After(p.To) {
		return nil, fmt.Errorf("%w: from must be <= to", ErrInvalidRequest)
	}
	if p.Limit <= 0 || p.Limit > uc.limit {
		p.Limit = uc.limit
	}
	p.From, p.To = util.AlignFromTo(p.From, p.To, p.Timeframe.Duration())

	candles, err := uc.store.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	// keep the most recent bars; the candidate is usually at the end
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

// Dataset builds the scanner dataset for p. Embedded series take precedence over sources;
// a stored source also fixes the bar interval from its timeframe.
func (uc *SeriesUseCase) Dataset(ctx context.Context, p *models.OptimizePayload) (*backtest.Dataset, error) {
	if !p.HasSeries() {
		return nil, ErrNoSeries
	}
	settings := optimizer.SettingsFromPayload(p)

	series, tf, err := uc.resolve(ctx, p.Series, p.Source)
	if err != nil {
		return nil, fmt.Errorf("primary series: %w", err)
	}
	if d := tf.Duration(); d > 0 {
		settings.BarInterval = d
	}
	htf, htfTF, err := uc.resolve(ctx, p.HTF, p.HTFSource)
	if err != nil {
		return nil, fmt.Errorf("htf series: %w", err)
	}
	if d := htfTF.Duration(); d > 0 {
		settings.HTFInterval = d
	}
	ltf, _, err := uc.resolve(ctx, p.LTF, p.LTFSource)
	if err != nil {
		return nil, fmt.Errorf("ltf series: %w", err)
	}

	return backtest.NewDataset(series, htf, ltf, settings), nil
}

func (uc *SeriesUseCase) resolve(ctx context.Context, embedded []models.CandleDTO, src *models.SeriesSource) ([]models.Candle, domrepo.Timeframe, error) {
	if len(embedded) > 0 || src == nil {
		return models.ToCandles(embedded), "", nil
	}
	tf := domrepo.Timeframe(src.Timeframe)
	if !domrepo.IsValidTimeframe(tf) {
		return nil, "", fmt.Errorf("%w: unsupported timeframe %q", ErrInvalidRequest, src.Timeframe)
	}
	res, err := uc.GetCandles(ctx, GetCandlesParams{
		Symbol:    src.Symbol,
		From:      src.From,
		To:        src.To,
		Timeframe: tf,
	})
	if err != nil {
		return nil, "", err
	}
	return res.Candles, tf, nil
}
