package backtest

import (
	"fmt"
	"math"

	"EdgeScan/internal/domain/models"
)

// Weights of each filter in the confluence score.
var Weights = [models.NumFilters]float64{
	models.FilterRSI:         20,
	models.FilterTrend:       15,
	models.FilterTime:        10,
	models.FilterVolatility:  10,
	models.FilterVolume:      10,
	models.FilterBuyPressure: 10,
	models.FilterDelta:       10,
	models.FilterADR:         5,
	models.FilterRegime:      10,
	models.FilterHTF:         15,
	models.FilterLTF:         0,
}

const (
	hourWindow          = 2
	volatilityTolerance = 0.25
	maxADRFilledPct     = 100.0
)

// scorer compares historical bars against a fixed candidate bar.
type scorer struct {
	cfg      models.FilterConfig
	settings Settings
	cand     models.Candle
	candHour int
	tradeDir direction
}

func newScorer(ds *Dataset, cand models.Candle, trade models.TradeType, cfg models.FilterConfig) (*scorer, error) {
	s := &scorer{cfg: cfg, settings: ds.Settings, cand: cand, tradeDir: tradeDirection(trade)}
	missing := func(what string) error {
		return fmt.Errorf("%w: %s", ErrMissingIndicator, what)
	}
	for _, f := range cfg.Filters.IDs() {
		switch f {
		case models.FilterRSI:
			if cand.RSI == nil {
				return nil, missing("rsi")
			}
		case models.FilterTrend:
			if ds.TrendSide == models.TrendMatch && cand.SMA200 == nil {
				return nil, missing("sma200")
			}
		case models.FilterTime:
			h := s.hour(cand)
			if h == nil {
				return nil, missing("hour (" + string(ds.TimeMode) + ")")
			}
			s.candHour = *h
		case models.FilterVolatility:
			if cand.BodySizePct == nil {
				return nil, missing("bodySizePct")
			}
		case models.FilterVolume:
			if cand.Volume == nil {
				return nil, missing("volume")
			}
		case models.FilterBuyPressure:
			if cand.BuyPressurePct == nil {
				return nil, missing("buyPressurePct")
			}
		case models.FilterDelta:
			if cand.Delta == nil {
				return nil, missing("delta")
			}
		case models.FilterRegime:
			if cand.ADX == nil {
				return nil, missing("adx")
			}
		case models.FilterHTF:
			if ds.HTF == nil {
				return nil, missing("higher-timeframe series")
			}
		case models.FilterLTF:
			if ds.LTF == nil {
				return nil, missing("lower-timeframe series")
			}
		}
	}
	return s, nil
}

func (s *scorer) hour(c models.Candle) *int {
	if s.settings.TimeMode == models.TimeLocal {
		return c.HourLocal
	}
	return c.HourUTC
}

// score returns achieved and possible weight for bar c.
func (s *scorer) score(c models.Candle, htf direction) (achieved, possible float64) {
	for _, f := range s.cfg.Filters.IDs() {
		w := Weights[f]
		if w == 0 {
			continue
		}
		possible += w
		if s.pass(f, c, htf) {
			achieved += w
		}
	}
	return achieved, possible
}

func (s *scorer) pass(f models.FilterID, c models.Candle, htf direction) bool {
	cand := s.cand
	tol := s.cfg.Tolerances
	switch f {
	case models.FilterRSI:
		return c.RSI != nil && math.Abs(*c.RSI-*cand.RSI) <= tol.RSI
	case models.FilterTrend:
		if c.SMA200 == nil {
			return false
		}
		side := sideOf(c.Close, *c.SMA200)
		switch s.settings.TrendSide {
		case models.TrendAbove:
			return side > 0
		case models.TrendBelow:
			return side < 0
		default:
			return side == sideOf(cand.Close, *cand.SMA200)
		}
	case models.FilterTime:
		h := s.hour(c)
		return h != nil && hourDistance(*h, s.candHour) <= hourWindow
	case models.FilterVolatility:
		return c.BodySizePct != nil && math.Abs(*c.BodySizePct-*cand.BodySizePct) <= volatilityTolerance
	case models.FilterVolume:
		if c.Volume == nil {
			return false
		}
		ref := *cand.Volume
		if ref == 0 {
			return *c.Volume == 0
		}
		return math.Abs(*c.Volume-ref)/ref*100 <= tol.VolumePct
	case models.FilterBuyPressure:
		return c.BuyPressurePct != nil && math.Abs(*c.BuyPressurePct-*cand.BuyPressurePct) <= tol.BuyPressure
	case models.FilterDelta:
		return c.Delta != nil && sideOf(*c.Delta, 0) == sideOf(*cand.Delta, 0)
	case models.FilterADR:
		// absolute ceiling; the candidate's own reading is not compared
		return c.ADRFilledPct != nil && *c.ADRFilledPct <= maxADRFilledPct
	case models.FilterRegime:
		if c.ADX == nil {
			return false
		}
		thr := s.settings.ADXThreshold
		return (*c.ADX >= thr) == (*cand.ADX >= thr)
	case models.FilterHTF:
		return htf != dirUnknown && htf == s.tradeDir
	case models.FilterLTF:
		return true
	}
	return false
}

func sideOf(price, ref float64) int {
	switch {
	case price > ref:
		return 1
	case price < ref:
		return -1
	}
	return 0
}

// hourDistance is the circular distance between two hours of day.
func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= 24
	return min(d, 24-d)
}
