// Package simulator walks a trade forward through a candle series.
package simulator

import (
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/timeindex"
)

// Params is the normalized trade shape plus walk limits.
type Params struct {
	Risk        float64 // fraction of effective entry
	Reward      float64 // fraction of effective entry
	Type        models.TradeType
	Spread      float64
	MaxDuration int
	// Limit is the exclusive upper bound on walked bar indices; 0 means len(series).
	Limit int

	LTF         *timeindex.Index
	BarInterval time.Duration
}

// touch is what a single bar says about the position.
type touch int

const (
	touchNone touch = iota
	touchStop
	touchTarget
	touchBoth
)

type levels struct {
	long   bool
	entry  float64
	stop   float64
	target float64
}

func newLevels(close float64, p Params) levels {
	lv := levels{long: p.Type != models.Short}
	lv.entry = models.EffectiveEntry(close, p.Spread, p.Type)
	if lv.long {
		lv.stop = lv.entry * (1 - p.Risk)
		lv.target = lv.entry * (1 + p.Reward)
	} else {
		lv.stop = lv.entry * (1 + p.Risk)
		lv.target = lv.entry * (1 - p.Reward)
	}
	return lv
}

// check applies open-gap priority first, then intrabar extremes. fill is the price the
// position would exit at.
func (lv levels) check(c models.Candle) (touch, float64) {
	if lv.long {
		switch {
		case c.Open <= lv.stop:
			return touchStop, c.Open
		case c.Open >= lv.target:
			return touchTarget, c.Open
		}
		hitStop, hitTarget := c.Low <= lv.stop, c.High >= lv.target
		switch {
		case hitStop && hitTarget:
			return touchBoth, lv.stop
		case hitStop:
			return touchStop, lv.stop
		case hitTarget:
			return touchTarget, lv.target
		}
		return touchNone, 0
	}

	switch {
	case c.Open >= lv.stop:
		return touchStop, c.Open
	case c.Open <= lv.target:
		return touchTarget, c.Open
	}
	hitStop, hitTarget := c.High >= lv.stop, c.Low <= lv.target
	switch {
	case hitStop && hitTarget:
		return touchBoth, lv.stop
	case hitStop:
		return touchStop, lv.stop
	case hitTarget:
		return touchTarget, lv.target
	}
	return touchNone, 0
}

func (lv levels) adverse(c models.Candle) float64 {
	var a float64
	if lv.long {
		a = (lv.entry - c.Low) / lv.entry
	} else {
		a = (c.High - lv.entry) / lv.entry
	}
	return max(a, 0)
}

// rMultiple is the signed return of a fill in units of initial risk.
func (lv levels) rMultiple(fill float64) float64 {
	risk := lv.entry - lv.stop
	if !lv.long {
		risk = lv.stop - lv.entry
	}
	if risk == 0 {
		return 0
	}
	if lv.long {
		return (fill - lv.entry) / risk
	}
	return (lv.entry - fill) / risk
}

// Simulate walks forward from series[start] until the stop or target resolves, or
// MaxDuration bars pass. A bar that touches both levels is replayed on the lower
// timeframe when available; if that cannot decide, it is a LOSS.
func Simulate(series []models.Candle, start int, p Params) models.SimulationOutcome {
	lv := newLevels(series[start].Close, p)
	out := models.SimulationOutcome{
		Result:       models.Timeout,
		ExitIndex:    start,
		EntryPrice:   lv.entry,
		RiskFraction: p.Risk,
	}

	limit := p.Limit
	if limit <= 0 || limit > len(series) {
		limit = len(series)
	}

	for j := start + 1; j <= start+p.MaxDuration && j < limit; j++ {
		bar := series[j]
		out.ExitIndex = j
		out.Bars = j - start
		out.MaxAdverse = max(out.MaxAdverse, lv.adverse(bar))

		t, fill := lv.check(bar)
		switch t {
		case touchNone:
			continue
		case touchStop:
			return closeOut(out, lv, models.Loss, fill)
		case touchTarget:
			return closeOut(out, lv, models.Win, fill)
		}

		out.Ambiguous = true
		if p.LTF != nil && p.BarInterval > 0 {
			window := p.LTF.Range(bar.Timestamp, bar.Timestamp.Add(p.BarInterval))
			if res, fill, ok := replay(lv, window); ok {
				out.ResolvedLTF = true
				return closeOut(out, lv, res, fill)
			}
		}
		return closeOut(out, lv, models.Loss, lv.stop)
	}
	return out
}

// replay walks finer bars in order; the first bar touching exactly one level decides.
func replay(lv levels, window []models.Candle) (models.Outcome, float64, bool) {
	for _, c := range window {
		t, fill := lv.check(c)
		switch t {
		case touchStop:
			return models.Loss, fill, true
		case touchTarget:
			return models.Win, fill, true
		case touchBoth:
			return "", 0, false
		}
	}
	return "", 0, false
}

func closeOut(out models.SimulationOutcome, lv levels, res models.Outcome, fill float64) models.SimulationOutcome {
	out.Result = res
	out.ExitPrice = fill
	out.Return = lv.rMultiple(fill)
	out.HasReturn = true
	return out
}
