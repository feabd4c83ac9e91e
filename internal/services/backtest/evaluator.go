// Package backtest scans history for bars similar to a candidate setup and evaluates how
// trades taken on them would have resolved.
package backtest

import (
	"fmt"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/simulator"
)

// MinMatches is the smallest sample a configuration must produce to be reported.
const MinMatches = 5

// Evaluate runs the Match Scanner for one filter configuration.
func Evaluate(ds *Dataset, candidate int, trade models.TradeParams, cfg models.FilterConfig) (*models.BacktestResult, error) {
	if ds == nil || len(ds.Series) == 0 {
		return nil, ErrEmptySeries
	}
	if candidate < 0 || candidate >= len(ds.Series) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrCandidateOutOfRange, candidate, len(ds.Series))
	}
	risk, reward, err := trade.Normalize()
	if err != nil {
		return nil, err
	}
	sc, err := newScorer(ds, ds.Series[candidate], trade.Type, cfg)
	if err != nil {
		return nil, err
	}

	params := simulator.Params{
		Risk:        risk,
		Reward:      reward,
		Type:        trade.Type,
		Spread:      trade.Spread,
		MaxDuration: ds.MaxDuration,
		Limit:       candidate + 1,
		BarInterval: ds.BarInterval,
	}
	if cfg.UseLTF {
		params.LTF = ds.LTF
	}

	acc := newAccumulator(ds.HTF != nil, sc.tradeDir)
	useHTF := cfg.Filters.Has(models.FilterHTF)

	for i := max(MinLookback, ds.MinScanIndex); i < candidate; i++ {
		bar := ds.Series[i]
		htf := ds.htfDirection(bar.Timestamp)
		if useHTF && cfg.HTFRequired && htf == dirUnknown {
			continue
		}
		// the gate applies only when a weighted filter is enabled
		if achieved, possible := sc.score(bar, htf); possible > 0 && achieved/possible*100 < cfg.MinScore {
			continue
		}

		out := simulator.Simulate(ds.Series, i, params)
		acc.add(bar, out, htf)

		if cfg.Cooldown && out.ExitIndex > i {
			i = out.ExitIndex - 1
		}
	}

	if acc.matches < MinMatches {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientMatches, acc.matches, MinMatches)
	}
	if acc.wins+acc.losses == 0 {
		return nil, fmt.Errorf("%w: %d matches all timed out", ErrNoClosedTrades, acc.matches)
	}
	return acc.result(risk, reward), nil
}

// accumulator keeps the running sums of one scan; individual outcomes are dropped.
type accumulator struct {
	matches, wins, losses, timeouts int
	ambiguous, resolved             int

	returns    []float64
	durations  []int
	winAdverse []float64

	volAll, volWin float64
	bpAll, bpWin   float64
	hasVol, hasBP  bool

	trackHTF bool
	tradeDir direction
	htf      models.HTFStats
}

func newAccumulator(trackHTF bool, dir direction) *accumulator {
	return &accumulator{trackHTF: trackHTF, tradeDir: dir}
}

func (a *accumulator) add(bar models.Candle, out models.SimulationOutcome, htf direction) {
	a.matches++
	win := out.Result == models.Win
	switch out.Result {
	case models.Win:
		a.wins++
		a.winAdverse = append(a.winAdverse, out.MaxAdverse)
	case models.Loss:
		a.losses++
	default:
		a.timeouts++
	}
	if out.Result != models.Timeout {
		a.durations = append(a.durations, out.Bars)
		if out.HasReturn {
			a.returns = append(a.returns, out.Return)
		}
	}
	if out.Ambiguous {
		a.ambiguous++
		if out.ResolvedLTF {
			a.resolved++
		}
	}

	if bar.Volume != nil {
		a.hasVol = true
		a.volAll += *bar.Volume
		if win {
			a.volWin += *bar.Volume
		}
	}
	if bar.BuyPressurePct != nil {
		a.hasBP = true
		a.bpAll += *bar.BuyPressurePct
		if win {
			a.bpWin += *bar.BuyPressurePct
		}
	}

	if a.trackHTF {
		switch htf {
		case dirUnknown:
			a.htf.Indeterminate++
		case a.tradeDir:
			a.htf.Aligned++
		default:
			a.htf.Opposed++
		}
	}
}

func (a *accumulator) result(risk, reward float64) *models.BacktestResult {
	closed := a.wins + a.losses
	be := BreakEvenRate(risk, reward)
	r := &models.BacktestResult{
		Matches:       a.matches,
		Wins:          a.wins,
		Losses:        a.losses,
		Timeouts:      a.timeouts,
		WinRate:       float64(a.wins) / float64(closed) * 100,
		WilsonLower95: WilsonLower(a.wins, closed) * 100,
		BreakEvenRate: be * 100,
		PValue:        OneSidedPValue(a.wins, closed, be),
		ExpectancyR:   Mean(a.returns),
		RewardRisk:    reward / risk,
		Duration:      durationStats(a.durations),
		HTF:           a.htf,
		Ambiguous:     a.ambiguous,
		ResolvedByLTF: a.resolved,
	}

	if sqn, sqn100, ok := SQN(a.returns); ok {
		r.SQN = &sqn
		r.SQN100 = &sqn100
		r.SQNClass = models.ClassifySQN(sqn100)
	}

	if len(a.winAdverse) > 0 {
		mean := Mean(a.winAdverse)
		var worst float64
		for _, x := range a.winAdverse {
			worst = max(worst, x)
		}
		r.MeanAdversePct = mean * 100
		r.MaxAdversePct = worst * 100
		r.PainRatio = mean / risk
	}

	if a.hasVol && a.volAll > 0 {
		v := a.volWin / a.volAll * 100
		r.VolumeWeightedWinRate = &v
	}
	if a.hasBP && a.bpAll > 0 {
		v := a.bpWin / a.bpAll * 100
		r.BuyPressureWeightedWinRate = &v
	}
	return r
}
