package optimizer

import (
	"sort"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/backtest"
)

// sampleGap is the match-count difference above which STANDARD prefers the larger sample.
const sampleGap = 50

// Rank orders deduplicated results for mode and returns at most TopN. Unknown modes
// rank as STANDARD.
func Rank(in []models.CombinationResult, mode models.RankMode, custom models.CustomThresholds) []models.CombinationResult {
	items := make([]models.CombinationResult, 0, len(in))
	for _, c := range in {
		if c.Result != nil {
			items = append(items, c)
		}
	}

	switch mode {
	case models.RankWinRate:
		sort.SliceStable(items, func(i, j int) bool { return lessWinRate(items[i], items[j]) })
		return top(items)
	case models.RankEdge:
		sort.SliceStable(items, func(i, j int) bool { return lessEdge(items[i], items[j]) })
		return top(items)
	case models.RankCustom:
		items = filterCustom(items, custom)
		sort.SliceStable(items, func(i, j int) bool { return lessStandard(items[i], items[j]) })
		return top(items)
	default:
		sort.SliceStable(items, func(i, j int) bool { return lessStandard(items[i], items[j]) })
		return ensureBestRobust(items, top(items))
	}
}

func top(items []models.CombinationResult) []models.CombinationResult {
	n := min(len(items), TopN)
	out := make([]models.CombinationResult, n)
	copy(out, items[:n])
	return out
}

func lessWinRate(a, b models.CombinationResult) bool {
	if a.Result.WinRate != b.Result.WinRate {
		return a.Result.WinRate > b.Result.WinRate
	}
	return a.Result.Matches > b.Result.Matches
}

func lessEdge(a, b models.CombinationResult) bool {
	if a.IsRobust != b.IsRobust {
		return a.IsRobust
	}
	sa, sb := a.Result.SQN, b.Result.SQN
	switch {
	case sa != nil && sb == nil:
		return true
	case sa == nil && sb != nil:
		return false
	case sa != nil && *sa != *sb:
		return *sa > *sb
	}
	return lessWinRate(a, b)
}

func lessStandard(a, b models.CombinationResult) bool {
	if a.IsRobust != b.IsRobust {
		return a.IsRobust
	}
	la, lb := speculativeLoose(a), speculativeLoose(b)
	if la != lb {
		return lb
	}
	ma, mb := a.Result.Matches, b.Result.Matches
	if ma-mb > sampleGap || mb-ma > sampleGap {
		return ma > mb
	}
	return lessWinRate(a, b)
}

func speculativeLoose(c models.CombinationResult) bool {
	return c.IsSpeculative && c.SpeculativeTier == models.TierLoose
}

func filterCustom(items []models.CombinationResult, t models.CustomThresholds) []models.CombinationResult {
	minTrades := max(t.MinTrades, backtest.MinMatches)
	out := items[:0]
	for _, c := range items {
		if c.Result.ClosedTrades() < minTrades || c.Result.WinRate < t.MinWinRate {
			continue
		}
		if t.RobustOnly && !c.IsRobust {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ensureBestRobust places the robust result with the largest sample into chosen when the
// general ordering left it out, replacing the last slot if chosen is full.
func ensureBestRobust(sorted, chosen []models.CombinationResult) []models.CombinationResult {
	best := -1
	for i, c := range sorted {
		if c.IsRobust && (best < 0 || c.Result.Matches > sorted[best].Result.Matches) {
			best = i
		}
	}
	if best < 0 {
		return chosen
	}
	for _, c := range chosen {
		if c.Signature == sorted[best].Signature {
			return chosen
		}
	}
	if len(chosen) < TopN {
		return append(chosen, sorted[best])
	}
	chosen[TopN-1] = sorted[best]
	return chosen
}
