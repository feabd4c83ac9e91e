package optimizer

import "EdgeScan/internal/domain/models"

// classify labels one signature from its NORMAL and LOOSE runs (nil when not accepted).
// Both tiers at or above RobustWinRate flag the NORMAL member robust; a single accepted
// tier is speculative.
func classify(normal, loose *models.CombinationResult) []models.CombinationResult {
	switch {
	case normal != nil && loose != nil:
		nw, lw := normal.Result.WinRate, loose.Result.WinRate
		if nw >= RobustWinRate && lw >= RobustWinRate {
			normal.IsRobust = true
			normal.RobustnessScore = (nw + lw) / 2
		}
		return []models.CombinationResult{*normal, *loose}
	case normal != nil:
		normal.IsSpeculative = true
		normal.SpeculativeTier = models.TierNormal
		return []models.CombinationResult{*normal}
	case loose != nil:
		loose.IsSpeculative = true
		loose.SpeculativeTier = models.TierLoose
		return []models.CombinationResult{*loose}
	}
	return nil
}

// Dedup keeps one result per signature: the first seen, unless a later one is robust
// and the kept one is not. Order of first appearance is preserved.
func Dedup(in []models.CombinationResult) []models.CombinationResult {
	pos := make(map[string]int, len(in))
	out := make([]models.CombinationResult, 0, len(in))
	for _, c := range in {
		i, seen := pos[c.Signature]
		if !seen {
			pos[c.Signature] = len(out)
			out = append(out, c)
			continue
		}
		if c.IsRobust && !out[i].IsRobust {
			out[i] = c
		}
	}
	return out
}
