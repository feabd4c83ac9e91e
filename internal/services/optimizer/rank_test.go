package optimizer

import (
	"testing"

	"EdgeScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cr(sig string, winRate float64, matches int) models.CombinationResult {
	wins := int(float64(matches) * winRate / 100)
	return models.CombinationResult{
		Signature: sig,
		Config:    models.FilterConfig{Tier: models.TierNormal},
		Result: &models.BacktestResult{
			Matches: matches,
			Wins:    wins,
			Losses:  matches - wins,
			WinRate: winRate,
		},
	}
}

func robust(c models.CombinationResult) models.CombinationResult {
	c.IsRobust = true
	c.RobustnessScore = c.Result.WinRate
	return c
}

func speculative(c models.CombinationResult, tier models.Tier) models.CombinationResult {
	c.IsSpeculative = true
	c.SpeculativeTier = tier
	c.Config.Tier = tier
	return c
}

func withSQN(c models.CombinationResult, v float64) models.CombinationResult {
	c.Result.SQN = &v
	return c
}

func TestClassify(t *testing.T) {
	n, l := cr("A|MARK", 60, 20), cr("A|MARK", 55, 25)
	got := classify(&n, &l)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsRobust)
	assert.InDelta(t, 57.5, got[0].RobustnessScore, 1e-12)
	assert.False(t, got[1].IsRobust)

	n, l = cr("B|MARK", 60, 20), cr("B|MARK", 45, 25)
	got = classify(&n, &l)
	assert.False(t, got[0].IsRobust)
	assert.False(t, got[0].IsSpeculative)

	l = cr("C|MARK", 80, 20)
	got = classify(nil, &l)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsSpeculative)
	assert.Equal(t, models.TierLoose, got[0].SpeculativeTier)

	assert.Empty(t, classify(nil, nil))
}

func TestDedupPrefersRobust(t *testing.T) {
	in := []models.CombinationResult{
		cr("A|MARK", 60, 20),
		cr("B|MARK", 70, 20),
		robust(cr("A|MARK", 55, 30)),
		cr("B|MARK", 90, 40),
	}
	got := Dedup(in)
	require.Len(t, got, 2)
	assert.Equal(t, "A|MARK", got[0].Signature)
	assert.True(t, got[0].IsRobust)
	assert.Equal(t, 30, got[0].Result.Matches)
	assert.Equal(t, 70.0, got[1].Result.WinRate, "non-robust duplicates never replace")
}

func TestRankWinRate(t *testing.T) {
	got := Rank([]models.CombinationResult{
		cr("a", 60, 100),
		robust(cr("b", 55, 100)),
		cr("c", 80, 10),
		cr("d", 80, 30),
	}, models.RankWinRate, models.CustomThresholds{})
	assert.Equal(t, []string{"d", "c", "a", "b"}, signatures(got))
}

func TestRankEdge(t *testing.T) {
	got := Rank([]models.CombinationResult{
		withSQN(cr("a", 90, 50), 3.1),
		cr("b", 95, 50),
		robust(cr("c", 55, 50)),
		withSQN(cr("d", 60, 50), 3.4),
		withSQN(robust(cr("e", 52, 50)), 1.2),
	}, models.RankEdge, models.CustomThresholds{})
	assert.Equal(t, []string{"e", "c", "d", "a", "b"}, signatures(got))
}

func TestRankStandardOrdering(t *testing.T) {
	got := Rank([]models.CombinationResult{
		speculative(cr("loose", 99, 40), models.TierLoose),
		cr("small", 90, 20),
		cr("big", 60, 200),
		speculative(cr("normal", 70, 30), models.TierNormal),
		robust(cr("robust", 51, 10)),
	}, models.RankStandard, models.CustomThresholds{})
	assert.Equal(t, []string{"robust", "big", "small", "normal", "loose"}, signatures(got))
}

func TestRankStandardKeepsLargestRobustSample(t *testing.T) {
	in := []models.CombinationResult{
		robust(cr("r1", 90, 20)),
		robust(cr("r2", 85, 20)),
		robust(cr("r3", 80, 20)),
		robust(cr("r4", 75, 20)),
		robust(cr("r5", 70, 20)),
		robust(cr("wide", 60, 60)),
		cr("plain", 99, 20),
	}

	byWinRate := Rank(in, models.RankWinRate, models.CustomThresholds{})
	assert.NotContains(t, signatures(byWinRate), "wide")

	got := Rank(in, models.RankStandard, models.CustomThresholds{})
	require.Len(t, got, TopN)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "wide"}, signatures(got), "fifth slot is replaced")
}

func TestRankCustom(t *testing.T) {
	in := []models.CombinationResult{
		robust(cr("r", 60, 40)),
		cr("few", 90, 4),
		cr("weak", 40, 80),
		cr("ok", 70, 30),
	}

	got := Rank(in, models.RankCustom, models.CustomThresholds{MinTrades: 1, MinWinRate: 50})
	assert.Equal(t, []string{"r", "ok"}, signatures(got), "trade floor is never below 5")

	got = Rank(in, models.RankCustom, models.CustomThresholds{MinTrades: 5, RobustOnly: true})
	assert.Equal(t, []string{"r"}, signatures(got))

	got = Rank(in, models.RankCustom, models.CustomThresholds{MinTrades: 1000})
	assert.Empty(t, got)
}

func TestRankCapsAtTopN(t *testing.T) {
	var in []models.CombinationResult
	for i := 0; i < 12; i++ {
		in = append(in, cr(string(rune('a'+i)), float64(50+i), 20))
	}
	assert.Len(t, Rank(in, models.RankStandard, models.CustomThresholds{}), TopN)
	assert.Len(t, Rank(in, models.RankEdge, models.CustomThresholds{}), TopN)
	assert.Empty(t, Rank(nil, models.RankStandard, models.CustomThresholds{}))
}
