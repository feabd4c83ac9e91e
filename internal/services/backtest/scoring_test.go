package backtest

import (
	"testing"

	"EdgeScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate() models.Candle {
	return models.Candle{
		Close:          100,
		Volume:         f(1000),
		RSI:            f(50),
		SMA200:         f(95),
		ADX:            f(30),
		BodySizePct:    f(0.5),
		BuyPressurePct: f(55),
		Delta:          f(10),
		ADRFilledPct:   f(60),
		HourUTC:        h(10),
		HourLocal:      h(17),
	}
}

func scorerFor(t *testing.T, s Settings, filter models.FilterID, cand models.Candle) *scorer {
	t.Helper()
	cfg := models.NewFilterConfig(models.FilterSet(0).With(filter), models.Tolerances{RSI: 5, VolumePct: 30, BuyPressure: 10}, models.TierNormal, models.HTFMark)
	sc, err := newScorer(NewDataset([]models.Candle{cand}, nil, nil, s), cand, models.Long, cfg)
	require.NoError(t, err)
	return sc
}

func TestScorerPass(t *testing.T) {
	type tc struct {
		name   string
		filter models.FilterID
		edit   func(*models.Candle)
		want   bool
	}
	cases := []tc{
		{"rsi at band", models.FilterRSI, func(c *models.Candle) { c.RSI = f(55) }, true},
		{"rsi past band", models.FilterRSI, func(c *models.Candle) { c.RSI = f(55.01) }, false},
		{"rsi missing", models.FilterRSI, func(c *models.Candle) { c.RSI = nil }, false},

		{"trend same side", models.FilterTrend, func(c *models.Candle) { c.Close, c.SMA200 = 50, f(40) }, true},
		{"trend other side", models.FilterTrend, func(c *models.Candle) { c.Close, c.SMA200 = 50, f(60) }, false},
		{"trend on the average", models.FilterTrend, func(c *models.Candle) { c.Close, c.SMA200 = 50, f(50) }, false},

		{"time within two hours", models.FilterTime, func(c *models.Candle) { c.HourUTC = h(12) }, true},
		{"time three hours off", models.FilterTime, func(c *models.Candle) { c.HourUTC = h(13) }, false},

		{"volatility at band", models.FilterVolatility, func(c *models.Candle) { c.BodySizePct = f(0.75) }, true},
		{"volatility past band", models.FilterVolatility, func(c *models.Candle) { c.BodySizePct = f(0.76) }, false},

		{"volume low edge", models.FilterVolume, func(c *models.Candle) { c.Volume = f(700) }, true},
		{"volume high edge", models.FilterVolume, func(c *models.Candle) { c.Volume = f(1300) }, true},
		{"volume below band", models.FilterVolume, func(c *models.Candle) { c.Volume = f(699) }, false},
		{"volume above band", models.FilterVolume, func(c *models.Candle) { c.Volume = f(1301) }, false},

		{"buy pressure at band", models.FilterBuyPressure, func(c *models.Candle) { c.BuyPressurePct = f(45) }, true},
		{"buy pressure past band", models.FilterBuyPressure, func(c *models.Candle) { c.BuyPressurePct = f(44.9) }, false},

		{"delta same sign", models.FilterDelta, func(c *models.Candle) { c.Delta = f(0.1) }, true},
		{"delta opposite sign", models.FilterDelta, func(c *models.Candle) { c.Delta = f(-3) }, false},
		{"delta zero against positive", models.FilterDelta, func(c *models.Candle) { c.Delta = f(0) }, false},

		{"adr at ceiling", models.FilterADR, func(c *models.Candle) { c.ADRFilledPct = f(100) }, true},
		{"adr over ceiling", models.FilterADR, func(c *models.Candle) { c.ADRFilledPct = f(100.5) }, false},
		{"adr missing", models.FilterADR, func(c *models.Candle) { c.ADRFilledPct = nil }, false},

		{"regime both trending", models.FilterRegime, func(c *models.Candle) { c.ADX = f(25) }, true},
		{"regime ranging", models.FilterRegime, func(c *models.Candle) { c.ADX = f(24.9) }, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sc := scorerFor(t, settings(), c.filter, candidate())
			bar := candidate()
			c.edit(&bar)
			assert.Equal(t, c.want, sc.pass(c.filter, bar, dirUnknown))
		})
	}
}

func TestScorerTrendSide(t *testing.T) {
	above := candidate()
	above.Close, above.SMA200 = 110, f(100)
	below := candidate()
	below.Close, below.SMA200 = 90, f(100)

	for side, want := range map[models.TrendSide][2]bool{
		models.TrendMatch: {true, false},
		models.TrendAbove: {true, false},
		models.TrendBelow: {false, true},
	} {
		s := settings()
		s.TrendSide = side
		sc := scorerFor(t, s, models.FilterTrend, candidate())
		assert.Equal(t, want[0], sc.pass(models.FilterTrend, above, dirUnknown), "%s above", side)
		assert.Equal(t, want[1], sc.pass(models.FilterTrend, below, dirUnknown), "%s below", side)
	}

	// ABOVE and BELOW ignore the candidate's own SMA200
	s := settings()
	s.TrendSide = models.TrendAbove
	cand := candidate()
	cand.SMA200 = nil
	sc := scorerFor(t, s, models.FilterTrend, cand)
	assert.True(t, sc.pass(models.FilterTrend, above, dirUnknown))
}

func TestScorerTimeMode(t *testing.T) {
	bar := candidate()
	bar.HourUTC, bar.HourLocal = h(22), h(18)

	utc := scorerFor(t, settings(), models.FilterTime, candidate())
	assert.False(t, utc.pass(models.FilterTime, bar, dirUnknown))

	s := settings()
	s.TimeMode = models.TimeLocal
	local := scorerFor(t, s, models.FilterTime, candidate())
	assert.True(t, local.pass(models.FilterTime, bar, dirUnknown))

	cand := candidate()
	cand.HourLocal = nil
	_, err := newScorer(NewDataset([]models.Candle{cand}, nil, nil, s), cand, models.Long,
		models.NewFilterConfig(models.FilterSet(0).With(models.FilterTime), models.Tolerances{}, models.TierNormal, models.HTFMark))
	assert.ErrorIs(t, err, ErrMissingIndicator)
}

func TestScorerZeroReferenceVolume(t *testing.T) {
	cand := candidate()
	cand.Volume = f(0)
	sc := scorerFor(t, settings(), models.FilterVolume, cand)

	bar := candidate()
	bar.Volume = f(0)
	assert.True(t, sc.pass(models.FilterVolume, bar, dirUnknown))
	bar.Volume = f(1)
	assert.False(t, sc.pass(models.FilterVolume, bar, dirUnknown))
}

func TestScorerZeroDeltaMatchesOnlyZero(t *testing.T) {
	cand := candidate()
	cand.Delta = f(0)
	sc := scorerFor(t, settings(), models.FilterDelta, cand)

	bar := candidate()
	bar.Delta = f(0)
	assert.True(t, sc.pass(models.FilterDelta, bar, dirUnknown))
	bar.Delta = f(5)
	assert.False(t, sc.pass(models.FilterDelta, bar, dirUnknown))
	bar.Delta = f(-5)
	assert.False(t, sc.pass(models.FilterDelta, bar, dirUnknown))
}

func TestScorerADRIgnoresCandidateReading(t *testing.T) {
	cand := candidate()
	cand.ADRFilledPct = nil
	sc := scorerFor(t, settings(), models.FilterADR, cand)
	assert.True(t, sc.pass(models.FilterADR, candidate(), dirUnknown))
}

func TestScorerHTFDirection(t *testing.T) {
	htf := []models.Candle{{Timestamp: t0, Open: 1, High: 1, Low: 1, Close: 1}}
	cand := candidate()
	cfg := models.NewFilterConfig(models.FilterSet(0).With(models.FilterHTF), models.Tolerances{}, models.TierNormal, models.HTFMark)
	sc, err := newScorer(NewDataset([]models.Candle{cand}, htf, nil, settings()), cand, models.Long, cfg)
	require.NoError(t, err)

	assert.True(t, sc.pass(models.FilterHTF, cand, dirUp))
	assert.False(t, sc.pass(models.FilterHTF, cand, dirDown))
	assert.False(t, sc.pass(models.FilterHTF, cand, dirUnknown))
}

func TestScoreSkipsUnweightedFilters(t *testing.T) {
	ltf := []models.Candle{{Timestamp: t0, Open: 1, High: 1, Low: 1, Close: 1}}
	cand := candidate()
	set := models.FilterSet(0).With(models.FilterRSI).With(models.FilterLTF)
	sc, err := newScorer(NewDataset([]models.Candle{cand}, nil, ltf, settings()), cand, models.Long,
		models.NewFilterConfig(set, models.Tolerances{RSI: 5}, models.TierNormal, models.HTFMark))
	require.NoError(t, err)

	achieved, possible := sc.score(cand, dirUnknown)
	assert.Equal(t, Weights[models.FilterRSI], possible)
	assert.Equal(t, possible, achieved)
}

func TestLoosenScalesAndClamps(t *testing.T) {
	got := models.Tolerances{RSI: 10, VolumePct: 30, BuyPressure: 10}.Loosen()
	assert.InDelta(t, 12, got.RSI, 1e-9)
	assert.InDelta(t, 36, got.VolumePct, 1e-9)
	assert.InDelta(t, 12, got.BuyPressure, 1e-9)

	floor := models.Tolerances{RSI: 1, VolumePct: 2, BuyPressure: 0}.Loosen()
	assert.Equal(t, models.MinRSITolerance, floor.RSI)
	assert.Equal(t, models.MinVolumePctTolerance, floor.VolumePct)
	assert.Equal(t, models.MinBuyPressureTolerance, floor.BuyPressure)
}
