package simulator

import (
	"testing"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/timeindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Candle {
	return models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c}
}

func flat(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = bar(i, 100, 100.5, 99.5, 100)
	}
	return out
}

func longParams() Params {
	// stop 98, target 104 from entry 100
	return Params{Risk: 0.02, Reward: 0.04, Type: models.Long, MaxDuration: 10}
}

func TestSimulateLongWin(t *testing.T) {
	s := flat(6)
	s[3] = bar(3, 100, 104.5, 99.8, 104)

	out := Simulate(s, 0, longParams())
	assert.Equal(t, models.Win, out.Result)
	assert.Equal(t, 3, out.ExitIndex)
	assert.Equal(t, 3, out.Bars)
	assert.False(t, out.Ambiguous)
	assert.True(t, out.HasReturn)
	assert.InDelta(t, 2.0, out.Return, 1e-9)
	assert.InDelta(t, 0.005, out.MaxAdverse, 1e-9)
}

func TestSimulateShortLoss(t *testing.T) {
	s := flat(6)
	s[2] = bar(2, 100, 102.5, 99.9, 102)
	p := longParams()
	p.Type = models.Short

	out := Simulate(s, 0, p)
	assert.Equal(t, models.Loss, out.Result)
	assert.Equal(t, 2, out.ExitIndex)
	assert.InDelta(t, -1.0, out.Return, 1e-9)
}

func TestSimulateOpenGapHasPriority(t *testing.T) {
	s := flat(4)
	// gaps below the stop but the high would also reach the target
	s[1] = bar(1, 97, 105, 96, 104)

	out := Simulate(s, 0, longParams())
	assert.Equal(t, models.Loss, out.Result)
	assert.False(t, out.Ambiguous)
	assert.Equal(t, 97.0, out.ExitPrice)
	assert.InDelta(t, -1.5, out.Return, 1e-9)
}

func TestSimulateGapThroughTarget(t *testing.T) {
	s := flat(4)
	s[2] = bar(2, 106, 107, 105, 106)

	out := Simulate(s, 0, longParams())
	assert.Equal(t, models.Win, out.Result)
	assert.Equal(t, 106.0, out.ExitPrice)
}

func TestSimulateAmbiguousWithoutLTFIsLoss(t *testing.T) {
	s := flat(4)
	s[1] = bar(1, 100, 105, 97, 100)

	out := Simulate(s, 0, longParams())
	assert.Equal(t, models.Loss, out.Result)
	assert.True(t, out.Ambiguous)
	assert.False(t, out.ResolvedLTF)
}

func TestSimulateAmbiguousResolvedByLTF(t *testing.T) {
	s := flat(4)
	s[1] = bar(1, 100, 105, 97, 100)
	base := s[1].Timestamp
	ltf := []models.Candle{
		{Timestamp: base, Open: 100, High: 101, Low: 99.5, Close: 100.5},
		{Timestamp: base.Add(15 * time.Minute), Open: 100.5, High: 104.5, Low: 100, Close: 104},
		{Timestamp: base.Add(30 * time.Minute), Open: 104, High: 104, Low: 97, Close: 97.5},
	}
	p := longParams()
	p.LTF = timeindex.Build(ltf)
	p.BarInterval = time.Hour

	out := Simulate(s, 0, p)
	assert.Equal(t, models.Win, out.Result)
	assert.True(t, out.Ambiguous)
	assert.True(t, out.ResolvedLTF)
}

func TestSimulateAmbiguousLTFCannotDecide(t *testing.T) {
	s := flat(4)
	s[1] = bar(1, 100, 105, 97, 100)
	base := s[1].Timestamp
	ltf := []models.Candle{
		{Timestamp: base, Open: 100, High: 105, Low: 97, Close: 100},
	}
	p := longParams()
	p.LTF = timeindex.Build(ltf)
	p.BarInterval = time.Hour

	out := Simulate(s, 0, p)
	assert.Equal(t, models.Loss, out.Result)
	assert.True(t, out.Ambiguous)
	assert.False(t, out.ResolvedLTF)
}

func TestSimulateTimeout(t *testing.T) {
	s := flat(30)
	p := longParams()
	p.MaxDuration = 5

	out := Simulate(s, 0, p)
	assert.Equal(t, models.Timeout, out.Result)
	assert.Equal(t, 5, out.Bars)
	assert.Equal(t, 5, out.ExitIndex)
	assert.False(t, out.HasReturn)
}

func TestSimulateRespectsLimit(t *testing.T) {
	s := flat(30)
	s[8] = bar(8, 100, 110, 100, 109)
	p := longParams()
	p.Limit = 6

	out := Simulate(s, 0, p)
	require.Equal(t, models.Timeout, out.Result)
	assert.Equal(t, 5, out.ExitIndex)
}

func TestSimulateSpreadMovesEntry(t *testing.T) {
	s := flat(3)
	p := longParams()
	p.Spread = 1

	out := Simulate(s, 0, p)
	assert.Equal(t, 100.5, out.EntryPrice)
}
