package backtest

import (
	"math"
	"sort"

	"EdgeScan/internal/domain/models"
)

const (
	z95 = 1.959963984540054

	// MinSQNTrades is the fewest closed trades with a return for which SQN is reported.
	MinSQNTrades = 5

	sqnCap       = 10.0
	sqnMinStdDev = 1e-9
)

// WilsonLower returns the 95% Wilson score lower bound with continuity correction, in [0,1].
func WilsonLower(wins, n int) float64 {
	if n <= 0 || wins <= 0 {
		return 0
	}
	nf := float64(n)
	p := float64(wins) / nf
	z2 := z95 * z95
	disc := z2 - 2 - 1/nf + 4*p*(nf*(1-p)+1)
	if disc < 0 {
		disc = 0
	}
	lower := (2*nf*p + z2 - 1 - z95*math.Sqrt(disc)) / (2 * (nf + z2))
	return math.Min(math.Max(lower, 0), p)
}

// Erf approximates the error function (Abramowitz and Stegun 7.1.26).
func Erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	t := 1 / (1 + p*x)
	y := 1 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}

// NormCDF is the standard normal CDF built on Erf.
func NormCDF(z float64) float64 {
	return 0.5 * (1 + Erf(z/math.Sqrt2))
}

// BreakEvenRate is the win rate at which a reward:risk shape breaks even, in [0,1].
func BreakEvenRate(risk, reward float64) float64 {
	if risk+reward <= 0 {
		return 0.5
	}
	return risk / (risk + reward)
}

// OneSidedPValue tests H0: true win rate equals p0 against H1: it is higher.
func OneSidedPValue(wins, n int, p0 float64) float64 {
	if n <= 0 || p0 <= 0 || p0 >= 1 {
		return 1
	}
	phat := float64(wins) / float64(n)
	se := math.Sqrt(p0 * (1 - p0) / float64(n))
	z := (phat - p0) / se
	return 1 - NormCDF(z)
}

// SQN returns the System Quality Number and its variant normalized to at most 100 trades.
// ok is false when fewer than MinSQNTrades returns are supplied.
func SQN(returns []float64) (sqn, sqn100 float64, ok bool) {
	n := len(returns)
	if n < MinSQNTrades {
		return 0, 0, false
	}
	mean := Mean(returns)
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(n-1))
	if sd < sqnMinStdDev {
		sd = sqnMinStdDev
	}
	ratio := mean / sd
	sqn = clamp(ratio*math.Sqrt(float64(n)), -sqnCap, sqnCap)
	sqn100 = clamp(ratio*math.Sqrt(float64(min(n, 100))), -sqnCap, sqnCap)
	return sqn, sqn100, true
}

// Mean of xs; zero for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Percentile uses linear interpolation between closest ranks on sorted data.
func Percentile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

var durationBuckets = [][2]int{{1, 5}, {6, 10}, {11, 20}, {21, 50}, {51, -1}}

// durationStats summarises bar counts; durations is not modified.
func durationStats(durations []int) models.DurationStats {
	ds := models.DurationStats{Histogram: make([]models.HistogramBin, len(durationBuckets))}
	for i, b := range durationBuckets {
		ds.Histogram[i] = models.HistogramBin{From: b[0], To: b[1]}
	}
	if len(durations) == 0 {
		return ds
	}
	sorted := make([]float64, len(durations))
	for i, d := range durations {
		sorted[i] = float64(d)
		for k, b := range durationBuckets {
			if d >= b[0] && (b[1] < 0 || d <= b[1]) {
				ds.Histogram[k].Count++
				break
			}
		}
	}
	sort.Float64s(sorted)
	ds.Mean = Mean(sorted)
	ds.Median = Percentile(sorted, 0.5)
	ds.P80 = Percentile(sorted, 0.8)
	ds.Min = int(sorted[0])
	ds.Max = int(sorted[len(sorted)-1])
	return ds
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
