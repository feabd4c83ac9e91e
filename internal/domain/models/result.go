package models

// SQNClass buckets a System Quality Number.
type SQNClass string

const (
	SQNPoor      SQNClass = "POOR"
	SQNAverage   SQNClass = "AVERAGE"
	SQNGood      SQNClass = "GOOD"
	SQNExcellent SQNClass = "EXCELLENT"
	SQNSuperb    SQNClass = "SUPERB"
)

// ClassifySQN maps an SQN value onto its fixed thresholds.
func ClassifySQN(v float64) SQNClass {
	switch {
	case v < 1.6:
		return SQNPoor
	case v < 2.0:
		return SQNAverage
	case v < 2.5:
		return SQNGood
	case v < 3.0:
		return SQNExcellent
	default:
		return SQNSuperb
	}
}

// DurationStats summarises trade length in bars.
type DurationStats struct {
	Mean      float64        `json:"mean"`
	Median    float64        `json:"median"`
	P80       float64        `json:"p80"`
	Min       int            `json:"min"`
	Max       int            `json:"max"`
	Histogram []HistogramBin `json:"histogram"`
}

// HistogramBin counts durations in [From, To]; To < 0 means open-ended.
type HistogramBin struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Count int `json:"count"`
}

// HTFStats counts higher-timeframe readings across matches.
type HTFStats struct {
	Aligned       int `json:"aligned"`
	Opposed       int `json:"opposed"`
	Indeterminate int `json:"indeterminate"`
}

// BacktestResult aggregates one Match Scanner run.
type BacktestResult struct {
	Matches  int `json:"matches"`
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`
	Timeouts int `json:"timeouts"`

	WinRate       float64 `json:"winRate"`
	WilsonLower95 float64 `json:"wilsonLower95"`
	BreakEvenRate float64 `json:"breakEvenRate"`
	PValue        float64 `json:"pValue"`

	SQN      *float64 `json:"sqn,omitempty"`
	SQN100   *float64 `json:"sqn100,omitempty"`
	SQNClass SQNClass `json:"sqnClass,omitempty"`

	ExpectancyR float64 `json:"expectancyR"`
	RewardRisk  float64 `json:"rewardRisk"`

	Duration DurationStats `json:"duration"`

	MeanAdversePct float64 `json:"meanAdversePct"`
	MaxAdversePct  float64 `json:"maxAdversePct"`
	PainRatio      float64 `json:"painRatio"`

	VolumeWeightedWinRate      *float64 `json:"volumeWeightedWinRate,omitempty"`
	BuyPressureWeightedWinRate *float64 `json:"buyPressureWeightedWinRate,omitempty"`

	HTF HTFStats `json:"htf"`

	Ambiguous     int `json:"ambiguous"`
	ResolvedByLTF int `json:"resolvedByLtf"`
}

// ClosedTrades is wins plus losses.
func (r *BacktestResult) ClosedTrades() int { return r.Wins + r.Losses }

// CombinationResult is one filter configuration with its statistics and classification.
type CombinationResult struct {
	Config    FilterConfig    `json:"config"`
	Result    *BacktestResult `json:"result"`
	Signature string          `json:"signature"`

	IsRobust        bool    `json:"isRobust"`
	RobustnessScore float64 `json:"robustnessScore,omitempty"`
	IsSpeculative   bool    `json:"isSpeculative"`
	SpeculativeTier Tier    `json:"speculativeTier,omitempty"`
}

// Clone returns a deep copy so receivers never share state with the producer.
func (r *BacktestResult) Clone() *BacktestResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.SQN = clonePtr(r.SQN)
	cp.SQN100 = clonePtr(r.SQN100)
	cp.VolumeWeightedWinRate = clonePtr(r.VolumeWeightedWinRate)
	cp.BuyPressureWeightedWinRate = clonePtr(r.BuyPressureWeightedWinRate)
	cp.Duration.Histogram = append([]HistogramBin(nil), r.Duration.Histogram...)
	return &cp
}

// Clone returns a deep copy of c.
func (c CombinationResult) Clone() CombinationResult {
	c.Config.Names = append([]string(nil), c.Config.Names...)
	c.Result = c.Result.Clone()
	return c
}

// CloneResults deep-copies a ranking.
func CloneResults(in []CombinationResult) []CombinationResult {
	if in == nil {
		return nil
	}
	out := make([]CombinationResult, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
