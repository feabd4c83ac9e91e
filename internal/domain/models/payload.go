package models

import "time"

// RankMode selects how the optimizer orders its deduplicated results.
type RankMode string

const (
	RankStandard RankMode = "STANDARD"
	RankWinRate  RankMode = "WINRATE"
	RankEdge     RankMode = "EDGE"
	RankCustom   RankMode = "CUSTOM"
)

// SeriesSource names a stored series instead of embedding it.
type SeriesSource struct {
	Symbol    string    `json:"symbol" validate:"required"`
	Timeframe string    `json:"timeframe" validate:"required"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// CustomThresholds are the CUSTOM ranking filters.
type CustomThresholds struct {
	MinTrades  int     `json:"minTrades" default:"5" validate:"gte=0"`
	MinWinRate float64 `json:"minWinRate" validate:"gte=0,lte=100"`
	RobustOnly bool    `json:"robustOnly"`
}

// OptimizePayload is the full start-command input.
type OptimizePayload struct {
	Mode RankMode `json:"mode" default:"STANDARD" validate:"oneof=STANDARD WINRATE EDGE CUSTOM"`

	Series []CandleDTO `json:"series" validate:"omitempty,dive"`
	HTF    []CandleDTO `json:"htf,omitempty" validate:"omitempty,dive"`
	LTF    []CandleDTO `json:"ltf,omitempty" validate:"omitempty,dive"`

	Source    *SeriesSource `json:"source,omitempty"`
	HTFSource *SeriesSource `json:"htfSource,omitempty"`
	LTFSource *SeriesSource `json:"ltfSource,omitempty"`

	CandidateIndex int         `json:"candidateIndex" validate:"gte=0"`
	Trade          TradeParams `json:"trade"`

	RSITolerance         float64   `json:"rsiTolerance" default:"10" validate:"gt=0"`
	VolumeTolerancePct   float64   `json:"volumeTolerancePct" default:"30" validate:"gt=0"`
	BuyPressureTolerance float64   `json:"buyPressureTolerance" default:"10" validate:"gt=0"`
	TrendSide            TrendSide `json:"trendSide" default:"MATCH" validate:"oneof=MATCH ABOVE BELOW"`
	TimeMode             TimeMode  `json:"timeMode" default:"UTC" validate:"oneof=LOCAL UTC"`
	HTFMode              HTFMode   `json:"htfMode" default:"MARK" validate:"oneof=DISCARD MARK"`
	ADXThreshold         float64   `json:"adxThreshold" default:"25" validate:"gt=0"`

	BarMinutes    int `json:"barMinutes" default:"60" validate:"gt=0"`
	HTFBarMinutes int `json:"htfBarMinutes" default:"240" validate:"gt=0"`

	ExtendedIndicators bool `json:"extendedIndicators"`

	Custom CustomThresholds `json:"custom"`

	Cooldown        bool    `json:"cooldown"`
	MinScore        float64 `json:"minScore" default:"70" validate:"gte=0,lte=100"`
	MaxDurationBars int     `json:"maxDurationBars" default:"100" validate:"gt=0"`
	MinScanIndex    int     `json:"minScanIndex" validate:"gte=0"`
}

// BarInterval is the primary bar duration.
func (p *OptimizePayload) BarInterval() time.Duration {
	return time.Duration(p.BarMinutes) * time.Minute
}

// HTFInterval is the higher-timeframe bar duration.
func (p *OptimizePayload) HTFInterval() time.Duration {
	return time.Duration(p.HTFBarMinutes) * time.Minute
}

// Tolerances returns the NORMAL tier tolerances.
func (p *OptimizePayload) Tolerances() Tolerances {
	return Tolerances{
		RSI:         p.RSITolerance,
		VolumePct:   p.VolumeTolerancePct,
		BuyPressure: p.BuyPressureTolerance,
	}
}

// BacktestRequest drives the Match Scanner for one explicit configuration.
type BacktestRequest struct {
	OptimizePayload
	Filters []string `json:"filters"`
	Tier    Tier     `json:"tier" default:"NORMAL" validate:"oneof=NORMAL LOOSE"`
	UseLTF  bool     `json:"useLtf"`
}

// HasSeries reports whether the primary series is embedded or named.
func (p *OptimizePayload) HasSeries() bool {
	return len(p.Series) > 0 || p.Source != nil
}
