package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTradeGeometry means stop/target do not bracket the spread-adjusted entry.
var ErrInvalidTradeGeometry = errors.New("invalid trade geometry")

// TradeType is the trade direction.
type TradeType string

const (
	Long  TradeType = "LONG"
	Short TradeType = "SHORT"
)

// TradeParams describes the candidate trade.
type TradeParams struct {
	Type       TradeType `json:"tradeType" validate:"required,oneof=LONG SHORT"`
	EntryPrice float64   `json:"entryPrice" validate:"gt=0"`
	StopLoss   float64   `json:"stopLoss" validate:"gt=0"`
	TakeProfit float64   `json:"takeProfit" validate:"gt=0"`
	Spread     float64   `json:"spread" validate:"gte=0"`
}

// EffectiveEntry applies half the spread against the position: longs buy the ask,
// shorts sell the bid.
func EffectiveEntry(price, spread float64, t TradeType) float64 {
	if t == Short {
		return price - spread/2
	}
	return price + spread/2
}

// Normalize returns risk and reward as fractions of the spread-adjusted entry.
func (p TradeParams) Normalize() (risk, reward float64, err error) {
	if p.Type != Long && p.Type != Short {
		return 0, 0, fmt.Errorf("%w: unknown trade type %q", ErrInvalidTradeGeometry, p.Type)
	}
	entry := EffectiveEntry(p.EntryPrice, p.Spread, p.Type)
	if entry <= 0 {
		return 0, 0, fmt.Errorf("%w: entry %.8f after spread", ErrInvalidTradeGeometry, entry)
	}
	switch p.Type {
	case Long:
		if !(p.StopLoss < entry) || !(p.TakeProfit > entry) {
			return 0, 0, fmt.Errorf("%w: long needs stop < %.8f < target", ErrInvalidTradeGeometry, entry)
		}
		risk = (entry - p.StopLoss) / entry
		reward = (p.TakeProfit - entry) / entry
	case Short:
		if !(p.StopLoss > entry) || !(p.TakeProfit < entry) {
			return 0, 0, fmt.Errorf("%w: short needs target < %.8f < stop", ErrInvalidTradeGeometry, entry)
		}
		risk = (p.StopLoss - entry) / entry
		reward = (entry - p.TakeProfit) / entry
	}
	return risk, reward, nil
}

// Outcome of one simulated trade.
type Outcome string

const (
	Win     Outcome = "WIN"
	Loss    Outcome = "LOSS"
	Timeout Outcome = "TIMEOUT"
)

// SimulationOutcome is the ephemeral result of walking one match forward.
type SimulationOutcome struct {
	Result       Outcome
	ExitIndex    int
	Bars         int
	MaxAdverse   float64 // fraction of entry
	Ambiguous    bool
	ResolvedLTF  bool
	Return       float64 // signed R-multiple, closed trades only
	HasReturn    bool
	EntryPrice   float64
	ExitPrice    float64
	RiskFraction float64
}
