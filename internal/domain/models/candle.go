package models

import (
	"time"

	"EdgeScan/pkg/util"
)

// Candle is one historical bar with indicators precomputed upstream.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *float64  `json:"volume,omitempty"`

	RSI            *float64 `json:"rsi,omitempty"`
	SMA200         *float64 `json:"sma200,omitempty"`
	ADX            *float64 `json:"adx,omitempty"`
	BodySizePct    *float64 `json:"bodySizePct,omitempty"`
	BuyPressurePct *float64 `json:"buyPressurePct,omitempty"`
	Delta          *float64 `json:"delta,omitempty"`
	ADRFilledPct   *float64 `json:"adrFilledPct,omitempty"`

	HourLocal *int `json:"hourLocal,omitempty"`
	HourUTC   *int `json:"hourUtc,omitempty"`
}

// CandleDTO is the wire form of a Candle; the timestamp is still raw text.
type CandleDTO struct {
	Time   string   `json:"time" validate:"required"`
	Open   float64  `json:"open" validate:"gt=0"`
	High   float64  `json:"high" validate:"gt=0"`
	Low    float64  `json:"low" validate:"gt=0"`
	Close  float64  `json:"close" validate:"gt=0"`
	Volume *float64 `json:"volume,omitempty" validate:"omitempty,gte=0"`

	RSI            *float64 `json:"rsi,omitempty"`
	SMA200         *float64 `json:"sma200,omitempty"`
	ADX            *float64 `json:"adx,omitempty"`
	BodySizePct    *float64 `json:"bodySizePct,omitempty"`
	BuyPressurePct *float64 `json:"buyPressurePct,omitempty"`
	Delta          *float64 `json:"delta,omitempty"`
	ADRFilledPct   *float64 `json:"adrFilledPct,omitempty"`

	HourLocal *int `json:"hourLocal,omitempty" validate:"omitempty,gte=0,lte=23"`
	HourUTC   *int `json:"hourUtc,omitempty" validate:"omitempty,gte=0,lte=23"`
}

// ToCandle converts the wire form. An unparseable timestamp becomes the zero time,
// which the time index treats as "drop".
func (d CandleDTO) ToCandle() Candle {
	ts, _ := util.ParseTime(d.Time)
	return Candle{
		Timestamp:      ts,
		Open:           d.Open,
		High:           d.High,
		Low:            d.Low,
		Close:          d.Close,
		Volume:         d.Volume,
		RSI:            d.RSI,
		SMA200:         d.SMA200,
		ADX:            d.ADX,
		BodySizePct:    d.BodySizePct,
		BuyPressurePct: d.BuyPressurePct,
		Delta:          d.Delta,
		ADRFilledPct:   d.ADRFilledPct,
		HourLocal:      d.HourLocal,
		HourUTC:        d.HourUTC,
	}
}

// ToCandles converts a slice of wire candles, preserving order.
func ToCandles(in []CandleDTO) []Candle {
	out := make([]Candle, len(in))
	for i := range in {
		out[i] = in[i].ToCandle()
	}
	return out
}

// HasExtendedIndicators reports whether any bar carries volume, buy pressure or delta.
func HasExtendedIndicators(series []Candle) bool {
	for i := range series {
		c := &series[i]
		if c.Volume != nil || c.BuyPressurePct != nil || c.Delta != nil {
			return true
		}
	}
	return false
}
