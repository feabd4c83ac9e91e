package backtest

import (
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/services/timeindex"
)

// MinLookback keeps every scanned bar past the longest indicator warm-up (SMA200).
const MinLookback = 200

// Settings are run-wide knobs shared by every filter configuration.
type Settings struct {
	TimeMode     models.TimeMode
	TrendSide    models.TrendSide
	ADXThreshold float64
	MaxDuration  int
	MinScanIndex int
	BarInterval  time.Duration
	HTFInterval  time.Duration
}

// Dataset is the primary series plus optional auxiliary indices, built once per run.
type Dataset struct {
	Series []models.Candle
	HTF    *timeindex.Index
	LTF    *timeindex.Index
	Settings
}

// NewDataset indexes the auxiliary series; empty ones are left nil.
func NewDataset(series, htf, ltf []models.Candle, s Settings) *Dataset {
	ds := &Dataset{Series: series, Settings: s}
	if len(htf) > 0 {
		if ix := timeindex.Build(htf); ix.Len() > 0 {
			ds.HTF = ix
		}
	}
	if len(ltf) > 0 {
		if ix := timeindex.Build(ltf); ix.Len() > 0 {
			ds.LTF = ix
		}
	}
	return ds
}

// direction of a trend reading.
type direction int8

const (
	dirUnknown direction = 0
	dirUp      direction = 1
	dirDown    direction = -1
)

func tradeDirection(t models.TradeType) direction {
	if t == models.Short {
		return dirDown
	}
	return dirUp
}

// htfDirection reads the higher-timeframe bar covering ts: close against its SMA200 when
// present, otherwise against its open.
func (ds *Dataset) htfDirection(ts time.Time) direction {
	if ds.HTF == nil {
		return dirUnknown
	}
	c, ok := ds.HTF.AsOfWithin(ts, ds.HTFInterval)
	if !ok {
		return dirUnknown
	}
	ref := c.Open
	if c.SMA200 != nil {
		ref = *c.SMA200
	}
	switch {
	case c.Close > ref:
		return dirUp
	case c.Close < ref:
		return dirDown
	default:
		return dirUnknown
	}
}
