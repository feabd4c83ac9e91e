// Package timeindex provides as-of and range lookups over a timestamp-ordered candle series.
package timeindex

import (
	"sort"
	"time"

	"EdgeScan/internal/domain/models"
)

// Index holds parallel sorted timestamps and candles. It is read-only after Build.
type Index struct {
	times []time.Time
	rows  []models.Candle
}

// Build indexes series, dropping candles without a valid timestamp. Upstream ordering is
// trusted; the series is not sorted here.
func Build(series []models.Candle) *Index {
	ix := &Index{
		times: make([]time.Time, 0, len(series)),
		rows:  make([]models.Candle, 0, len(series)),
	}
	for i := range series {
		if series[i].Timestamp.IsZero() {
			continue
		}
		ix.times = append(ix.times, series[i].Timestamp)
		ix.rows = append(ix.rows, series[i])
	}
	return ix
}

// Len returns the number of indexed candles.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.times)
}

// AsOf returns the last candle with timestamp <= ts.
func (ix *Index) AsOf(ts time.Time) (models.Candle, bool) {
	if ix.Len() == 0 {
		return models.Candle{}, false
	}
	// first index with time > ts
	i := sort.Search(len(ix.times), func(i int) bool { return ix.times[i].After(ts) })
	if i == 0 {
		return models.Candle{}, false
	}
	return ix.rows[i-1], true
}

// AsOfWithin is AsOf restricted to candles whose [timestamp, timestamp+interval) window
// contains ts. A miss means the regime is unknown, not an error.
func (ix *Index) AsOfWithin(ts time.Time, interval time.Duration) (models.Candle, bool) {
	c, ok := ix.AsOf(ts)
	if !ok {
		return c, false
	}
	if interval > 0 && !ts.Before(c.Timestamp.Add(interval)) {
		return models.Candle{}, false
	}
	return c, true
}

// Range returns the candles with start <= timestamp < end.
func (ix *Index) Range(start, end time.Time) []models.Candle {
	if ix.Len() == 0 || !end.After(start) {
		return nil
	}
	lo := sort.Search(len(ix.times), func(i int) bool { return !ix.times[i].Before(start) })
	hi := sort.Search(len(ix.times), func(i int) bool { return !ix.times[i].Before(end) })
	if lo >= hi {
		return nil
	}
	return ix.rows[lo:hi]
}
