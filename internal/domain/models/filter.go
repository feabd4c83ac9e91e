package models

import (
	"math/bits"
	"strings"
)

// FilterID identifies one similarity toggle.
type FilterID uint8

const (
	FilterRSI FilterID = iota
	FilterTrend
	FilterTime
	FilterVolatility
	FilterVolume
	FilterBuyPressure
	FilterDelta
	FilterADR
	FilterRegime
	FilterHTF
	// FilterLTF is unweighted: it switches on lower-timeframe replay of ambiguous bars.
	FilterLTF

	NumFilters
)

var filterNames = [NumFilters]string{
	FilterRSI:         "RSI",
	FilterTrend:       "TREND",
	FilterTime:        "TIME",
	FilterVolatility:  "VOLATILITY",
	FilterVolume:      "VOLUME",
	FilterBuyPressure: "BUY_PRESSURE",
	FilterDelta:       "DELTA",
	FilterADR:         "ADR",
	FilterRegime:      "REGIME",
	FilterHTF:         "HTF",
	FilterLTF:         "LTF",
}

func (f FilterID) String() string {
	if f < NumFilters {
		return filterNames[f]
	}
	return "UNKNOWN"
}

// ParseFilterID resolves a filter name, case-insensitive.
func ParseFilterID(s string) (FilterID, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range filterNames {
		if n == s {
			return FilterID(i), true
		}
	}
	return 0, false
}

// FilterSet is a bit flag over FilterID.
type FilterSet uint16

func (s FilterSet) Has(f FilterID) bool { return s&(1<<f) != 0 }
func (s FilterSet) With(f FilterID) FilterSet { return s | 1<<f }
func (s FilterSet) Count() int { return bits.OnesCount16(uint16(s)) }
func (s FilterSet) Empty() bool { return s == 0 }
func (s FilterSet) Without(f FilterID) FilterSet { return s &^ (1 << f) }

// IDs lists the enabled filters in enum order.
func (s FilterSet) IDs() []FilterID {
	out := make([]FilterID, 0, s.Count())
	for f := FilterID(0); f < NumFilters; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FilterSet) String() string {
	if s.Empty() {
		return "NONE"
	}
	ids := s.IDs()
	parts := make([]string, len(ids))
	for i, f := range ids {
		parts[i] = f.String()
	}
	return strings.Join(parts, "+")
}

// ParseFilterSet builds a set from names; unknown names are returned separately.
func ParseFilterSet(names []string) (FilterSet, []string) {
	var set FilterSet
	var unknown []string
	for _, n := range names {
		f, ok := ParseFilterID(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		set = set.With(f)
	}
	return set, unknown
}

// Tier is a sensitivity tier.
type Tier string

const (
	TierNormal Tier = "NORMAL"
	TierLoose  Tier = "LOOSE"
)

// HTFMode controls bars whose higher-timeframe reading is indeterminate.
type HTFMode string

const (
	HTFDiscard HTFMode = "DISCARD"
	HTFMark    HTFMode = "MARK"
)

// TimeMode selects which hour field the TIME filter compares.
type TimeMode string

const (
	TimeLocal TimeMode = "LOCAL"
	TimeUTC   TimeMode = "UTC"
)

// TrendSide is the TREND filter requirement.
type TrendSide string

const (
	TrendMatch TrendSide = "MATCH" // same side of SMA200 as the candidate
	TrendAbove TrendSide = "ABOVE"
	TrendBelow TrendSide = "BELOW"
)

// Tolerances holds the per-filter bands.
type Tolerances struct {
	RSI         float64 `json:"rsi"`
	VolumePct   float64 `json:"volumePct"`
	BuyPressure float64 `json:"buyPressure"`
}

// Tolerance floors applied when loosening.
const (
	MinRSITolerance         = 2.0
	MinVolumePctTolerance   = 5.0
	MinBuyPressureTolerance = 2.0

	LooseFactor = 1.2
)

// Loosen scales every tolerance by LooseFactor, floor-clamped.
func (t Tolerances) Loosen() Tolerances {
	return Tolerances{
		RSI:         max(t.RSI*LooseFactor, MinRSITolerance),
		VolumePct:   max(t.VolumePct*LooseFactor, MinVolumePctTolerance),
		BuyPressure: max(t.BuyPressure*LooseFactor, MinBuyPressureTolerance),
	}
}

// DefaultMinScore is the confluence threshold when none is configured.
const DefaultMinScore = 70.0

// FilterConfig is one immutable filter configuration.
type FilterConfig struct {
	Filters     FilterSet  `json:"-"`
	Names       []string   `json:"filters"`
	Tolerances  Tolerances `json:"tolerances"`
	MinScore    float64    `json:"minScore"`
	Tier        Tier       `json:"tier"`
	HTFMode     HTFMode    `json:"htfMode"`
	HTFRequired bool       `json:"htfRequired"`
	UseLTF      bool       `json:"useLtf"`
	Cooldown    bool       `json:"cooldown"`
}

// NewFilterConfig fills the derived fields.
func NewFilterConfig(set FilterSet, tol Tolerances, tier Tier, mode HTFMode) FilterConfig {
	names := make([]string, 0, set.Count())
	for _, f := range set.IDs() {
		names = append(names, f.String())
	}
	return FilterConfig{
		Filters:     set,
		Names:       names,
		Tolerances:  tol,
		MinScore:    DefaultMinScore,
		Tier:        tier,
		HTFMode:     mode,
		HTFRequired: set.Has(FilterHTF) && mode == HTFDiscard,
		UseLTF:      set.Has(FilterLTF),
	}
}

// Signature is the dedup key: toggle pattern plus HTF mode.
func (c FilterConfig) Signature() string {
	return c.Filters.String() + "|" + string(c.HTFMode)
}
