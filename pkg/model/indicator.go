package model

import "strings"

// IndicatorKind identifies one of the supported indicator formulas
type IndicatorKind string

const (
	KindRSI        IndicatorKind = "rsi"
	KindEMA        IndicatorKind = "ema"
	KindMACD       IndicatorKind = "macd"
	KindSMA        IndicatorKind = "sma"
	KindBollinger  IndicatorKind = "bollinger"
	KindStochastic IndicatorKind = "stochastic"
	KindVWAP       IndicatorKind = "vwap"
	KindADX        IndicatorKind = "adx"
	KindSAR        IndicatorKind = "sar"
	KindIchimoku   IndicatorKind = "ichimoku"
)

// AllKinds lists every indicator kind in dispatch order
var AllKinds = []IndicatorKind{
	KindRSI, KindEMA, KindMACD, KindSMA, KindBollinger,
	KindStochastic, KindVWAP, KindADX, KindSAR, KindIchimoku,
}

// ParseIndicatorKind resolves a kind from a kind string or display name
func ParseIndicatorKind(s string) (IndicatorKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range AllKinds {
		if s == string(k) {
			return k, true
		}
	}
	return "", false
}

// IndicatorSet is a typed registry of indicator results keyed by kind.
// Insertion order is preserved for iteration.
type IndicatorSet struct {
	byKind map[IndicatorKind]IndicatorResult
	order  []IndicatorKind
}

// NewIndicatorSet builds a set from orchestrator results. Results without a
// recognised kind or with an empty forecast are ignored; the first result of
// a kind wins.
func NewIndicatorSet(results []IndicatorResult) IndicatorSet {
	set := IndicatorSet{byKind: make(map[IndicatorKind]IndicatorResult, len(results))}
	for _, r := range results {
		kind := r.Kind
		if kind == "" {
			var ok bool
			if kind, ok = ParseIndicatorKind(r.Name); !ok {
				continue
			}
		}
		if len(r.Forecast) == 0 {
			continue
		}
		if _, dup := set.byKind[kind]; dup {
			continue
		}
		set.byKind[kind] = r
		set.order = append(set.order, kind)
	}
	return set
}

// Get returns the result for a kind
func (s IndicatorSet) Get(kind IndicatorKind) (IndicatorResult, bool) {
	r, ok := s.byKind[kind]
	return r, ok
}

// Has reports whether the set contains a kind
func (s IndicatorSet) Has(kind IndicatorKind) bool {
	_, ok := s.byKind[kind]
	return ok
}

// First returns the first present kind out of the candidates
func (s IndicatorSet) First(kinds ...IndicatorKind) (IndicatorResult, bool) {
	for _, k := range kinds {
		if r, ok := s.byKind[k]; ok {
			return r, true
		}
	}
	return IndicatorResult{}, false
}

// Results returns the results in insertion order
func (s IndicatorSet) Results() []IndicatorResult {
	out := make([]IndicatorResult, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKind[k])
	}
	return out
}

// Kinds returns the present kinds in insertion order
func (s IndicatorSet) Kinds() []IndicatorKind {
	return append([]IndicatorKind(nil), s.order...)
}

// Len returns the number of results
func (s IndicatorSet) Len() int {
	return len(s.order)
}
