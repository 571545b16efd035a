// Package scoring implements the weighted-indicator scoring engine used by every
// assessment type in the facility: the Morse fall scale, the facility
// early-warning index and any other checklist that maps a set of indicators to
// an ordered category.
//
// A Rule is compiled once from a RuleSpec and shared read-only across
// evaluations. Score and Classify are pure: they never read the clock, never
// log and never fail at runtime.
package scoring

import (
	"fmt"
	"strings"
)

// IndicatorKind is the value type carried by an IndicatorValue.
type IndicatorKind string

const (
	KindBoolean IndicatorKind = "boolean"
	KindEnum    IndicatorKind = "enum"
	KindNumeric IndicatorKind = "numeric"
)

// IsValid reports whether k is one of the known indicator kinds.
func (k IndicatorKind) IsValid() bool {
	switch k {
	case KindBoolean, KindEnum, KindNumeric:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k IndicatorKind) String() string {
	return string(k)
}

// Directionality tells the engine which end of the score range is the bad one.
type Directionality string

const (
	HigherIsWorse  Directionality = "higher_is_worse"
	HigherIsBetter Directionality = "higher_is_better"
)

// IsValid reports whether d is a known directionality.
func (d Directionality) IsValid() bool {
	switch d {
	case HigherIsWorse, HigherIsBetter:
		return true
	default:
		return false
	}
}

// String returns the string representation of the directionality.
func (d Directionality) String() string {
	return string(d)
}

// ParseDirectionality accepts the canonical names plus the short forms used in
// rule files ("worse", "better").
func ParseDirectionality(s string) (Directionality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "higher_is_worse", "higherisworse", "worse":
		return HigherIsWorse, nil
	case "higher_is_better", "higherisbetter", "better":
		return HigherIsBetter, nil
	default:
		return "", fmt.Errorf("unknown directionality %q", s)
	}
}

// IndicatorValue is a single recorded input to a rule. Only the field that
// matches Kind is read.
type IndicatorValue struct {
	Key    string        `json:"key" yaml:"key"`
	Kind   IndicatorKind `json:"kind" yaml:"kind"`
	Flag   bool          `json:"flag,omitempty" yaml:"flag,omitempty"`
	Option string        `json:"option,omitempty" yaml:"option,omitempty"`
	Number float64       `json:"number,omitempty" yaml:"number,omitempty"`
}

// Bool builds a boolean indicator.
func Bool(key string, v bool) IndicatorValue {
	return IndicatorValue{Key: key, Kind: KindBoolean, Flag: v}
}

// Enum builds an enumerated indicator with the selected option.
func Enum(key, option string) IndicatorValue {
	return IndicatorValue{Key: key, Kind: KindEnum, Option: option}
}

// Numeric builds a numeric indicator.
func Numeric(key string, v float64) IndicatorValue {
	return IndicatorValue{Key: key, Kind: KindNumeric, Number: v}
}

// Threshold is one (bound, label) pair of a rule's classification table.
type Threshold struct {
	Bound float64 `json:"bound" yaml:"bound"`
	Label string  `json:"label" yaml:"label"`
}

// Band maps numeric values up to and including UpTo to a flat weight.
type Band struct {
	UpTo   float64 `json:"up_to" yaml:"up_to"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Weight describes how one indicator contributes to the total. Boolean
// indicators use Points; enum indicators use Options; numeric indicators use
// Points as a multiplier unless Bands is set.
type Weight struct {
	Points  float64            `json:"points,omitempty" yaml:"points,omitempty"`
	Options map[string]float64 `json:"options,omitempty" yaml:"options,omitempty"`
	Bands   []Band             `json:"bands,omitempty" yaml:"bands,omitempty"`
}

// Factor is a single non-zero contribution to a score.
type Factor struct {
	Key    string  `json:"key"`
	Points float64 `json:"points"`
}

// Result is the outcome of scoring a set of inputs against a rule.
type Result struct {
	Total    float64  `json:"total"`
	Category string   `json:"category"`
	Rank     int      `json:"rank"`
	Factors  []Factor `json:"factors,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}
