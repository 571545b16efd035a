// Package benchmark compares a measured indicator against its target and
// sorts it into one of four performance bands.
package benchmark

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Band is a performance band.
type Band string

const (
	Excellent  Band = "excellent"
	Good       Band = "good"
	Acceptable Band = "acceptable"
	Poor       Band = "poor"
)

// Bands lists every band from best to worst.
var Bands = []Band{Excellent, Good, Acceptable, Poor}

// IsValid reports whether b is a known band.
func (b Band) IsValid() bool {
	switch b {
	case Excellent, Good, Acceptable, Poor:
		return true
	default:
		return false
	}
}

// String returns the string representation of the band.
func (b Band) String() string {
	return string(b)
}

// Thresholds holds the three band boundaries of a standard.
type Thresholds struct {
	Excellent  float64 `json:"excellent" yaml:"excellent"`
	Good       float64 `json:"good" yaml:"good"`
	Acceptable float64 `json:"acceptable" yaml:"acceptable"`
}

// ErrInvalidThresholds is returned by Validate.
var ErrInvalidThresholds = errors.New("invalid benchmark thresholds")

// Validate checks that the boundaries are finite and strictly ordered for the
// given direction: descending when higher is better, ascending otherwise.
func (t Thresholds) Validate(higherIsBetter bool) error {
	for _, v := range []float64{t.Excellent, t.Good, t.Acceptable} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite boundary", ErrInvalidThresholds)
		}
	}
	if higherIsBetter {
		if !(t.Excellent > t.Good && t.Good > t.Acceptable) {
			return fmt.Errorf("%w: want excellent > good > acceptable, got %g/%g/%g",
				ErrInvalidThresholds, t.Excellent, t.Good, t.Acceptable)
		}
		return nil
	}
	if !(t.Excellent < t.Good && t.Good < t.Acceptable) {
		return fmt.Errorf("%w: want excellent < good < acceptable, got %g/%g/%g",
			ErrInvalidThresholds, t.Excellent, t.Good, t.Acceptable)
	}
	return nil
}

// Result is the outcome of classifying one measurement.
type Result struct {
	Band          Band    `json:"band"`
	ProgressRatio float64 `json:"progress_ratio"`
}

// Classify bands current against t. Boundaries are inclusive: >= when higher
// is better, <= when lower is better. A NaN measurement is Poor.
//
// target only feeds the progress ratio; it never moves a band boundary.
func Classify(current, target float64, t Thresholds, higherIsBetter bool) Result {
	return Result{
		Band:          band(current, t, higherIsBetter),
		ProgressRatio: ProgressRatio(current, target, higherIsBetter),
	}
}

func band(current float64, t Thresholds, higherIsBetter bool) Band {
	if higherIsBetter {
		switch {
		case current >= t.Excellent:
			return Excellent
		case current >= t.Good:
			return Good
		case current >= t.Acceptable:
			return Acceptable
		}
		return Poor
	}
	switch {
	case current <= t.Excellent:
		return Excellent
	case current <= t.Good:
		return Good
	case current <= t.Acceptable:
		return Acceptable
	}
	return Poor
}

// ProgressRatio reports how close current is to target, capped at 1. It is
// current/target when higher is better and target/current otherwise. A zero or
// non-finite ratio yields 0, and so does a negative one.
func ProgressRatio(current, target float64, higherIsBetter bool) float64 {
	num, den := current, target
	if !higherIsBetter {
		num, den = target, current
	}
	if den == 0 {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return 0
	}
	return math.Min(1, r)
}

// Standard is a named indicator with a target and band thresholds.
type Standard struct {
	Code           string     `json:"code" yaml:"code"`
	Name           string     `json:"name" yaml:"name"`
	Category       string     `json:"category,omitempty" yaml:"category,omitempty"`
	Unit           string     `json:"unit,omitempty" yaml:"unit,omitempty"`
	Target         float64    `json:"target" yaml:"target"`
	Thresholds     Thresholds `json:"thresholds" yaml:"thresholds"`
	HigherIsBetter bool       `json:"higher_is_better" yaml:"higher_is_better"`
}

// Validate checks the standard's code and thresholds.
func (s Standard) Validate() error {
	if strings.TrimSpace(s.Code) == "" {
		return fmt.Errorf("%w: standard code is required", ErrInvalidThresholds)
	}
	if err := s.Thresholds.Validate(s.HigherIsBetter); err != nil {
		return fmt.Errorf("standard %s: %w", s.Code, err)
	}
	return nil
}

// Classify bands current against the standard.
func (s Standard) Classify(current float64) Result {
	return Classify(current, s.Target, s.Thresholds, s.HigherIsBetter)
}

// Summary aggregates a set of classifications.
type Summary struct {
	Total        int          `json:"total"`
	Counts       map[Band]int `json:"counts"`
	OverallScore int          `json:"overall_score"`
}

var bandPoints = map[Band]float64{
	Excellent:  100,
	Good:       75,
	Acceptable: 50,
	Poor:       25,
}

// Summarize counts results per band and computes the overall score: the
// average of 100/75/50/25 points for excellent/good/acceptable/poor, rounded.
// An empty set scores 0.
func Summarize(results []Result) Summary {
	s := Summary{Counts: make(map[Band]int, len(Bands))}
	for _, b := range Bands {
		s.Counts[b] = 0
	}

	var points float64
	for _, r := range results {
		p, ok := bandPoints[r.Band]
		if !ok {
			continue
		}
		s.Counts[r.Band]++
		s.Total++
		points += p
	}
	if s.Total > 0 {
		s.OverallScore = int(math.Round(points / float64(s.Total)))
	}
	return s
}
