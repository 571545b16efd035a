package scoring

import (
	"math"
	"sort"
)

// Score sums the contributions of inputs under rule and classifies the total.
//
// Partially completed assessments are normal, so inputs the rule does not know,
// options it has no weight for, kind mismatches and non-finite numbers all
// contribute zero. When a key appears more than once the last value wins.
// Contributions and the running total saturate at ±math.MaxFloat64, so the
// total is always finite and never decreases as an input grows.
func Score(rule *Rule, inputs []IndicatorValue) Result {
	latest := make(map[string]IndicatorValue, len(inputs))
	order := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if _, seen := latest[in.Key]; !seen {
			order = append(order, in.Key)
		}
		latest[in.Key] = in
	}

	var total float64
	factors := make([]Factor, 0, len(order))
	for _, key := range order {
		points := rule.contribution(latest[key])
		if points == 0 {
			continue
		}
		total = saturate(total + points)
		factors = append(factors, Factor{Key: key, Points: points})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Points > factors[j].Points
	})

	category, rank := rule.Classify(total)
	return Result{
		Total:    total,
		Category: category,
		Rank:     rank,
		Factors:  factors,
		Actions:  rule.Actions(category),
	}
}

// contribution returns the points one input adds to the total.
func (r *Rule) contribution(in IndicatorValue) float64 {
	w, ok := r.weights[in.Key]
	if !ok {
		return 0
	}

	switch in.Kind {
	case KindBoolean:
		if in.Flag {
			return finite(w.Points)
		}
		return 0
	case KindEnum:
		return finite(w.Options[in.Option])
	case KindNumeric:
		if math.IsNaN(in.Number) || math.IsInf(in.Number, 0) {
			return 0
		}
		if len(w.Bands) > 0 {
			return finite(bandWeight(w.Bands, in.Number))
		}
		return saturate(in.Number * finite(w.Points))
	default:
		return 0
	}
}

// bandWeight picks the first band whose UpTo covers v. Values above the last
// band take the last band's weight.
func bandWeight(bands []Band, v float64) float64 {
	for _, b := range bands {
		if v <= b.UpTo {
			return b.Weight
		}
	}
	return bands[len(bands)-1].Weight
}

// saturate clamps an overflowed value to the largest finite one of the same
// sign.
func saturate(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
