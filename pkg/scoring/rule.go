package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalidRule is wrapped by every error returned from Compile.
var ErrInvalidRule = errors.New("invalid scoring rule")

// RuleSpec is the declarative form of a rule as it appears in a catalog file.
type RuleSpec struct {
	ID             string              `json:"id" yaml:"id"`
	Version        int                 `json:"version" yaml:"version"`
	Name           string              `json:"name" yaml:"name"`
	Description    string              `json:"description,omitempty" yaml:"description,omitempty"`
	Directionality string              `json:"directionality" yaml:"directionality"`
	Weights        map[string]Weight   `json:"weights" yaml:"weights"`
	Thresholds     []Threshold         `json:"thresholds" yaml:"thresholds"`
	Terminal       string              `json:"terminal" yaml:"terminal"`
	Actions        map[string][]string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Rule is a validated, immutable scoring rule. Build one with Compile.
type Rule struct {
	id             string
	version        int
	name           string
	description    string
	directionality Directionality
	weights        map[string]Weight
	thresholds     []Threshold
	terminal       string
	actions        map[string][]string
	ranks          map[string]int
}

// Compile validates spec and returns the compiled rule. Every problem found is
// reported, not only the first one.
func Compile(spec RuleSpec) (*Rule, error) {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(spec.ID) == "" {
		fail("rule id is required")
	}
	if spec.Version < 1 {
		fail("version must be >= 1, got %d", spec.Version)
	}

	dir, err := ParseDirectionality(spec.Directionality)
	if err != nil {
		fail("%v", err)
	}

	if len(spec.Thresholds) == 0 {
		fail("at least one threshold is required")
	}
	if strings.TrimSpace(spec.Terminal) == "" {
		fail("terminal category is required")
	}

	ranks := make(map[string]int, len(spec.Thresholds)+1)
	for i, th := range spec.Thresholds {
		if strings.TrimSpace(th.Label) == "" {
			fail("threshold %d has an empty label", i)
			continue
		}
		if math.IsNaN(th.Bound) || math.IsInf(th.Bound, 0) {
			fail("threshold %q has a non-finite bound", th.Label)
		}
		if _, dup := ranks[th.Label]; dup {
			fail("duplicate threshold label %q", th.Label)
			continue
		}
		ranks[th.Label] = i
	}
	if spec.Terminal != "" {
		if _, dup := ranks[spec.Terminal]; dup {
			fail("terminal category %q repeats a threshold label", spec.Terminal)
		}
		ranks[spec.Terminal] = len(spec.Thresholds)
	}

	if dir.IsValid() {
		for i := 1; i < len(spec.Thresholds); i++ {
			prev, cur := spec.Thresholds[i-1].Bound, spec.Thresholds[i].Bound
			switch dir {
			case HigherIsWorse:
				if !(cur > prev) {
					fail("thresholds must be strictly ascending for %s: %q (%g) follows %q (%g)",
						dir, spec.Thresholds[i].Label, cur, spec.Thresholds[i-1].Label, prev)
				}
			case HigherIsBetter:
				if !(cur < prev) {
					fail("thresholds must be strictly descending for %s: %q (%g) follows %q (%g)",
						dir, spec.Thresholds[i].Label, cur, spec.Thresholds[i-1].Label, prev)
				}
			}
		}
	}

	weights := make(map[string]Weight, len(spec.Weights))
	for key, w := range spec.Weights {
		if strings.TrimSpace(key) == "" {
			fail("weight with empty indicator key")
			continue
		}
		for i := 1; i < len(w.Bands); i++ {
			if !(w.Bands[i].UpTo > w.Bands[i-1].UpTo) {
				fail("bands for %q must be strictly ascending", key)
				break
			}
		}
		weights[key] = copyWeight(w)
	}

	for label := range spec.Actions {
		if _, ok := ranks[label]; !ok {
			fail("actions reference unknown category %q", label)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w %s@v%d: %v", ErrInvalidRule, spec.ID, spec.Version, err)
	}

	actions := make(map[string][]string, len(spec.Actions))
	for label, list := range spec.Actions {
		actions[label] = append([]string(nil), list...)
	}

	return &Rule{
		id:             spec.ID,
		version:        spec.Version,
		name:           spec.Name,
		description:    spec.Description,
		directionality: dir,
		weights:        weights,
		thresholds:     append([]Threshold(nil), spec.Thresholds...),
		terminal:       spec.Terminal,
		actions:        actions,
		ranks:          ranks,
	}, nil
}

// MustCompile is like Compile but panics on error. Use it only for rules
// built into the binary.
func MustCompile(spec RuleSpec) *Rule {
	r, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return r
}

func copyWeight(w Weight) Weight {
	out := Weight{Points: w.Points}
	if len(w.Options) > 0 {
		out.Options = make(map[string]float64, len(w.Options))
		for k, v := range w.Options {
			out.Options[k] = v
		}
	}
	if len(w.Bands) > 0 {
		out.Bands = append([]Band(nil), w.Bands...)
	}
	return out
}

// ID returns the rule identifier.
func (r *Rule) ID() string { return r.id }

// Version returns the rule version.
func (r *Rule) Version() int { return r.version }

// Name returns the display name.
func (r *Rule) Name() string { return r.name }

// Description returns the free-text description.
func (r *Rule) Description() string { return r.description }

// Directionality returns which end of the range is the bad one.
func (r *Rule) Directionality() Directionality { return r.directionality }

// Terminal returns the category used beyond the last threshold.
func (r *Rule) Terminal() string { return r.terminal }

// Thresholds returns a copy of the classification table.
func (r *Rule) Thresholds() []Threshold {
	return append([]Threshold(nil), r.thresholds...)
}

// Categories returns every category label from safest to most severe.
func (r *Rule) Categories() []string {
	out := make([]string, 0, len(r.thresholds)+1)
	for _, th := range r.thresholds {
		out = append(out, th.Label)
	}
	return append(out, r.terminal)
}

// Indicators returns the indicator keys the rule weighs, sorted.
func (r *Rule) Indicators() []string {
	keys := make([]string, 0, len(r.weights))
	for k := range r.weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Weight returns the weight configured for key.
func (r *Rule) Weight(key string) (Weight, bool) {
	w, ok := r.weights[key]
	if !ok {
		return Weight{}, false
	}
	return copyWeight(w), true
}

// Actions returns the recommended actions attached to a category.
func (r *Rule) Actions(category string) []string {
	return append([]string(nil), r.actions[category]...)
}

// Rank returns the severity rank of a category: 0 for the safest band,
// len(Thresholds) for the terminal one. Unknown labels return -1.
func (r *Rule) Rank(category string) int {
	rank, ok := r.ranks[category]
	if !ok {
		return -1
	}
	return rank
}

// Key returns "id@vN", the identifier stored with every assessment.
func (r *Rule) Key() string {
	return fmt.Sprintf("%s@v%d", r.id, r.version)
}

// Classify maps a total onto the rule's categories.
//
// Higher-is-worse thresholds are inclusive upper bounds walked in ascending
// order; higher-is-better thresholds are inclusive lower bounds walked in
// descending order. A total exactly on a bound always lands in the safer band.
// A total past every bound, including NaN, gets the terminal category.
func (r *Rule) Classify(total float64) (string, int) {
	for i, th := range r.thresholds {
		switch r.directionality {
		case HigherIsWorse:
			if total <= th.Bound {
				return th.Label, i
			}
		case HigherIsBetter:
			if total >= th.Bound {
				return th.Label, i
			}
		}
	}
	return r.terminal, len(r.thresholds)
}
