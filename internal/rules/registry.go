// Package rules holds the catalog of scoring rules and benchmark standards.
// The catalog is loaded once at startup and read concurrently afterwards.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/pkg/benchmark"
	"github.com/facility-ops/riskwatch/pkg/scoring"
)

// Registry stores compiled rules by id and version, plus benchmark standards
// by code. Several versions of a rule coexist so older assessments can still
// be reproduced.
type Registry struct {
	mu        sync.RWMutex
	rules     map[string]map[int]*scoring.Rule
	standards map[string]benchmark.Standard
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:     make(map[string]map[int]*scoring.Rule),
		standards: make(map[string]benchmark.Standard),
	}
}

// Register adds a compiled rule. Registering the same id and version twice is
// an error.
func (r *Registry) Register(rule *scoring.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.rules[rule.ID()]
	if !ok {
		versions = make(map[int]*scoring.Rule)
		r.rules[rule.ID()] = versions
	}
	if _, dup := versions[rule.Version()]; dup {
		return fmt.Errorf("rule %s already registered", rule.Key())
	}
	versions[rule.Version()] = rule
	return nil
}

// RegisterStandard adds a benchmark standard after validating it.
func (r *Registry) RegisterStandard(s benchmark.Standard) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.standards[s.Code]; dup {
		return fmt.Errorf("standard %s already registered", s.Code)
	}
	r.standards[s.Code] = s
	r.order = append(r.order, s.Code)
	return nil
}

// Get returns a specific version of a rule.
func (r *Registry) Get(id string, version int) (*scoring.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id][version]
	if !ok {
		return nil, fmt.Errorf("%s@v%d: %w", id, version, domain.ErrRuleNotFound)
	}
	return rule, nil
}

// Latest returns the highest registered version of a rule.
func (r *Registry) Latest(id string) (*scoring.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *scoring.Rule
	for v, rule := range r.rules[id] {
		if latest == nil || v > latest.Version() {
			latest = rule
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrRuleNotFound)
	}
	return latest, nil
}

// Resolve returns the given version of a rule, or the latest when version is
// zero.
func (r *Registry) Resolve(id string, version int) (*scoring.Rule, error) {
	if version == 0 {
		return r.Latest(id)
	}
	return r.Get(id, version)
}

// List returns every registered rule ordered by id then version.
func (r *Registry) List() []*scoring.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*scoring.Rule
	for _, versions := range r.rules {
		for _, rule := range versions {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID() != out[j].ID() {
			return out[i].ID() < out[j].ID()
		}
		return out[i].Version() < out[j].Version()
	})
	return out
}

// Standard returns a benchmark standard by code.
func (r *Registry) Standard(code string) (benchmark.Standard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.standards[code]
	if !ok {
		return benchmark.Standard{}, fmt.Errorf("standard %s: %w", code, domain.ErrNotFound)
	}
	return s, nil
}

// Standards returns every standard in registration order.
func (r *Registry) Standards() []benchmark.Standard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]benchmark.Standard, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.standards[code])
	}
	return out
}
