package service

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/rules"
	"github.com/facility-ops/riskwatch/pkg/benchmark"
)

// BenchmarkService compares measured indicators against the standards catalog.
type BenchmarkService struct {
	logger *logrus.Logger
	rules  *rules.Registry
}

// NewBenchmarkService creates a new benchmark service
func NewBenchmarkService(logger *logrus.Logger, registry *rules.Registry) *BenchmarkService {
	return &BenchmarkService{logger: logger, rules: registry}
}

// Comparison is one indicator's current value banded against its standard.
type Comparison struct {
	Standard benchmark.Standard `json:"standard"`
	Current  float64            `json:"current"`
	benchmark.Result
}

// ComparisonReport is a full benchmark run.
type ComparisonReport struct {
	Comparisons []Comparison      `json:"comparisons"`
	Summary     benchmark.Summary `json:"summary"`
}

// Standards returns the catalog in registration order.
func (s *BenchmarkService) Standards() []benchmark.Standard {
	return s.rules.Standards()
}

// Compare bands current against the standard with the given code.
func (s *BenchmarkService) Compare(code string, current float64) (*Comparison, error) {
	std, err := s.rules.Standard(code)
	if err != nil {
		return nil, err
	}
	return &Comparison{Standard: std, Current: current, Result: std.Classify(current)}, nil
}

// CompareAll bands every value against its standard. Comparisons follow the
// catalog order; unknown codes are reported together and nothing is returned
// for them.
func (s *BenchmarkService) CompareAll(values map[string]float64) (*ComparisonReport, error) {
	if len(values) == 0 {
		return nil, domain.NewValidationError("values", "at least one indicator value is required", values)
	}

	var errs *multierror.Error
	codes := make([]string, 0, len(values))
	for code := range values {
		if _, err := s.rules.Standard(code); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		codes = append(codes, code)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	position := make(map[string]int)
	for i, std := range s.rules.Standards() {
		position[std.Code] = i
	}
	sort.Slice(codes, func(i, j int) bool { return position[codes[i]] < position[codes[j]] })

	report := &ComparisonReport{Comparisons: make([]Comparison, 0, len(codes))}
	results := make([]benchmark.Result, 0, len(codes))
	for _, code := range codes {
		c, err := s.Compare(code, values[code])
		if err != nil {
			return nil, err
		}
		report.Comparisons = append(report.Comparisons, *c)
		results = append(results, c.Result)
	}
	report.Summary = benchmark.Summarize(results)

	s.logger.WithFields(logrus.Fields{
		"indicators":    report.Summary.Total,
		"overall_score": report.Summary.OverallScore,
	}).Debug("Benchmark comparison completed")

	return report, nil
}

// Classify bands an ad-hoc value that has no catalog entry.
func (s *BenchmarkService) Classify(current, target float64, t benchmark.Thresholds, higherIsBetter bool) (benchmark.Result, error) {
	if err := t.Validate(higherIsBetter); err != nil {
		return benchmark.Result{}, domain.NewValidationError("thresholds", err.Error(), t)
	}
	return benchmark.Classify(current, target, t, higherIsBetter), nil
}
