package benchmark

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_LowerIsBetter(t *testing.T) {
	fallRate := Thresholds{Excellent: 1, Good: 3, Acceptable: 5}

	tests := []struct {
		name    string
		current float64
		want    Band
	}{
		{"well below", 0.4, Excellent},
		{"on excellent bound", 1, Excellent},
		{"between good bounds", 2.5, Good},
		{"on good bound", 3, Good},
		{"on acceptable bound", 5, Acceptable},
		{"above acceptable", 5.1, Poor},
		{"negative", -1, Excellent},
		{"NaN", math.NaN(), Poor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.current, 2, fallRate, false)
			assert.Equal(t, tt.want, got.Band)
		})
	}
}

func TestClassify_HigherIsBetter(t *testing.T) {
	careCompletion := Thresholds{Excellent: 95, Good: 85, Acceptable: 75}

	tests := []struct {
		name    string
		current float64
		want    Band
	}{
		{"perfect", 100, Excellent},
		{"on excellent bound", 95, Excellent},
		{"just under excellent", 94.99, Good},
		{"on good bound", 85, Good},
		{"on acceptable bound", 75, Acceptable},
		{"under acceptable", 60, Poor},
		{"+Inf", math.Inf(1), Excellent},
		{"NaN", math.NaN(), Poor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.current, 95, careCompletion, true)
			assert.Equal(t, tt.want, got.Band)
		})
	}
}

func TestClassify_FallRateScenario(t *testing.T) {
	got := Classify(2.5, 2, Thresholds{Excellent: 1, Good: 3, Acceptable: 5}, false)

	assert.Equal(t, Good, got.Band)
	assert.InDelta(t, 0.8, got.ProgressRatio, 1e-9)
}

func TestClassify_TargetDoesNotMoveBands(t *testing.T) {
	th := Thresholds{Excellent: 95, Good: 85, Acceptable: 75}

	for _, target := range []float64{0, 50, 95, 1000} {
		assert.Equal(t, Good, Classify(90, target, th, true).Band, "target %v", target)
	}
}

func TestProgressRatio(t *testing.T) {
	tests := []struct {
		name           string
		current        float64
		target         float64
		higherIsBetter bool
		want           float64
	}{
		{"halfway up", 45, 90, true, 0.5},
		{"capped at one", 120, 90, true, 1},
		{"lower is better over target", 4, 2, false, 0.5},
		{"lower is better under target", 1, 2, false, 1},
		{"zero target", 10, 0, true, 0},
		{"zero current lower is better", 0, 2, false, 0},
		{"NaN current", math.NaN(), 90, true, 0},
		{"infinite target", 10, math.Inf(1), false, 0},
		{"negative", -10, 90, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressRatio(tt.current, tt.target, tt.higherIsBetter)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name           string
		thresholds     Thresholds
		higherIsBetter bool
		wantErr        bool
	}{
		{"descending higher is better", Thresholds{95, 85, 75}, true, false},
		{"ascending lower is better", Thresholds{1, 3, 5}, false, false},
		{"ascending higher is better", Thresholds{75, 85, 95}, true, true},
		{"descending lower is better", Thresholds{5, 3, 1}, false, true},
		{"equal bounds", Thresholds{90, 90, 75}, true, true},
		{"NaN bound", Thresholds{1, math.NaN(), 5}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.thresholds.Validate(tt.higherIsBetter)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidThresholds))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStandard(t *testing.T) {
	std := Standard{
		Code:       "ALERT_RESPONSE",
		Name:       "Alert response time",
		Unit:       "minutes",
		Target:     15,
		Thresholds: Thresholds{Excellent: 10, Good: 20, Acceptable: 30},
	}
	require.NoError(t, std.Validate())

	got := std.Classify(12)
	assert.Equal(t, Good, got.Band)
	assert.Equal(t, 1.0, got.ProgressRatio)

	std.Code = ""
	assert.Error(t, std.Validate())

	std.Code = "ALERT_RESPONSE"
	std.HigherIsBetter = true
	err := std.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALERT_RESPONSE")
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := Summarize(nil)
		assert.Equal(t, 0, s.Total)
		assert.Equal(t, 0, s.OverallScore)
		assert.Len(t, s.Counts, 4)
	})

	t.Run("mixed", func(t *testing.T) {
		s := Summarize([]Result{
			{Band: Excellent},
			{Band: Excellent},
			{Band: Good},
			{Band: Poor},
			{Band: Acceptable},
			{Band: "unknown"},
		})
		assert.Equal(t, 5, s.Total)
		assert.Equal(t, 2, s.Counts[Excellent])
		assert.Equal(t, 1, s.Counts[Poor])
		// (200 + 75 + 50 + 25) / 5 = 70
		assert.Equal(t, 70, s.OverallScore)
	})

	t.Run("rounds half up", func(t *testing.T) {
		s := Summarize([]Result{{Band: Excellent}, {Band: Good}})
		assert.Equal(t, 88, s.OverallScore)
	})
}
