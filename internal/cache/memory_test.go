package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facility-ops/riskwatch/internal/domain"
)

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func assessment(id, subject, rule string, at time.Time) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:          id,
		RuleID:      rule,
		RuleVersion: 1,
		SubjectID:   subject,
		Score:       45,
		Category:    "medium",
		Rank:        1,
		ComputedAt:  at,
	}
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(10, time.Hour)
	ctx := context.Background()

	_, ok := c.GetLatest(ctx, "resident-1", "morse-fall-scale")
	assert.False(t, ok)

	require.NoError(t, c.SetLatest(ctx, assessment("a-1", "resident-1", "morse-fall-scale", base)))

	got, ok := c.GetLatest(ctx, "resident-1", "morse-fall-scale")
	require.True(t, ok)
	assert.Equal(t, "a-1", got.ID)

	_, ok = c.GetLatest(ctx, "resident-1", "facility-early-warning")
	assert.False(t, ok, "entries are keyed by rule too")
}

func TestMemoryCache_KeepsNewest(t *testing.T) {
	c := NewMemoryCache(10, 0)
	ctx := context.Background()

	require.NoError(t, c.SetLatest(ctx, assessment("new", "resident-1", "r", base.Add(time.Hour))))
	require.NoError(t, c.SetLatest(ctx, assessment("old", "resident-1", "r", base)))

	got, ok := c.GetLatest(ctx, "resident-1", "r")
	require.True(t, ok)
	assert.Equal(t, "new", got.ID)

	require.NoError(t, c.SetLatest(ctx, assessment("newer", "resident-1", "r", base.Add(2*time.Hour))))
	got, _ = c.GetLatest(ctx, "resident-1", "r")
	assert.Equal(t, "newer", got.ID)
}

func TestMemoryCache_Eviction(t *testing.T) {
	c := NewMemoryCache(2, 0)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, c.SetLatest(ctx, assessment(s, s, "r", base)))
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.GetLatest(ctx, "a", "r")
	assert.False(t, ok, "least recently used entry should be evicted")
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.SetLatest(ctx, assessment("a-1", "resident-1", "r", base)))
	time.Sleep(100 * time.Millisecond)

	_, ok := c.GetLatest(ctx, "resident-1", "r")
	assert.False(t, ok)
}

func TestMemoryCache_Close(t *testing.T) {
	c := NewMemoryCache(0, 0)
	ctx := context.Background()
	require.NoError(t, c.SetLatest(ctx, assessment("a-1", "resident-1", "r", base)))

	require.NoError(t, c.Close())
	assert.Zero(t, c.Len())
}
