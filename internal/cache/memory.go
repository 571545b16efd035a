// Package cache keeps the latest assessment per subject and rule so dashboards
// can read the current category without touching the store.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/facility-ops/riskwatch/internal/domain"
)

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, *domain.RiskAssessment]
}

var _ domain.AssessmentCache = (*MemoryCache)(nil)

// NewMemoryCache holds at most maxEntries assessments for ttl each. A zero
// ttl disables expiry.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *domain.RiskAssessment](maxEntries, nil, ttl),
	}
}

// GetLatest returns the cached assessment for subject and rule.
func (c *MemoryCache) GetLatest(_ context.Context, subjectID, ruleID string) (*domain.RiskAssessment, bool) {
	return c.lru.Get(key(subjectID, ruleID))
}

// SetLatest stores a unless a newer assessment is already cached.
func (c *MemoryCache) SetLatest(_ context.Context, a *domain.RiskAssessment) error {
	k := key(a.SubjectID, a.RuleID)
	if cur, ok := c.lru.Peek(k); ok && cur.ComputedAt.After(a.ComputedAt) {
		return nil
	}
	c.lru.Add(k, a)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

func key(subjectID, ruleID string) string {
	return "riskwatch:latest:" + subjectID + ":" + ruleID
}
