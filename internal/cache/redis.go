package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/facility-ops/riskwatch/internal/domain"
)

// RedisCache shares the latest assessments between server replicas. Calls go
// through a circuit breaker; while Redis is down reads are misses and the
// service falls back to the store.
type RedisCache struct {
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	log     *logrus.Logger
}

var _ domain.AssessmentCache = (*RedisCache)(nil)

// NewRedisCache connects to config.RedisURL and verifies the connection.
func NewRedisCache(config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCache(client, config.DefaultTTL, logger), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	settings := gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker changed state")
		},
	}

	return &RedisCache{
		redis:   client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		ttl:     ttl,
		log:     logger,
	}
}

// GetLatest returns the cached assessment. Errors are logged and reported as
// a miss.
func (c *RedisCache) GetLatest(ctx context.Context, subjectID, ruleID string) (*domain.RiskAssessment, bool) {
	k := key(subjectID, ruleID)

	val, err := c.breaker.Execute(func() (interface{}, error) {
		b, err := c.redis.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   k,
			"error": err,
		}).Debug("Cache read failed")
		return nil, false
	}

	b, _ := val.([]byte)
	if b == nil {
		return nil, false
	}

	var a domain.RiskAssessment
	if err := json.Unmarshal(b, &a); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, k)
		return nil, false
	}
	return &a, true
}

// SetLatest writes a with the configured TTL unless a newer assessment is
// already cached. The compare and the write run in one WATCH transaction and
// are retried when another writer touches the key in between.
func (c *RedisCache) SetLatest(ctx context.Context, a *domain.RiskAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	k := key(a.SubjectID, a.RuleID)
	_, err = c.breaker.Execute(func() (interface{}, error) {
		for attempt := 0; attempt < maxWriteAttempts; attempt++ {
			err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
				return c.setIfNewer(ctx, tx, k, a, data)
			}, k)
			if !errors.Is(err, redis.TxFailedErr) {
				return nil, err
			}
		}
		return nil, redis.TxFailedErr
	})
	if err != nil {
		return fmt.Errorf("failed to cache assessment: %w", err)
	}
	return nil
}

const maxWriteAttempts = 5

func (c *RedisCache) setIfNewer(ctx context.Context, tx *redis.Tx, k string, a *domain.RiskAssessment, data []byte) error {
	cur, err := tx.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		var cached domain.RiskAssessment
		if json.Unmarshal(cur, &cached) == nil && cached.ComputedAt.After(a.ComputedAt) {
			return nil
		}
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, data, c.ttl)
		return nil
	})
	return err
}

// State reports the breaker state, for health output.
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
