package domain

import (
	"fmt"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents cache configuration. An empty RedisURL selects the
// in-process cache.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxEntries  int           `mapstructure:"max_entries"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RulesConfig points at additional rule files loaded on top of the built-in
// catalog.
type RulesConfig struct {
	Dir string `mapstructure:"dir"`
}

// EscalationConfig controls the background sweep and per-severity SLAs.
type EscalationConfig struct {
	SweepInterval time.Duration           `mapstructure:"sweep_interval"`
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig is the configurable form of an EscalationPolicy.
type PolicyConfig struct {
	Allowed    time.Duration `mapstructure:"allowed"`
	EscalateTo string        `mapstructure:"escalate_to"`
}

// RateLimitConfig represents per-client request limits on the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// EscalationPolicies merges configured policies over the defaults.
func (c EscalationConfig) EscalationPolicies() (map[Severity]EscalationPolicy, error) {
	policies := DefaultEscalationPolicies()
	for name, pc := range c.Policies {
		sev, err := ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("escalation policy: %w", err)
		}
		if pc.Allowed < 0 {
			return nil, fmt.Errorf("escalation policy %s: allowed duration must not be negative", sev)
		}
		p := policies[sev]
		if pc.Allowed > 0 {
			p.Allowed = pc.Allowed
		}
		if pc.EscalateTo != "" {
			p.EscalateTo = pc.EscalateTo
		}
		policies[sev] = p
	}
	return policies, nil
}
