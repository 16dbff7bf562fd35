package config

import "time"

// RecencyHalfLife returns the Scorer's recency decay half-life as a duration.
func (c *Config) RecencyHalfLife() time.Duration {
	return time.Duration(c.RecencyHalfLifeSeconds * float64(time.Second))
}

// EvaluationWindow returns the Rolling Evaluator's window as a duration.
func (c *Config) EvaluationWindow() time.Duration {
	return time.Duration(c.EvaluationWindowSeconds) * time.Second
}

// PredictionTTL returns the evaluation window plus GC slack.
func (c *Config) PredictionTTL() time.Duration {
	return c.EvaluationWindow() + time.Duration(c.PredictionTTLSlackSeconds)*time.Second
}

// ContextCacheTTL returns the Context() result cache lifetime.
func (c *Config) ContextCacheTTL() time.Duration {
	return time.Duration(c.ContextCacheTTLSeconds) * time.Second
}

// KVBackend selects which Store implementation (internal/kv) backs the
// Score Store.
type KVBackend string

const (
	KVMemory KVBackend = "memory"
	KVSQLite KVBackend = "sqlite"
)

// Config is the top-level predictd configuration, corresponding to
// .predictd.yml.
type Config struct {
	// CodeRoot is the root of the codebase to index.
	CodeRoot string `yaml:"code_root" koanf:"code_root"`
	// ClonesDir holds clones of external repos registered via the registry.
	ClonesDir string `yaml:"clones_dir" koanf:"clones_dir"`

	// Bind is the HTTP listen address, e.g. ":8900".
	Bind string `yaml:"bind" koanf:"bind"`
	// AllowedOrigins configures CORS for the HTTP surface.
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`

	// DBPath is the sqlite file backing the project registry and,
	// when KVBackend is "sqlite", the Score Store.
	DBPath    string    `yaml:"db_path" koanf:"db_path"`
	KVBackend KVBackend `yaml:"kv_backend" koanf:"kv_backend"`

	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`

	// RecencyHalfLifeSeconds is H in the Scorer's recency decay.
	RecencyHalfLifeSeconds float64 `yaml:"recency_half_life_seconds" koanf:"recency_half_life_seconds"`

	// EvaluationWindowSeconds is the Rolling Evaluator's window.
	EvaluationWindowSeconds int `yaml:"evaluation_window_seconds" koanf:"evaluation_window_seconds"`
	// PredictionTTLSlackSeconds is how much longer than the evaluation
	// window a logged prediction batch is retained before eligible for GC.
	PredictionTTLSlackSeconds int `yaml:"prediction_ttl_slack_seconds" koanf:"prediction_ttl_slack_seconds"`

	// SavingsSecondsPerToken is a tunable constant derived from measured
	// LLM token-rate, not a commitment to any particular model's speed.
	SavingsSecondsPerToken float64 `yaml:"savings_seconds_per_token" koanf:"savings_seconds_per_token"`

	// ContextCacheTTLSeconds is how long Context(intent_prose) caches
	// results.
	ContextCacheTTLSeconds int `yaml:"context_cache_ttl_seconds" koanf:"context_cache_ttl_seconds"`

	// WatchEnabled turns on the fsnotify-driven incremental reindex.
	WatchEnabled bool `yaml:"watch_enabled" koanf:"watch_enabled"`

	LogLevel string `yaml:"log_level" koanf:"log_level"`
}
