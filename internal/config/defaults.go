package config

// DefaultExcludes are glob patterns excluded from indexing by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// DefaultConfig returns a Config with sensible defaults: 3600s recency
// half-life, 24h evaluation window, 0.0075s/token savings estimate.
func DefaultConfig() *Config {
	return &Config{
		CodeRoot:               ".",
		ClonesDir:              ".predictd/clones",
		Bind:                   ":8900",
		AllowedOrigins:         []string{"*"},
		DBPath:                 ".predictd/predictd.db",
		KVBackend:              KVMemory,
		Include:                []string{"**"},
		Exclude:                DefaultExcludes,
		RecencyHalfLifeSeconds:    3600,
		EvaluationWindowSeconds:   24 * 60 * 60,
		PredictionTTLSlackSeconds: 60 * 60,
		SavingsSecondsPerToken:    0.0075,
		ContextCacheTTLSeconds:    60 * 60,
		WatchEnabled:              true,
		LogLevel:                  "info",
	}
}
