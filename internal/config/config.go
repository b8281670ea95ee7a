// Package config assembles runtime settings for the farmkeeper CLI from
// three layers: built-in defaults, an optional JSON file (-c/-config) and
// command-line flags. Later layers win.
package config

import "time"

// Breaker holds one circuit breaker's tuning.
type Breaker struct {
	FailureThreshold int
	Cooldown         time.Duration
	Timeout          time.Duration
}

// Config holds every runtime setting of the farmkeeper data layer.
type Config struct {
	// DatabasePath is the local SQLite file.
	DatabasePath string

	// ServerBaseURL is the backend API root, e.g. "https://api.example.com".
	ServerBaseURL string

	// RequestTimeout bounds each HTTP request from the remote client.
	RequestTimeout time.Duration

	// OnlineCheckInterval is how often the connectivity monitor probes.
	OnlineCheckInterval time.Duration

	// SyncInterval is the background reconciliation period; SyncMaxAttempts
	// is the per-entry retry ceiling before an entry parks as failed.
	SyncInterval    time.Duration
	SyncMaxAttempts int

	// CacheTTL is the default lifetime of cached reads; aggregate
	// summaries use it directly.
	CacheTTL time.Duration

	// WriteQueueCapacity bounds the write serializer backlog;
	// WriteWarnWait flags writes that sat queued longer than this.
	WriteQueueCapacity int
	WriteWarnWait      time.Duration

	// StoreInitAttempts and StoreInitBaseDelay drive the open/schema retry
	// before the in-memory fallback.
	StoreInitAttempts  uint64
	StoreInitBaseDelay time.Duration

	// APIBreaker guards foreground remote calls; SyncBreaker guards the
	// background reconciliation worker.
	APIBreaker  Breaker
	SyncBreaker Breaker
}

// LoadDefaults populates c with the settings the app ships with.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "farmkeeper.db"
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 15 * time.Second
	c.OnlineCheckInterval = 30 * time.Second
	c.SyncInterval = time.Minute
	c.SyncMaxAttempts = 5
	c.CacheTTL = 24 * time.Hour
	c.WriteQueueCapacity = 64
	c.WriteWarnWait = 2 * time.Second
	c.StoreInitAttempts = 3
	c.StoreInitBaseDelay = 200 * time.Millisecond
	c.APIBreaker = Breaker{FailureThreshold: 5, Cooldown: 30 * time.Second, Timeout: 10 * time.Second}
	c.SyncBreaker = Breaker{FailureThreshold: 3, Cooldown: time.Minute, Timeout: 20 * time.Second}
}

// Load constructs a Config: defaults, then the JSON file named by -c/-config
// (if any), then flags. Later sources take precedence.
func Load() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
