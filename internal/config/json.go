package config

import (
	"encoding/json"
	"os"

	"github.com/farmkeeper/farmkeeper/internal/flagx"
	"github.com/farmkeeper/farmkeeper/internal/timex"
)

// jsonBreaker mirrors Breaker for JSON unmarshalling with duration strings.
type jsonBreaker struct {
	FailureThreshold *int            `json:"failure_threshold"`
	Cooldown         *timex.Duration `json:"cooldown"`
	Timeout          *timex.Duration `json:"timeout"`
}

func (jb *jsonBreaker) apply(b *Breaker) {
	if jb == nil {
		return
	}
	if jb.FailureThreshold != nil {
		b.FailureThreshold = *jb.FailureThreshold
	}
	if jb.Cooldown != nil {
		b.Cooldown = jb.Cooldown.Duration
	}
	if jb.Timeout != nil {
		b.Timeout = jb.Timeout.Duration
	}
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from "zero", so a sparse file only overrides
// what it names. Durations accept strings like "24h" via timex.Duration.
type JsonConfig struct {
	DatabasePath        *string         `json:"database_path"`
	ServerBaseURL       *string         `json:"server_base_url"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	SyncMaxAttempts     *int            `json:"sync_max_attempts"`
	CacheTTL            *timex.Duration `json:"cache_ttl"`
	WriteQueueCapacity  *int            `json:"write_queue_capacity"`
	WriteWarnWait       *timex.Duration `json:"write_warn_wait"`
	StoreInitAttempts   *uint64         `json:"store_init_attempts"`
	StoreInitBaseDelay  *timex.Duration `json:"store_init_base_delay"`
	APIBreaker          *jsonBreaker    `json:"api_breaker"`
	SyncBreaker         *jsonBreaker    `json:"sync_breaker"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// No flag, no file, no overlay. Read or decode trouble panics; a config file
// the operator pointed at explicitly must not be half-applied.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.ServerBaseURL != nil {
		cfg.ServerBaseURL = *jc.ServerBaseURL
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncMaxAttempts != nil {
		cfg.SyncMaxAttempts = *jc.SyncMaxAttempts
	}
	if jc.CacheTTL != nil {
		cfg.CacheTTL = jc.CacheTTL.Duration
	}
	if jc.WriteQueueCapacity != nil {
		cfg.WriteQueueCapacity = *jc.WriteQueueCapacity
	}
	if jc.WriteWarnWait != nil {
		cfg.WriteWarnWait = jc.WriteWarnWait.Duration
	}
	if jc.StoreInitAttempts != nil {
		cfg.StoreInitAttempts = *jc.StoreInitAttempts
	}
	if jc.StoreInitBaseDelay != nil {
		cfg.StoreInitBaseDelay = jc.StoreInitBaseDelay.Duration
	}
	jc.APIBreaker.apply(&cfg.APIBreaker)
	jc.SyncBreaker.apply(&cfg.SyncBreaker)
}
