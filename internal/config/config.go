package config

import "time"

// Duration unmarshals from either a Go duration string ("5s") or an integer
// number of nanoseconds, matching the teacher's config JSON convention.
type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes"`
}

// SchedulerConfig configures the bounded worker pool in internal/scheduler.
type SchedulerConfig struct {
	QueueCapacity int      `json:"queue_capacity"`
	WorkerCount   int      `json:"worker_count"`
	CacheHoldTime Duration `json:"cache_hold_time"`
}

// EngineConfig configures session caching in internal/engine.
type EngineConfig struct {
	SessionCacheTTL Duration `json:"session_cache_ttl"`
}

type Config struct {
	Env string `json:"env"`

	// StorageRoot is the daemon's on-disk root: downloads/, package/,
	// results/, catalog.db, daemon.log all live under it.
	StorageRoot string `json:"storage_root"`

	// RepositoryURL points at the line-delimited remote package index
	// (`<name>|<url>|<sha256>` per line) consulted by /package/search and
	// by name-only /package/install requests.
	RepositoryURL string `json:"repository_url"`

	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Engine    EngineConfig    `json:"engine"`
}
