package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurod/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env:         "development",
		StorageRoot: "./data",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   10 << 20,
		},
		Scheduler: SchedulerConfig{
			QueueCapacity: 1000,
			WorkerCount:   16,
			CacheHoldTime: Duration{Duration: 60 * time.Second},
		},
		Engine: EngineConfig{
			SessionCacheTTL: Duration{Duration: 30 * time.Second},
		},
	}
}

// Load reads config from NEUROD_CONFIG_PATH (or ./config/config.json if
// present), applies defaults for anything unset, then applies environment
// overrides, then validates.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("NEUROD_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		loaded := *defaultConfig()
		if err := json.Unmarshal(b, &loaded); err != nil {
			return nil, err
		}
		*cfg = loaded
	}

	if v := strings.TrimSpace(os.Getenv("NEUROD_ENV")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("NEUROD_HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("NEUROD_STORAGE_ROOT")); v != "" {
		cfg.StorageRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("NEUROD_REPOSITORY_URL")); v != "" {
		cfg.RepositoryURL = v
	}
	cfg.Scheduler.WorkerCount = envutil.Int("NEUROD_WORKER_COUNT", cfg.Scheduler.WorkerCount)
	cfg.Scheduler.QueueCapacity = envutil.Int("NEUROD_QUEUE_CAPACITY", cfg.Scheduler.QueueCapacity)

	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 10 << 20
	}
	if strings.TrimSpace(cfg.StorageRoot) == "" {
		return nil, errors.New("storage_root is required")
	}
	if cfg.Scheduler.QueueCapacity <= 0 {
		return nil, errors.New("scheduler.queue_capacity must be positive")
	}
	if cfg.Scheduler.WorkerCount <= 0 {
		return nil, errors.New("scheduler.worker_count must be positive")
	}
	if cfg.Scheduler.CacheHoldTime.Duration <= 0 {
		cfg.Scheduler.CacheHoldTime = Duration{Duration: 60 * time.Second}
	}
	if cfg.Engine.SessionCacheTTL.Duration <= 0 {
		cfg.Engine.SessionCacheTTL = Duration{Duration: 30 * time.Second}
	}

	return cfg, nil
}
