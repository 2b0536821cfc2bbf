package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NEUROD_CONFIG_PATH", "")
	t.Setenv("NEUROD_STORAGE_ROOT", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, 1000, cfg.Scheduler.QueueCapacity)
	require.Equal(t, 16, cfg.Scheduler.WorkerCount)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEUROD_CONFIG_PATH", "")
	t.Setenv("NEUROD_HTTP_ADDR", ":9999")
	t.Setenv("NEUROD_WORKER_COUNT", "4")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Equal(t, 4, cfg.Scheduler.WorkerCount)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"5s"`)))
	require.Equal(t, "5s", d.Duration.String())

	var d2 Duration
	require.NoError(t, d2.UnmarshalJSON([]byte(`1000000000`)))
	require.Equal(t, "1s", d2.Duration.String())
}
