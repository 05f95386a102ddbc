package config

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Success_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("WEBSERVER_PORT", "8081")
	t.Setenv("RECORDINGS_ROOT", "/srv/scanner")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, 8081, cfg.WebServerPort)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "data/incidents.db", cfg.DatabasePath)
	require.Equal(t, 10, cfg.DatabaseRetries) // default
	require.Equal(t, "/srv/scanner", cfg.Recordings.Root)
	require.Equal(t, "tree", cfg.Recordings.Layout)
	require.Equal(t, 3*time.Second, cfg.Recordings.StableWindow)
	require.Equal(t, time.Second, cfg.Recordings.StablePoll)
	require.Equal(t, "@every 2m", cfg.Pipeline.RecoverySchedule)
	require.Equal(t, 15*time.Second, cfg.Feed.HeartbeatInterval)
	require.Equal(t, "whisper", cfg.Services.Transcriber)
	require.InDelta(t, 42.2869, cfg.Services.ServiceSouth, 1e-9)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", loc.String())
}

func TestLoadConfig_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DATABASE_RETRIES", "3")
	t.Setenv("STABLE_WINDOW", "5s")
	t.Setenv("INGEST_WORKERS", "6")
	t.Setenv("RECORDINGS_LAYOUT", "daily")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, cfg.DatabaseRetries)
	require.Equal(t, 5*time.Second, cfg.Recordings.StableWindow)
	require.Equal(t, 6, cfg.Pipeline.IngestWorkers)
	require.Equal(t, "daily", cfg.Recordings.Layout)
}

func TestLoadConfig_ValidationError(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without dsn":  {"STORE_DRIVER": "postgres"},
		"unknown driver":        {"STORE_DRIVER": "mysql"},
		"deepgram without key":  {"TRANSCRIBER": "deepgram"},
		"bad layout":            {"RECORDINGS_LAYOUT": "weekly"},
		"max wait below window": {"STABLE_MAX_WAIT": "1s"},
		"bad timezone":          {"TIMEZONE": "Mars/Olympus_Mons"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(context.Background())
			require.Error(t, err)
			require.Nil(t, cfg)
		})
	}
}
