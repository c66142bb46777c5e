package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/climate"
)

var keys = []string{
	"CONFIG_FILE", "ARCHIVE_ROOT", "SOURCE_URL", "SOURCE_EMAIL", "HTTP_TIMEOUT", "VARIABLES",
	"FETCH_INTERVAL", "FETCH_LOOKBACK_DAYS", "FETCH_CONCURRENCY", "FETCH_MAX_RETRIES",
	"PPTSUM_DAYS", "DATABASE_URL", "PUBLISH_BUCKET", "PUBLISH_PREFIX", "LOG_LEVEL", "LOG_FORMAT", "PORT",
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	prev, ok := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if ok {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		unsetenv(t, k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./archive", cfg.ArchiveRoot)
	assert.Equal(t, "ftp://prism.nacse.org/daily", cfg.SourceURL)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 24*time.Hour, cfg.FetchInterval)
	assert.Equal(t, 7, cfg.FetchLookbackDays)
	assert.Equal(t, 2, cfg.FetchConcurrency)
	assert.Equal(t, 3, cfg.FetchMaxRetries)
	assert.Equal(t, 5, cfg.CumulativeDays)
	assert.Equal(t, climate.Variables, cfg.Variables)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.PublishBucket)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARCHIVE_ROOT", "/data/prism")
	t.Setenv("SOURCE_URL", "https://data.prism.oregonstate.edu/daily")
	t.Setenv("VARIABLES", "PPT, ppt ,tmax")
	t.Setenv("FETCH_INTERVAL", "6h")
	t.Setenv("FETCH_MAX_RETRIES", "0")
	t.Setenv("PPTSUM_DAYS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/prism", cfg.ArchiveRoot)
	assert.Equal(t, "https://data.prism.oregonstate.edu/daily", cfg.SourceURL)
	assert.Equal(t, []climate.Variable{climate.VariablePrecipitation, climate.VariableMaxTemperature}, cfg.Variables)
	assert.Equal(t, 6*time.Hour, cfg.FetchInterval)
	assert.Equal(t, 0, cfg.FetchMaxRetries)
	assert.Equal(t, 10, cfg.CumulativeDays)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"VARIABLES":           "ppt,tdmean",
		"FETCH_INTERVAL":      "-1h",
		"HTTP_TIMEOUT":        "soon",
		"FETCH_CONCURRENCY":   "0",
		"FETCH_LOOKBACK_DAYS": "x",
		"FETCH_MAX_RETRIES":   "-2",
		"PPTSUM_DAYS":         "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "prism.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive_root: /srv/prism\nPPTSUM_DAYS: \"3\"\nPORT: \"9000\"\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/prism", cfg.ArchiveRoot)
	assert.Equal(t, 3, cfg.CumulativeDays)
	assert.Equal(t, "7000", cfg.Port, "environment wins over the file")
}

func TestLoadYAMLMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
