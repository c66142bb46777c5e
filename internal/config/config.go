package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/prism-archive/internal/climate"
)

// DefaultCumulativeDays is the trailing window of the pptsum product when
// neither PPTSUM_DAYS nor the request sets one.
const DefaultCumulativeDays = climate.DefaultCumulativeDays

type AppConfig struct {
	// ArchiveRoot holds assets, staging and derived products.
	ArchiveRoot string

	// SourceURL is the remote archive root (ftp:// or https://).
	SourceURL   string
	SourceEmail string
	HTTPTimeout time.Duration

	// Variables ingested by the scheduler.
	Variables []climate.Variable

	FetchInterval     time.Duration
	FetchLookbackDays int
	FetchConcurrency  int
	FetchMaxRetries   int

	CumulativeDays int

	// DatabaseURL enables the Postgres catalog when set.
	DatabaseURL string
	// PublishBucket enables S3 publishing of derived products when set.
	PublishBucket string
	PublishPrefix string

	LogLevel  string
	LogFormat string

	Port string
}

// Load reads configuration from environment with sensible defaults. Values
// come from, in order of precedence: the process environment, .env, and the
// YAML file named by CONFIG_FILE.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg := &AppConfig{}
	var err error

	cfg.ArchiveRoot = getenvDefault("ARCHIVE_ROOT", "./archive")
	cfg.SourceURL = getenvDefault("SOURCE_URL", "ftp://prism.nacse.org/daily")
	cfg.SourceEmail = getenvDefault("SOURCE_EMAIL", "anonymous@example.com")
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.PublishBucket = strings.TrimSpace(os.Getenv("PUBLISH_BUCKET"))
	cfg.PublishPrefix = getenvDefault("PUBLISH_PREFIX", "prism/products")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.Port = getenvDefault("PORT", "8080")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.FetchLookbackDays, err = getenvPositive("FETCH_LOOKBACK_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = getenvPositive("FETCH_CONCURRENCY", 2); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = getenvInt("FETCH_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries < 0 {
		return nil, fmt.Errorf("invalid FETCH_MAX_RETRIES: must not be negative")
	}
	if cfg.CumulativeDays, err = getenvPositive("PPTSUM_DAYS", DefaultCumulativeDays); err != nil {
		return nil, err
	}

	vars, err := parseVariables(getenvDefault("VARIABLES", "ppt,tmin,tmax"))
	if err != nil {
		return nil, err
	}
	cfg.Variables = vars

	return cfg, nil
}

func parseVariables(s string) ([]climate.Variable, error) {
	var vars []climate.Variable
	seen := make(map[climate.Variable]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := climate.ParseVariable(part)
		if err != nil {
			return nil, fmt.Errorf("invalid VARIABLES: %w", err)
		}
		if !seen[v] {
			seen[v] = true
			vars = append(vars, v)
		}
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("invalid VARIABLES: no variable configured")
	}
	return vars, nil
}

// loadYAML reads a flat KEY: value YAML file and exports every key that is
// not already set, the same way godotenv treats .env files.
func loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	for k, v := range values {
		key := strings.ToUpper(strings.TrimSpace(k))
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, v); err != nil {
			return err
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvPositive(key string, def int) (int, error) {
	n, err := getenvInt(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
