package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fraudgrid.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FRAUDGRID_PORT")
	setString(&cfg.Server.CORSOrigin, "FRAUDGRID_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FRAUDGRID_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FRAUDGRID_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FRAUDGRID_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FRAUDGRID_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FRAUDGRID_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "FRAUDGRID_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FRAUDGRID_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FRAUDGRID_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FRAUDGRID_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "FRAUDGRID_BREAKER_COOLDOWN")
	setDuration(&cfg.Registry.HeartbeatTimeout, "FRAUDGRID_HEARTBEAT_TIMEOUT")
	setInt(&cfg.Registry.HistoryCap, "FRAUDGRID_HISTORY_CAP")
	setBool(&cfg.Registry.SeedDev, "FRAUDGRID_SEED_DEV_AGENTS")
	setInt(&cfg.Matcher.MaxAgents, "FRAUDGRID_MATCHER_MAX_AGENTS")
	setDuration(&cfg.Matcher.CacheTTL, "FRAUDGRID_MATCHER_CACHE_TTL")
	setInt(&cfg.Orchestrator.MaxParallel, "FRAUDGRID_ORCH_MAX_PARALLEL")
	setInt(&cfg.Orchestrator.DefaultMaxRetries, "FRAUDGRID_ORCH_MAX_RETRIES")
	setDuration(&cfg.Orchestrator.StepTimeout, "FRAUDGRID_ORCH_STEP_TIMEOUT")
	setFloat64(&cfg.Orchestrator.UrgencyThreshold, "FRAUDGRID_ORCH_URGENCY_THRESHOLD")
	setInt64(&cfg.Cache.MaxSizeMB, "FRAUDGRID_CACHE_SIZE_MB")
	setInt64(&cfg.Cache.NumCounters, "FRAUDGRID_CACHE_COUNTERS")
	setString(&cfg.Templates.CustomDir, "FRAUDGRID_TEMPLATE_DIR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Registry.HeartbeatTimeout <= 0 {
		return errors.New("registry.heartbeat_timeout must be positive")
	}
	if cfg.Registry.HistoryCap < 1 {
		return errors.New("registry.history_cap must be >= 1")
	}
	if cfg.Matcher.MaxAgents < 1 {
		return errors.New("matcher.max_agents must be >= 1")
	}
	if cfg.Orchestrator.MaxParallel < 1 {
		return errors.New("orchestrator.max_parallel must be >= 1")
	}
	if cfg.Orchestrator.DefaultMaxRetries < 1 {
		return errors.New("orchestrator.default_max_retries must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
