package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Rollup   RollupConfig   `koanf:"rollup"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RollupConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Interval       string `koanf:"interval"` // parsed and validated on startup
	TaskCap        int    `koanf:"task_cap"`
	WorkerCount    int    `koanf:"worker_count"`
	ChunkDays      int    `koanf:"chunk_days"`
	LookbackMonths int    `koanf:"lookback_months"`
	UpsertBatch    int    `koanf:"upsert_batch"`
	CustomRuleDir  string `koanf:"custom_rule_dir"`
}

// IntervalDuration returns the parsed scheduler interval. Validate has
// already checked it parses.
func (c RollupConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// Lookback returns the incremental scan horizon as a duration.
func (c RollupConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMonths) * 30 * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}

	interval, err := time.ParseDuration(c.Rollup.Interval)
	if err != nil {
		return fmt.Errorf("invalid rollup.interval %q: %w", c.Rollup.Interval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("rollup.interval must be > 0")
	}
	if c.Rollup.TaskCap <= 0 {
		return fmt.Errorf("rollup.task_cap must be > 0")
	}
	if c.Rollup.WorkerCount <= 0 {
		return fmt.Errorf("rollup.worker_count must be > 0")
	}
	if c.Rollup.ChunkDays <= 0 {
		return fmt.Errorf("rollup.chunk_days must be > 0")
	}
	if c.Rollup.LookbackMonths <= 0 {
		return fmt.Errorf("rollup.lookback_months must be > 0")
	}
	if c.Rollup.UpsertBatch <= 0 {
		return fmt.Errorf("rollup.upsert_batch must be > 0")
	}

	return nil
}

// Load parses config from defaults, an optional YAML file, and VITALSUM_
// env vars (double underscore maps to a dot: VITALSUM_ROLLUP__TASK_CAP).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.mode":             "release",
		"database.dsn":            "postgres://localhost:5432/vitalsum?sslmode=disable",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"redis.addr":              "localhost:6379",
		"redis.password":          "",
		"redis.db":                0,
		"rollup.enabled":          true,
		"rollup.interval":         "6m",
		"rollup.task_cap":         5000,
		"rollup.worker_count":     4,
		"rollup.chunk_days":       30,
		"rollup.lookback_months":  3,
		"rollup.upsert_batch":     1000,
		"rollup.custom_rule_dir":  "./config/rules",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("VITALSUM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VITALSUM_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
