// Package config loads process-wide configuration for the dispatch core:
// YAML via gopkg.in/yaml.v3, with an optional .env overlay via
// github.com/joho/godotenv and explicit environment-variable overrides,
// matching the teacher's Load/LoadFromEnv split.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all process-wide configuration.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Gmail    GmailConfig    `yaml:"gmail"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// RedisConfig configures the C5 task queue connection.
type RedisConfig struct {
	URL            string `yaml:"url"`
	DialTimeoutSec int    `yaml:"dial_timeout_seconds"`
}

func (c RedisConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSec) * time.Second
}

// DatabaseConfig configures the reference Postgres Datastore adapter.
type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	ConnTimeoutSec int    `yaml:"conn_timeout_seconds"`
}

func (c DatabaseConfig) ConnTimeout() time.Duration {
	return time.Duration(c.ConnTimeoutSec) * time.Second
}

// GmailConfig holds scope settings for the domain-wide-delegation
// transport. They are loaded but not passed to transport.GmailAdapter,
// which uses its own built-in send and directory scopes.
type GmailConfig struct {
	SendScope      string `yaml:"send_scope"`
	DirectoryScope string `yaml:"directory_scope"`
}

// SMTPConfig configures the supplemented SMTP fallback transport leg.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
}

// DispatchConfig is the options table from the external interfaces
// section: tunables for the preparer and batch executor.
type DispatchConfig struct {
	MaxParallelPerSender int `yaml:"max_parallel_per_sender"`
	MicroDelayMillis     int `yaml:"micro_delay_millis"`
	StatusPollInterval   int `yaml:"status_poll_interval"`
	LogCap               int `yaml:"log_cap"`
	ProgressTTLHours     int `yaml:"progress_ttl_hours"`
	DailyLimitDefault    int `yaml:"daily_limit_default"`
}

func (c DispatchConfig) MicroDelay() time.Duration {
	return time.Duration(c.MicroDelayMillis) * time.Millisecond
}

func (c DispatchConfig) ProgressTTL() time.Duration {
	return time.Duration(c.ProgressTTLHours) * time.Hour
}

func defaults() Config {
	return Config{
		Redis:    RedisConfig{URL: "redis://127.0.0.1:6379/0", DialTimeoutSec: 5},
		Database: DatabaseConfig{MaxOpenConns: 10, ConnTimeoutSec: 5},
		Gmail: GmailConfig{
			SendScope:      "https://www.googleapis.com/auth/gmail.send",
			DirectoryScope: "https://www.googleapis.com/auth/admin.directory.user.readonly",
		},
		Dispatch: DispatchConfig{
			MaxParallelPerSender: 50,
			MicroDelayMillis:     0,
			StatusPollInterval:   10,
			LogCap:               5000,
			ProgressTTLHours:     24,
			DailyLimitDefault:    2000,
		},
	}
}

// Load reads YAML config from path and applies zero-value defaults for
// anything the file left unset.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	applyZeroValueDefaults(&cfg)
	return cfg, nil
}

// LoadFromEnv loads YAML from path, then overlays a .env file (if
// present) and specific environment-variable overrides, matching the
// teacher's two-stage config load.
func LoadFromEnv(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}

	_ = godotenv.Load()

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SMTP_ENABLED"); v != "" {
		cfg.SMTP.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("DAILY_LIMIT_DEFAULT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.DailyLimitDefault = n
		}
	}

	return cfg, nil
}

func applyZeroValueDefaults(cfg *Config) {
	d := defaults()
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = d.Redis.URL
	}
	if cfg.Redis.DialTimeoutSec == 0 {
		cfg.Redis.DialTimeoutSec = d.Redis.DialTimeoutSec
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if cfg.Database.ConnTimeoutSec == 0 {
		cfg.Database.ConnTimeoutSec = d.Database.ConnTimeoutSec
	}
	if cfg.Gmail.SendScope == "" {
		cfg.Gmail.SendScope = d.Gmail.SendScope
	}
	if cfg.Gmail.DirectoryScope == "" {
		cfg.Gmail.DirectoryScope = d.Gmail.DirectoryScope
	}
	if cfg.Dispatch.MaxParallelPerSender == 0 {
		cfg.Dispatch.MaxParallelPerSender = d.Dispatch.MaxParallelPerSender
	}
	if cfg.Dispatch.StatusPollInterval == 0 {
		cfg.Dispatch.StatusPollInterval = d.Dispatch.StatusPollInterval
	}
	if cfg.Dispatch.LogCap == 0 {
		cfg.Dispatch.LogCap = d.Dispatch.LogCap
	}
	if cfg.Dispatch.ProgressTTLHours == 0 {
		cfg.Dispatch.ProgressTTLHours = d.Dispatch.ProgressTTLHours
	}
	if cfg.Dispatch.DailyLimitDefault == 0 {
		cfg.Dispatch.DailyLimitDefault = d.Dispatch.DailyLimitDefault
	}
}
