// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server process needs besides the guild file
type Config struct {
	Port            int    `env:"MCLINK_PORT"             envDefault:"8080"`
	GuildConfigPath string `env:"MCLINK_GUILD_CONFIG"     envDefault:"config/guilds.yaml"`
	LogLevel        string `env:"MCLINK_LOG_LEVEL"        envDefault:"info"`

	StorageType  string `env:"MCLINK_STORAGE_TYPE"  envDefault:"memory"`
	RedisURL     string `env:"MCLINK_REDIS_URL"`
	RedisLogCap  int    `env:"MCLINK_REDIS_SYNC_LOG_LIMIT" envDefault:"500"`
	AuditLogPath string `env:"MCLINK_AUDIT_DB_PATH"`

	DiscordToken  string `env:"MCLINK_DISCORD_TOKEN"`
	DiscordAPIURL string `env:"MCLINK_DISCORD_API_URL"`

	NATSURL     string `env:"MCLINK_NATS_URL"`
	NATSSubject string `env:"MCLINK_NATS_SUBJECT" envDefault:"mclink.membership"`

	MembershipTimeout time.Duration `env:"MCLINK_MEMBERSHIP_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StorageType == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("MCLINK_REDIS_URL required when MCLINK_STORAGE_TYPE=redis")
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
