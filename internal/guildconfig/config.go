// Package guildconfig loads per-guild linking policy and API keys from YAML.
package guildconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/mclink/internal/model"
)

const (
	DefaultAuthCodeTTL = 10 * time.Minute
	MinAuthCodeTTL     = 5 * time.Minute
	MaxAuthCodeTTL     = 10 * time.Minute
)

// Config is the contents of the guild configuration file
type Config struct {
	AuthCodeTTL time.Duration `yaml:"auth_code_ttl"`
	Defaults    Messages      `yaml:"default_messages"`
	Guilds      []Guild       `yaml:"guilds"`
	APIKeys     []APIKey      `yaml:"api_keys"`
}

// Guild holds one community's linking policy
type Guild struct {
	ID              model.GuildID   `yaml:"id"`
	Name            string          `yaml:"name"`
	ServerAddresses []string        `yaml:"server_addresses"`
	Messages        Messages        `yaml:"messages"`
	RoleSync        RoleSync        `yaml:"role_sync"`
	LeaveRevocation LeaveRevocation `yaml:"leave_revocation"`
}

// RoleSync configures chat role to game group mapping
type RoleSync struct {
	Enabled  bool                `yaml:"enabled"`
	Mappings []model.RoleMapping `yaml:"mappings"`
}

// LeaveRevocation configures how leaving the chat platform affects the whitelist
type LeaveRevocation struct {
	Enabled         bool  `yaml:"enabled"`
	RestoreOnRejoin *bool `yaml:"restore_on_rejoin"`
}

// RestoresOnRejoin reports whether rejoining restores a leave revocation.
// Defaults to true when unset.
func (l LeaveRevocation) RestoresOnRejoin() bool {
	return l.RestoreOnRejoin == nil || *l.RestoreOnRejoin
}

// APIKey is a bcrypt-hashed credential and the scopes it grants
type APIKey struct {
	Name   string        `yaml:"name"`
	Hash   string        `yaml:"hash"`
	Scopes []model.Scope `yaml:"scopes"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.AuthCodeTTL == 0 {
		cfg.AuthCodeTTL = DefaultAuthCodeTTL
	}
	cfg.Defaults = cfg.Defaults.withFallback(DefaultMessages())
	for i := range cfg.Guilds {
		cfg.Guilds[i].Messages = cfg.Guilds[i].Messages.withFallback(cfg.Defaults)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.AuthCodeTTL < MinAuthCodeTTL || c.AuthCodeTTL > MaxAuthCodeTTL {
		return fmt.Errorf("auth_code_ttl must be between %s and %s, got %s", MinAuthCodeTTL, MaxAuthCodeTTL, c.AuthCodeTTL)
	}

	ids := make(map[model.GuildID]bool)
	addresses := make(map[string]model.GuildID)
	for _, g := range c.Guilds {
		if g.ID == "" {
			return fmt.Errorf("guild %q: id is required", g.Name)
		}
		if ids[g.ID] {
			return fmt.Errorf("guild %s: duplicate id", g.ID)
		}
		ids[g.ID] = true

		for _, addr := range g.ServerAddresses {
			norm := normalizeAddress(addr)
			if norm == "" {
				return fmt.Errorf("guild %s: empty server address", g.ID)
			}
			if owner, ok := addresses[norm]; ok {
				return fmt.Errorf("guild %s: server address %s already belongs to guild %s", g.ID, addr, owner)
			}
			addresses[norm] = g.ID
		}

		for _, m := range g.RoleSync.Mappings {
			if m.RoleID == "" || m.Group == "" {
				return fmt.Errorf("guild %s: role mappings need role_id and group", g.ID)
			}
		}
	}

	for _, k := range c.APIKeys {
		if k.Name == "" || k.Hash == "" {
			return fmt.Errorf("api keys need a name and hash")
		}
		if len(k.Scopes) == 0 {
			return fmt.Errorf("api key %s: at least one scope is required", k.Name)
		}
		for _, scope := range k.Scopes {
			if !scope.Valid() {
				return fmt.Errorf("api key %s: unknown scope %q", k.Name, scope)
			}
		}
	}
	return nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
