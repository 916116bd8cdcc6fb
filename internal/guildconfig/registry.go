package guildconfig

import (
	"net"
	"time"

	"github.com/mcoot/mclink/internal/model"
)

// Registry answers guild lookups for the services
type Registry struct {
	ttl       time.Duration
	defaults  Messages
	guilds    map[model.GuildID]*Guild
	byAddress map[string]*Guild
}

// NewRegistry indexes a configuration. Missing templates fall back to the defaults.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{
		ttl:       cfg.AuthCodeTTL,
		defaults:  cfg.Defaults.withFallback(DefaultMessages()),
		guilds:    make(map[model.GuildID]*Guild, len(cfg.Guilds)),
		byAddress: make(map[string]*Guild),
	}
	if r.ttl == 0 {
		r.ttl = DefaultAuthCodeTTL
	}
	for _, g := range cfg.Guilds {
		g := g
		g.Messages = g.Messages.withFallback(r.defaults)
		r.guilds[g.ID] = &g
		for _, addr := range g.ServerAddresses {
			r.byAddress[normalizeAddress(addr)] = &g
		}
	}
	return r
}

// AuthCodeTTL is how long an issued code stays valid
func (r *Registry) AuthCodeTTL() time.Duration {
	return r.ttl
}

// Guild looks up a guild by id
func (r *Registry) Guild(id model.GuildID) (*Guild, bool) {
	g, ok := r.guilds[id]
	return g, ok
}

// ByServerAddress resolves the guild that owns a game server address.
// An entry without a port matches the host on any port.
func (r *Registry) ByServerAddress(addr string) (*Guild, bool) {
	norm := normalizeAddress(addr)
	if norm == "" {
		return nil, false
	}
	if g, ok := r.byAddress[norm]; ok {
		return g, true
	}
	if host, _, err := net.SplitHostPort(norm); err == nil {
		if g, ok := r.byAddress[host]; ok {
			return g, true
		}
	}
	return nil, false
}

// Messages returns the templates for a guild, or the defaults when g is nil
func (r *Registry) Messages(g *Guild) Messages {
	if g == nil {
		return r.defaults
	}
	return g.Messages
}

// RoleSyncEnabled reports whether the guild syncs roles at all
func (g *Guild) RoleSyncEnabled() bool {
	return g != nil && g.RoleSync.Enabled
}

// ManagedGroups returns the groups that enabled mappings own for this guild
func (g *Guild) ManagedGroups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, m := range g.RoleSync.Mappings {
		if m.Enabled && !seen[m.Group] {
			seen[m.Group] = true
			groups = append(groups, m.Group)
		}
	}
	return groups
}
