package guildconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/mclink/internal/model"
)

const sampleConfig = `
auth_code_ttl: 5m
default_messages:
  pending: "Hang tight, {username}."
guilds:
  - id: "100"
    name: Survival
    server_addresses: ["play.example.com", "10.0.0.5:25565"]
    messages:
      show_auth_code: "Code: {code}"
    role_sync:
      enabled: true
      mappings:
        - role_id: vip
          group: vip-mc
          enabled: true
        - role_id: booster
          group: vip-mc
          enabled: true
        - role_id: old
          group: legacy
          enabled: false
    leave_revocation:
      enabled: true
      restore_on_rejoin: true
  - id: "200"
    name: Creative
api_keys:
  - name: plugin
    hash: "$2a$10$abcdefghijklmnopqrstuu"
    scopes: [minecraft:connect]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AuthCodeTTL)
	require.Len(t, cfg.Guilds, 2)
	g := cfg.Guilds[0]
	assert.Equal(t, model.GuildID("100"), g.ID)
	assert.True(t, g.RoleSync.Enabled)
	assert.Len(t, g.RoleSync.Mappings, 3)
	assert.True(t, g.LeaveRevocation.RestoresOnRejoin())
	assert.True(t, cfg.Guilds[1].LeaveRevocation.RestoresOnRejoin())

	// Guild override, then file defaults, then built-ins
	assert.Equal(t, "Code: {code}", g.Messages.ShowAuthCode)
	assert.Equal(t, "Hang tight, {username}.", g.Messages.Pending)
	assert.Equal(t, DefaultMessages().Error, g.Messages.Error)

	require.Len(t, cfg.APIKeys, 1)
	assert.Equal(t, []model.Scope{model.ScopeConnect}, cfg.APIKeys[0].Scopes)
}

func TestParseDefaultsTTL(t *testing.T) {
	cfg, err := Parse([]byte("guilds: []"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthCodeTTL, cfg.AuthCodeTTL)
	assert.Equal(t, DefaultMessages(), cfg.Defaults)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"ttl too short":      "auth_code_ttl: 1m",
		"ttl too long":       "auth_code_ttl: 1h",
		"missing guild id":   "guilds: [{name: x}]",
		"duplicate guild":    "guilds: [{id: a}, {id: a}]",
		"shared address":     "guilds: [{id: a, server_addresses: [h]}, {id: b, server_addresses: [H]}]",
		"incomplete mapping": "guilds: [{id: a, role_sync: {mappings: [{role_id: r}]}}]",
		"unknown scope":      "api_keys: [{name: k, hash: h, scopes: [admin]}]",
		"key without scope":  "api_keys: [{name: k, hash: h}]",
		"malformed yaml":     "guilds: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Guilds, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	r := NewRegistry(cfg)

	g, ok := r.Guild("100")
	require.True(t, ok)
	assert.Equal(t, "Survival", g.Name)

	_, ok = r.Guild("999")
	assert.False(t, ok)

	byAddr, ok := r.ByServerAddress("PLAY.example.com:25565")
	require.True(t, ok)
	assert.Equal(t, model.GuildID("100"), byAddr.ID)

	byAddr, ok = r.ByServerAddress("10.0.0.5:25565")
	require.True(t, ok)
	assert.Equal(t, model.GuildID("100"), byAddr.ID)

	_, ok = r.ByServerAddress("10.0.0.5:25566")
	assert.False(t, ok)
	_, ok = r.ByServerAddress("")
	assert.False(t, ok)

	assert.Equal(t, 5*time.Minute, r.AuthCodeTTL())
	assert.Equal(t, cfg.Defaults, r.Messages(nil))
	assert.Equal(t, []string{"vip-mc"}, g.ManagedGroups())
	assert.True(t, g.RoleSyncEnabled())
}

func TestRender(t *testing.T) {
	m := DefaultMessages()
	msg := m.Render(MessageShowAuthCode, Vars{Code: "482913"})
	assert.Contains(t, msg, "482913")
	assert.NotContains(t, msg, "{code}")

	msg = m.Render(MessageRejected, Vars{Reason: "griefing"})
	assert.Equal(t, "Your whitelist request was denied: griefing", msg)

	assert.Equal(t, m.Error, m.Render(MessageKind("unknown"), Vars{}))
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "guilds.example.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Guilds, 1)
	assert.Equal(t, 10*time.Minute, cfg.AuthCodeTTL)
	assert.True(t, cfg.Guilds[0].LeaveRevocation.RestoresOnRejoin())
	assert.Len(t, cfg.APIKeys, 2)
}
