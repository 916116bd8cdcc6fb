package model

import "time"

// SyncTrigger names what caused a role sync calculation
type SyncTrigger string

const (
	TriggerConnection SyncTrigger = "connection"
	TriggerManual     SyncTrigger = "manual"
	TriggerApproval   SyncTrigger = "approval"
)

// RoleMapping maps a chat-platform role to an in-game permission group
type RoleMapping struct {
	RoleID  string `json:"roleId" yaml:"role_id"`
	Group   string `json:"group" yaml:"group"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// RoleSyncLog is an immutable audit entry for a sync that changed something
type RoleSyncLog struct {
	ID            string      `json:"id"`
	GuildID       GuildID     `json:"guildId"`
	PlayerID      PlayerID    `json:"playerId"`
	Trigger       SyncTrigger `json:"trigger"`
	RolesBefore   []string    `json:"rolesBefore"`
	RolesAfter    []string    `json:"rolesAfter"`
	GroupsBefore  []string    `json:"groupsBefore"`
	GroupsAfter   []string    `json:"groupsAfter"`
	GroupsAdded   []string    `json:"groupsAdded"`
	GroupsRemoved []string    `json:"groupsRemoved"`
	Success       bool        `json:"success"`
	Error         string      `json:"error,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}
