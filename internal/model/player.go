package model

import (
	"strings"
	"time"
)

// PlayerID identifies a PlayerRecord. The HTTP API also calls it the auth ID.
type PlayerID string

// GuildID identifies a chat-platform community
type GuildID string

// RecordSource records how a PlayerRecord came to exist
type RecordSource string

const (
	SourceImported RecordSource = "imported" // bulk import of an existing whitelist
	SourceLinked   RecordSource = "linked"   // created through the auth code handshake
	SourceManual   RecordSource = "manual"   // created by staff
)

// RevocationReason is the typed cause of a whitelist revocation
type RevocationReason string

const (
	ReasonPlatformLeave RevocationReason = "platform_leave"
	ReasonStaffAction   RevocationReason = "staff_action"
	ReasonManual        RevocationReason = "manual"
)

// SystemActor is recorded as RevokedBy for automatic revocations
const SystemActor = "system"

// AuthState is the transient auth-code handshake attached to a record.
// It is nil whenever the record is not mid-handshake.
type AuthState struct {
	Code        string     `json:"code"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CodeShownAt *time.Time `json:"code_shown_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Expired reports whether the code is past its expiry
func (a *AuthState) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// PlayerRecord links one game account in one guild to a chat account and
// carries its whitelist state.
type PlayerRecord struct {
	ID      PlayerID `json:"id"`
	GuildID GuildID  `json:"guild_id"`

	// Game identity. GameUUID is empty for text-only imports.
	GameUUID     string `json:"game_uuid,omitempty"`
	GameUsername string `json:"game_username"`

	// Chat account, captured at link time (not kept in sync)
	ChatUserID      string `json:"chat_user_id,omitempty"`
	ChatUsername    string `json:"chat_username,omitempty"`
	ChatDisplayName string `json:"chat_display_name,omitempty"`

	// Whitelist state
	WhitelistedAt    *time.Time       `json:"whitelisted_at,omitempty"`
	LinkedAt         *time.Time       `json:"linked_at,omitempty"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty"`
	RevokedBy        string           `json:"revoked_by,omitempty"`
	RevocationReason RevocationReason `json:"revocation_reason,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`

	Auth *AuthState `json:"auth,omitempty"`

	// Audit
	ApprovedBy string       `json:"approved_by,omitempty"`
	Source     RecordSource `json:"source"`
	Notes      string       `json:"notes,omitempty"`

	// Role sync bookkeeping
	RoleSyncEnabled  bool       `json:"role_sync_enabled"`
	LastSyncedRoles  []string   `json:"last_synced_roles,omitempty"`
	LastSyncedGroups []string   `json:"last_synced_groups,omitempty"`
	LastRoleSyncAt   *time.Time `json:"last_role_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsWhitelisted reports whether the player may currently join
func (p *PlayerRecord) IsWhitelisted() bool {
	return p.WhitelistedAt != nil && p.RevokedAt == nil
}

// IsLinked reports whether a chat account has been bound
func (p *PlayerRecord) IsLinked() bool {
	return p.ChatUserID != ""
}

// AwaitingApproval reports whether a confirmed code is waiting on staff
func (p *PlayerRecord) AwaitingApproval() bool {
	return p.Auth != nil && p.Auth.ConfirmedAt != nil &&
		p.WhitelistedAt == nil && p.RevokedAt == nil
}

// ActiveCode returns the unexpired, unconfirmed auth code, if any
func (p *PlayerRecord) ActiveCode(now time.Time) (string, bool) {
	if p.Auth == nil || p.Auth.Code == "" || p.Auth.ConfirmedAt != nil || p.Auth.Expired(now) {
		return "", false
	}
	return p.Auth.Code, true
}

// HasExpiredCode reports whether an unconfirmed code has lapsed
func (p *PlayerRecord) HasExpiredCode(now time.Time) bool {
	return p.Auth != nil && p.Auth.ConfirmedAt == nil && p.Auth.Expired(now)
}

// IsPendingAuth reports whether the record is mid-handshake
func (p *PlayerRecord) IsPendingAuth() bool {
	return p.Auth != nil && p.WhitelistedAt == nil && p.RevokedAt == nil
}

// IsRejected reports whether staff or policy has turned this player away
func (p *PlayerRecord) IsRejected() bool {
	return p.RevokedAt != nil || p.RejectionReason != ""
}

// IsLeaveRevoked reports whether the current revocation came from leaving the platform
func (p *PlayerRecord) IsLeaveRevoked() bool {
	return p.RevokedAt != nil && p.RevocationReason == ReasonPlatformLeave
}

// AuthCode returns the stored code, or "" when there is none
func (p *PlayerRecord) AuthCode() string {
	if p.Auth == nil {
		return ""
	}
	return p.Auth.Code
}

// AppendNote adds a line to the record's notes
func (p *PlayerRecord) AppendNote(note string) {
	if p.Notes == "" {
		p.Notes = note
		return
	}
	p.Notes = p.Notes + "\n" + note
}

// Clone returns a deep copy so stores never share mutable state with callers
func (p *PlayerRecord) Clone() *PlayerRecord {
	c := *p
	c.WhitelistedAt = cloneTime(p.WhitelistedAt)
	c.LinkedAt = cloneTime(p.LinkedAt)
	c.RevokedAt = cloneTime(p.RevokedAt)
	c.LastRoleSyncAt = cloneTime(p.LastRoleSyncAt)
	c.LastSyncedRoles = append([]string(nil), p.LastSyncedRoles...)
	c.LastSyncedGroups = append([]string(nil), p.LastSyncedGroups...)
	if p.Auth != nil {
		a := *p.Auth
		a.CodeShownAt = cloneTime(p.Auth.CodeShownAt)
		a.ConfirmedAt = cloneTime(p.Auth.ConfirmedAt)
		c.Auth = &a
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NormalizeUsername returns the canonical (indexed) form of a game username
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeUUID returns the canonical form of a game UUID
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}
