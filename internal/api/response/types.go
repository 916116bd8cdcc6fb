package response

import (
	"time"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/approval"
	"github.com/mcoot/mclink/internal/services/authcode"
	"github.com/mcoot/mclink/internal/services/rolesync"
)

// ConnectionDecision is returned to the game plugin
type ConnectionDecision struct {
	ShouldBeWhitelisted bool                     `json:"shouldBeWhitelisted"`
	HasAuth             bool                     `json:"hasAuth"`
	Action              model.ConnectionAction   `json:"action"`
	KickMessage         string                   `json:"kickMessage"`
	GuildID             string                   `json:"guildId,omitempty"`
	RoleSync            *model.RoleSyncDirective `json:"roleSync,omitempty"`
}

// ConnectionDecisionFromModel converts a model.ConnectionDecision
func ConnectionDecisionFromModel(d *model.ConnectionDecision) ConnectionDecision {
	return ConnectionDecision{
		ShouldBeWhitelisted: d.ShouldBeWhitelisted,
		HasAuth:             d.HasAuth,
		Action:              d.Action,
		KickMessage:         d.KickMessage,
		GuildID:             string(d.GuildID),
		RoleSync:            d.RoleSync,
	}
}

// AuthState is the visible part of an in-progress handshake
type AuthState struct {
	ExpiresAt   time.Time  `json:"expiresAt"`
	CodeShownAt *time.Time `json:"codeShownAt,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// Player represents a PlayerRecord in API responses
type Player struct {
	ID               string     `json:"id"`
	GuildID          string     `json:"guildId"`
	GameUUID         string     `json:"gameUuid,omitempty"`
	GameUsername     string     `json:"gameUsername"`
	ChatUserID       string     `json:"chatUserId,omitempty"`
	ChatUsername     string     `json:"chatUsername,omitempty"`
	ChatDisplayName  string     `json:"chatDisplayName,omitempty"`
	Whitelisted      bool       `json:"whitelisted"`
	WhitelistedAt    *time.Time `json:"whitelistedAt,omitempty"`
	LinkedAt         *time.Time `json:"linkedAt,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevokedBy        string     `json:"revokedBy,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	ApprovedBy       string     `json:"approvedBy,omitempty"`
	Auth             *AuthState `json:"auth,omitempty"`
	Source           string     `json:"source"`
	Notes            string     `json:"notes,omitempty"`
	RoleSyncEnabled  bool       `json:"roleSyncEnabled"`
	LastSyncedRoles  []string   `json:"lastSyncedRoles,omitempty"`
	LastSyncedGroups []string   `json:"lastSyncedGroups,omitempty"`
	LastRoleSyncAt   *time.Time `json:"lastRoleSyncAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// PlayerFromModel converts a model.PlayerRecord. The auth code itself is never included.
func PlayerFromModel(p *model.PlayerRecord) Player {
	out := Player{
		ID:               string(p.ID),
		GuildID:          string(p.GuildID),
		GameUUID:         p.GameUUID,
		GameUsername:     p.GameUsername,
		ChatUserID:       p.ChatUserID,
		ChatUsername:     p.ChatUsername,
		ChatDisplayName:  p.ChatDisplayName,
		Whitelisted:      p.IsWhitelisted(),
		WhitelistedAt:    p.WhitelistedAt,
		LinkedAt:         p.LinkedAt,
		RevokedAt:        p.RevokedAt,
		RevokedBy:        p.RevokedBy,
		RevocationReason: string(p.RevocationReason),
		RejectionReason:  p.RejectionReason,
		ApprovedBy:       p.ApprovedBy,
		Source:           string(p.Source),
		Notes:            p.Notes,
		RoleSyncEnabled:  p.RoleSyncEnabled,
		LastSyncedRoles:  p.LastSyncedRoles,
		LastSyncedGroups: p.LastSyncedGroups,
		LastRoleSyncAt:   p.LastRoleSyncAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Auth != nil {
		out.Auth = &AuthState{
			ExpiresAt:   p.Auth.ExpiresAt,
			CodeShownAt: p.Auth.CodeShownAt,
			ConfirmedAt: p.Auth.ConfirmedAt,
		}
	}
	return out
}

// PlayersFromModel converts a slice of records
func PlayersFromModel(recs []*model.PlayerRecord) []Player {
	out := make([]Player, 0, len(recs))
	for _, rec := range recs {
		out = append(out, PlayerFromModel(rec))
	}
	return out
}

// PendingList is the response for listing records awaiting approval
type PendingList struct {
	Players []Player `json:"players"`
	Count   int      `json:"count"`
}

// BulkApprove is the response for a bulk approval
type BulkApprove struct {
	Approved        int                  `json:"approved"`
	TotalFound      int                  `json:"totalFound"`
	ApprovedPlayers []Player             `json:"approvedPlayers"`
	Errors          []approval.BulkError `json:"errors"`
}

// BulkApproveFromResult converts an approval.BulkResult
func BulkApproveFromResult(r *approval.BulkResult) BulkApprove {
	return BulkApprove{
		Approved:        r.Approved,
		TotalFound:      r.TotalFound,
		ApprovedPlayers: PlayersFromModel(r.ApprovedPlayers),
		Errors:          r.Errors,
	}
}

// AuthCode is returned when staff issue a code
type AuthCode struct {
	AuthID    string    `json:"authId"`
	GuildID   string    `json:"guildId"`
	AuthCode  string    `json:"authCode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthCodeFromModel converts a record holding a fresh code
func AuthCodeFromModel(p *model.PlayerRecord) AuthCode {
	return AuthCode{
		AuthID:    string(p.ID),
		GuildID:   string(p.GuildID),
		AuthCode:  p.Auth.Code,
		ExpiresAt: p.Auth.ExpiresAt,
	}
}

// LinkCode is returned to the plugin for a legacy link request
type LinkCode struct {
	Success   bool       `json:"success"`
	AuthCode  string     `json:"authCode,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	GuildID   string     `json:"guildId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// LinkCodeFromResult converts an authcode.LinkCodeResult
func LinkCodeFromResult(r *authcode.LinkCodeResult) LinkCode {
	out := LinkCode{
		Success:  r.Success,
		AuthCode: r.AuthCode,
		GuildID:  string(r.GuildID),
		Reason:   r.Reason,
	}
	if r.Success {
		expires := r.ExpiresAt
		out.ExpiresAt = &expires
	}
	return out
}

// RoleSync is the response for a manual role sync
type RoleSync struct {
	model.RoleSyncDirective
	Logged bool `json:"logged"`
}

// RoleSyncFromResult converts a rolesync.Result
func RoleSyncFromResult(r *rolesync.Result) RoleSync {
	return RoleSync{RoleSyncDirective: *r.Directive(), Logged: r.Logged}
}

// RoleSyncLogs is the response for a player's sync history
type RoleSyncLogs struct {
	Logs []*model.RoleSyncLog `json:"logs"`
}

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
}
