// Package rolesync derives in-game permission groups from chat roles.
// It is advisory: results are handed to the game plugin, never pushed.
package rolesync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mcoot/mclink/internal/chat"
	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

// Result is the outcome of one sync calculation
type Result struct {
	Enabled       bool     `json:"enabled"`
	TargetGroups  []string `json:"targetGroups"`
	ManagedGroups []string `json:"managedGroups,omitempty"`
	Changes       *Changes `json:"changes,omitempty"`
	Logged        bool     `json:"logged"`
}

// Directive converts the result into what the game plugin receives
func (r *Result) Directive() *model.RoleSyncDirective {
	d := &model.RoleSyncDirective{
		Enabled:       r.Enabled,
		TargetGroups:  r.TargetGroups,
		ManagedGroups: r.ManagedGroups,
	}
	if r.Changes != nil {
		d.GroupsToAdd = r.Changes.ToAdd
		d.GroupsToRemove = r.Changes.ToRemove
	}
	return d
}

// Engine calculates role sync for linked players
type Engine struct {
	storage storage.Storage
	chat    chat.Client
	guilds  *guildconfig.Registry
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates a new role sync Engine
func NewEngine(
	storage storage.Storage,
	chatClient chat.Client,
	guilds *guildconfig.Registry,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		storage: storage,
		chat:    chatClient,
		guilds:  guilds,
		clock:   clock,
		metrics: m,
		logger:  logger.With(slog.String("component", "rolesync")),
	}
}

// Calculate computes the player's target groups from their live chat roles and
// diffs them against currentGroups, restricted to the groups the guild manages.
// Last-known roles and groups are persisted. A log entry is written when
// something would change or when the sync fails.
func (e *Engine) Calculate(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, currentGroups []string, trigger model.SyncTrigger) (*Result, error) {
	guild, ok := e.guilds.Guild(guildID)
	if !ok {
		return nil, model.ErrGuildNotFound
	}
	rec, err := e.storage.GetPlayer(ctx, guildID, playerID)
	if err != nil {
		return nil, err
	}

	if !guild.RoleSyncEnabled() || !rec.RoleSyncEnabled || !rec.IsLinked() {
		e.metrics.RoleSync("disabled")
		return &Result{Enabled: false}, nil
	}

	managed := guild.ManagedGroups()
	current := Restrict(currentGroups, managed)

	var roles []string
	member, err := e.chat.GetMember(ctx, guildID, rec.ChatUserID)
	switch {
	case err == nil:
		roles = member.Roles
	case errors.Is(err, model.ErrMemberNotFound):
		// Not in the guild any more: holds no roles
	default:
		e.metrics.RoleSync("failed")
		e.logger.Warn("failed to fetch chat roles",
			slog.String("guild_id", string(guildID)),
			slog.String("player_id", string(playerID)),
			slog.String("error", err.Error()),
		)
		e.recordFailure(ctx, rec, trigger, current, err)
		return nil, err
	}

	target := TargetGroups(roles, guild.RoleSync.Mappings)
	changes := Diff(current, target)
	now := e.clock.Now()

	roleSet := toSet(roles)
	_, err = e.storage.UpdatePlayer(ctx, guildID, playerID, func(r *model.PlayerRecord) error {
		r.LastSyncedRoles = sortedKeys(roleSet)
		r.LastSyncedGroups = target
		r.LastRoleSyncAt = model.TimePtr(now)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.metrics.RoleSync("failed")
		e.recordFailure(ctx, rec, trigger, current, err)
		return nil, err
	}

	result := &Result{
		Enabled:       true,
		TargetGroups:  target,
		ManagedGroups: managed,
		Changes:       &changes,
	}
	if changes.Empty() {
		e.metrics.RoleSync("unchanged")
		return result, nil
	}

	e.metrics.RoleSync("changed")
	entry := &model.RoleSyncLog{
		ID:            uuid.NewString(),
		GuildID:       guildID,
		PlayerID:      playerID,
		Trigger:       trigger,
		RolesBefore:   rec.LastSyncedRoles,
		RolesAfter:    sortedKeys(roleSet),
		GroupsBefore:  current,
		GroupsAfter:   changes.Apply(current),
		GroupsAdded:   changes.ToAdd,
		GroupsRemoved: changes.ToRemove,
		Success:       true,
		Timestamp:     now,
	}
	if err := e.storage.AppendRoleSyncLog(ctx, entry); err != nil {
		// The calculation is still valid; only the audit entry is lost
		e.logger.Error("failed to append role sync log",
			slog.String("player_id", string(playerID)),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.Logged = true

	e.logger.Info("role sync changes calculated",
		slog.String("guild_id", string(guildID)),
		slog.String("player_id", string(playerID)),
		slog.String("trigger", string(trigger)),
		slog.Any("add", changes.ToAdd),
		slog.Any("remove", changes.ToRemove),
	)
	return result, nil
}

// recordFailure appends an unsuccessful entry. Groups are left as they were.
func (e *Engine) recordFailure(ctx context.Context, rec *model.PlayerRecord, trigger model.SyncTrigger, current []string, cause error) {
	entry := &model.RoleSyncLog{
		ID:           uuid.NewString(),
		GuildID:      rec.GuildID,
		PlayerID:     rec.ID,
		Trigger:      trigger,
		RolesBefore:  rec.LastSyncedRoles,
		RolesAfter:   rec.LastSyncedRoles,
		GroupsBefore: current,
		GroupsAfter:  current,
		Success:      false,
		Error:        cause.Error(),
		Timestamp:    e.clock.Now(),
	}
	if err := e.storage.AppendRoleSyncLog(ctx, entry); err != nil {
		e.logger.Error("failed to append role sync log",
			slog.String("player_id", string(rec.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// History returns the player's sync log, newest first
func (e *Engine) History(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, limit int) ([]*model.RoleSyncLog, error) {
	if _, err := e.storage.GetPlayer(ctx, guildID, playerID); err != nil {
		return nil, err
	}
	return e.storage.ListRoleSyncLogs(ctx, guildID, playerID, limit)
}
