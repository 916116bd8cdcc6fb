// Package connection decides what happens when a player joins a game server.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/rolesync"
	"github.com/mcoot/mclink/internal/storage"
)

// Handler evaluates connection attempts reported by the game plugin.
// It never returns storage errors: failures become the guild's generic
// error message so nothing internal reaches the game server.
type Handler struct {
	storage  storage.Storage
	guilds   *guildconfig.Registry
	roleSync *rolesync.Engine
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a new connection Handler
func NewHandler(
	storage storage.Storage,
	guilds *guildconfig.Registry,
	roleSync *rolesync.Engine,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		storage:  storage,
		guilds:   guilds,
		roleSync: roleSync,
		clock:    clock,
		metrics:  m,
		logger:   logger.With(slog.String("component", "connection")),
	}
}

// HandleAttempt returns the decision for one join. The only error it returns
// is ErrValidation for a malformed attempt.
func (h *Handler) HandleAttempt(ctx context.Context, attempt model.ConnectionAttempt) (*model.ConnectionDecision, error) {
	attempt.Username = strings.TrimSpace(attempt.Username)
	attempt.UUID = strings.TrimSpace(attempt.UUID)
	attempt.IP = strings.TrimSpace(attempt.IP)
	if attempt.Username == "" || attempt.UUID == "" || attempt.IP == "" {
		return nil, model.Validationf("username, uuid and ip are required")
	}

	decision, guild, err := h.decide(ctx, attempt)
	if err != nil {
		h.logger.Error("connection attempt failed",
			slog.String("username", attempt.Username),
			slog.String("uuid", attempt.UUID),
			slog.String("server_ip", attempt.ServerIP),
			slog.String("error", err.Error()),
		)
		decision = h.kick(guild, nil, model.ActionError, guildconfig.MessageError, attempt, guildconfig.Vars{})
	}

	h.metrics.ConnectionAttempt(decision.Action)
	h.logger.Debug("connection attempt evaluated",
		slog.String("username", attempt.Username),
		slog.String("guild_id", string(decision.GuildID)),
		slog.String("action", string(decision.Action)),
		slog.Bool("currently_whitelisted", attempt.CurrentlyWhitelisted),
	)
	h.checkDrift(attempt, decision)
	return decision, nil
}

// checkDrift reports a game server whose whitelist disagrees with the decision.
// Error decisions say nothing about the player and are skipped.
func (h *Handler) checkDrift(attempt model.ConnectionAttempt, decision *model.ConnectionDecision) {
	if decision.Action == model.ActionError || attempt.CurrentlyWhitelisted == decision.ShouldBeWhitelisted {
		return
	}
	direction := "stale"
	if decision.ShouldBeWhitelisted {
		direction = "missing"
	}
	h.metrics.WhitelistDrift(direction)
	h.logger.Warn("game server whitelist disagrees with decision",
		slog.String("username", attempt.Username),
		slog.String("guild_id", string(decision.GuildID)),
		slog.String("direction", direction),
		slog.Bool("currently_whitelisted", attempt.CurrentlyWhitelisted),
		slog.Bool("should_be_whitelisted", decision.ShouldBeWhitelisted),
	)
}

// decide runs the state machine. The resolved guild is returned even on
// error so the failure message can use its template.
func (h *Handler) decide(ctx context.Context, attempt model.ConnectionAttempt) (*model.ConnectionDecision, *guildconfig.Guild, error) {
	fallback, _ := h.guilds.ByServerAddress(attempt.ServerIP)

	if err := h.clearExpiredCodes(ctx, attempt.Username); err != nil {
		return nil, fallback, err
	}

	guild, err := h.resolveGuild(ctx, attempt)
	if err != nil {
		return nil, fallback, err
	}
	if guild == nil {
		return h.kick(nil, nil, model.ActionStartLinking, guildconfig.MessageStartLinking, attempt, guildconfig.Vars{}), nil, nil
	}

	rec, err := h.resolvePlayer(ctx, guild.ID, attempt)
	if err != nil {
		return nil, guild, err
	}
	now := h.clock.Now()

	switch {
	case rec.IsWhitelisted():
		return h.allow(ctx, guild, rec, attempt), guild, nil

	case rec.AwaitingApproval():
		return h.kick(guild, rec, model.ActionPending, guildconfig.MessagePending, attempt, guildconfig.Vars{}), guild, nil

	case hasActiveCode(rec, now):
		shown, err := h.markCodeShown(ctx, rec)
		if err != nil {
			return nil, guild, err
		}
		code, ok := shown.ActiveCode(now)
		if !ok {
			// Consumed between read and write; evaluate the fresh state
			return h.decideFor(ctx, guild, shown, attempt), guild, nil
		}
		return h.kick(guild, shown, model.ActionShowAuthCode, guildconfig.MessageShowAuthCode, attempt, guildconfig.Vars{Code: code}), guild, nil

	default:
		return h.decideFor(ctx, guild, rec, attempt), guild, nil
	}
}

// decideFor evaluates the states that need no further writes
func (h *Handler) decideFor(ctx context.Context, guild *guildconfig.Guild, rec *model.PlayerRecord, attempt model.ConnectionAttempt) *model.ConnectionDecision {
	switch {
	case rec.IsWhitelisted():
		return h.allow(ctx, guild, rec, attempt)
	case rec.AwaitingApproval():
		return h.kick(guild, rec, model.ActionPending, guildconfig.MessagePending, attempt, guildconfig.Vars{})
	case rec.IsRejected():
		kind := guildconfig.MessageRejected
		if rec.IsLeaveRevoked() {
			kind = guildconfig.MessageLeftPlatform
		}
		return h.kick(guild, rec, model.ActionRejected, kind, attempt, guildconfig.Vars{Reason: rejectionReason(rec)})
	default:
		return h.kick(guild, rec, model.ActionStartLinking, guildconfig.MessageStartLinking, attempt, guildconfig.Vars{})
	}
}

func (h *Handler) allow(ctx context.Context, guild *guildconfig.Guild, rec *model.PlayerRecord, attempt model.ConnectionAttempt) *model.ConnectionDecision {
	decision := &model.ConnectionDecision{
		ShouldBeWhitelisted: true,
		HasAuth:             hasAuth(rec),
		Action:              model.ActionAllow,
		GuildID:             guild.ID,
		PlayerID:            rec.ID,
	}
	if !guild.RoleSyncEnabled() || h.roleSync == nil {
		return decision
	}

	res, err := h.roleSync.Calculate(ctx, guild.ID, rec.ID, attempt.CurrentGroups, model.TriggerConnection)
	if err != nil {
		// Role sync is advisory; the player is still allowed in
		h.logger.Warn("role sync failed during connection",
			slog.String("player_id", string(rec.ID)),
			slog.String("error", err.Error()),
		)
		return decision
	}
	if res.Enabled {
		decision.RoleSync = res.Directive()
	}
	return decision
}

func (h *Handler) kick(guild *guildconfig.Guild, rec *model.PlayerRecord, action model.ConnectionAction, kind guildconfig.MessageKind, attempt model.ConnectionAttempt, vars guildconfig.Vars) *model.ConnectionDecision {
	vars.Username = attempt.Username
	decision := &model.ConnectionDecision{
		Action:      action,
		KickMessage: h.guilds.Messages(guild).Render(kind, vars),
	}
	if guild != nil {
		decision.GuildID = guild.ID
	}
	if rec != nil {
		decision.PlayerID = rec.ID
		decision.HasAuth = hasAuth(rec)
	}
	return decision
}

// clearExpiredCodes lazily drops this username's lapsed, unconfirmed codes in every guild
func (h *Handler) clearExpiredCodes(ctx context.Context, username string) error {
	recs, err := h.storage.FindPlayersByUsername(ctx, username)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	for _, rec := range recs {
		if !rec.HasExpiredCode(now) {
			continue
		}
		_, err := h.storage.UpdatePlayer(ctx, rec.GuildID, rec.ID, func(r *model.PlayerRecord) error {
			if r.HasExpiredCode(now) {
				r.Auth = nil
				r.UpdatedAt = now
			}
			return nil
		})
		if err != nil {
			return err
		}
		h.logger.Debug("cleared expired auth code",
			slog.String("guild_id", string(rec.GuildID)),
			slog.String("player_id", string(rec.ID)),
		)
	}
	return nil
}

// resolveGuild finds the guild for an attempt: server address, then a
// pending-auth record (username, then uuid), then any record (uuid, then username).
func (h *Handler) resolveGuild(ctx context.Context, attempt model.ConnectionAttempt) (*guildconfig.Guild, error) {
	if guild, ok := h.guilds.ByServerAddress(attempt.ServerIP); ok {
		return guild, nil
	}

	byUsername, err := h.storage.FindPlayersByUsername(ctx, attempt.Username)
	if err != nil {
		return nil, err
	}
	byUUID, err := h.storage.FindPlayersByUUID(ctx, attempt.UUID)
	if err != nil {
		return nil, err
	}

	pendingAuth := func(rec *model.PlayerRecord) bool { return rec.IsPendingAuth() }
	anyRecord := func(rec *model.PlayerRecord) bool { return true }

	for _, pass := range []struct {
		recs []*model.PlayerRecord
		keep func(*model.PlayerRecord) bool
	}{
		{byUsername, pendingAuth},
		{byUUID, pendingAuth},
		{byUUID, anyRecord},
		{byUsername, anyRecord},
	} {
		for _, rec := range pass.recs {
			if !pass.keep(rec) {
				continue
			}
			if guild, ok := h.guilds.Guild(rec.GuildID); ok {
				return guild, nil
			}
		}
	}
	return nil, nil
}

// resolvePlayer finds the guild's record by uuid, then username, correcting a
// changed username or uuid in place. An unknown player gets a bare record.
func (h *Handler) resolvePlayer(ctx context.Context, guildID model.GuildID, attempt model.ConnectionAttempt) (*model.PlayerRecord, error) {
	username := model.NormalizeUsername(attempt.Username)
	gameUUID := model.NormalizeUUID(attempt.UUID)

	rec, err := h.storage.GetPlayerByUUID(ctx, guildID, gameUUID)
	if err == nil {
		if rec.GameUsername == username {
			return rec, nil
		}
		return h.reconcile(ctx, rec, func(r *model.PlayerRecord) { r.GameUsername = username })
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	rec, err = h.storage.GetPlayerByUsername(ctx, guildID, username)
	if err == nil {
		if rec.GameUUID == gameUUID {
			return rec, nil
		}
		return h.reconcile(ctx, rec, func(r *model.PlayerRecord) { r.GameUUID = gameUUID })
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	return h.createImplicit(ctx, guildID, username, gameUUID)
}

// reconcile applies an identity correction. A correction that would collide
// with another record is skipped and the existing record is used as-is.
func (h *Handler) reconcile(ctx context.Context, rec *model.PlayerRecord, fix func(*model.PlayerRecord)) (*model.PlayerRecord, error) {
	now := h.clock.Now()
	updated, err := h.storage.UpdatePlayer(ctx, rec.GuildID, rec.ID, func(r *model.PlayerRecord) error {
		fix(r)
		r.UpdatedAt = now
		return nil
	})
	if errors.Is(err, model.ErrDuplicate) {
		h.logger.Warn("identity correction conflicts with another record",
			slog.String("player_id", string(rec.ID)),
			slog.String("error", err.Error()),
		)
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	h.logger.Info("reconciled player identity",
		slog.String("player_id", string(rec.ID)),
		slog.String("username", updated.GameUsername),
		slog.String("uuid", updated.GameUUID),
	)
	return updated, nil
}

// createImplicit records a first-time player so later handshakes find them
func (h *Handler) createImplicit(ctx context.Context, guildID model.GuildID, username, gameUUID string) (*model.PlayerRecord, error) {
	now := h.clock.Now()
	rec := &model.PlayerRecord{
		ID:              model.PlayerID(uuid.NewString()),
		GuildID:         guildID,
		GameUUID:        gameUUID,
		GameUsername:    username,
		Source:          model.SourceLinked,
		RoleSyncEnabled: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := h.storage.CreatePlayer(ctx, rec)
	if errors.Is(err, model.ErrDuplicate) {
		// A concurrent attempt created it first
		existing, err := h.storage.GetPlayerByUUID(ctx, guildID, gameUUID)
		if err != nil {
			return h.storage.GetPlayerByUsername(ctx, guildID, username)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (h *Handler) markCodeShown(ctx context.Context, rec *model.PlayerRecord) (*model.PlayerRecord, error) {
	now := h.clock.Now()
	return h.storage.UpdatePlayer(ctx, rec.GuildID, rec.ID, func(r *model.PlayerRecord) error {
		if _, ok := r.ActiveCode(now); ok {
			r.Auth.CodeShownAt = model.TimePtr(now)
			r.UpdatedAt = now
		}
		return nil
	})
}

func hasActiveCode(rec *model.PlayerRecord, now time.Time) bool {
	_, ok := rec.ActiveCode(now)
	return ok
}

// hasAuth reports whether the player has started or finished linking
func hasAuth(rec *model.PlayerRecord) bool {
	return rec.IsLinked() || rec.Auth != nil
}

func rejectionReason(rec *model.PlayerRecord) string {
	if rec.RejectionReason != "" {
		return rec.RejectionReason
	}
	return strings.ReplaceAll(string(rec.RevocationReason), "_", " ")
}
