// Package approval implements the staff side of account linking: approving or
// rejecting confirmed links, bulk approval and manual revocation.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/rolesync"
	"github.com/mcoot/mclink/internal/storage"
)

// MaxBulkApprove caps how many records one bulk approval may resolve
const MaxBulkApprove = 50

// errNoop aborts an update that has nothing to change
var errNoop = errors.New("no change")

// Workflow moves confirmed records to their resolved state
type Workflow struct {
	storage  storage.Storage
	guilds   *guildconfig.Registry
	roleSync *rolesync.Engine
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// BulkError describes one record a bulk approval could not resolve
type BulkError struct {
	PlayerID model.PlayerID `json:"playerId"`
	Username string         `json:"username"`
	Error    string         `json:"error"`
}

// BulkResult summarises a bulk approval
type BulkResult struct {
	Approved        int                   `json:"approved"`
	TotalFound      int                   `json:"totalFound"`
	ApprovedPlayers []*model.PlayerRecord `json:"approvedPlayers"`
	Errors          []BulkError           `json:"errors"`
}

// NewWorkflow creates a new approval Workflow
func NewWorkflow(
	storage storage.Storage,
	guilds *guildconfig.Registry,
	roleSync *rolesync.Engine,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		storage:  storage,
		guilds:   guilds,
		roleSync: roleSync,
		clock:    clock,
		metrics:  m,
		logger:   logger.With(slog.String("component", "approval")),
	}
}

// Approve whitelists a confirmed record. Only one of several racing approvals
// or rejections of the same record can succeed.
func (w *Workflow) Approve(ctx context.Context, guildID model.GuildID, authID model.PlayerID, staffID, notes string) (*model.PlayerRecord, error) {
	guild, err := w.guild(guildID)
	if err != nil {
		return nil, err
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, model.Validationf("staff id is required")
	}

	now := w.clock.Now()
	rec, err := w.storage.UpdatePlayer(ctx, guildID, authID, func(r *model.PlayerRecord) error {
		if err := checkResolvable(r); err != nil {
			return err
		}
		r.LinkedAt = model.TimePtr(now)
		r.WhitelistedAt = model.TimePtr(now)
		r.ApprovedBy = staffID
		if notes = strings.TrimSpace(notes); notes != "" {
			r.AppendNote(notes)
		}
		r.Auth = nil
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.metrics.Approved()
	w.logger.Info("player approved",
		slog.String("guild_id", string(guildID)),
		slog.String("player_id", string(rec.ID)),
		slog.String("username", rec.GameUsername),
		slog.String("staff_id", staffID),
	)

	if guild.RoleSyncEnabled() && w.roleSync != nil {
		if _, err := w.roleSync.Calculate(ctx, guildID, rec.ID, nil, model.TriggerApproval); err != nil {
			w.logger.Warn("initial role sync failed",
				slog.String("player_id", string(rec.ID)),
				slog.String("error", err.Error()),
			)
		} else if synced, err := w.storage.GetPlayer(ctx, guildID, rec.ID); err == nil {
			rec = synced
		}
	}
	return rec, nil
}

// Reject turns down a confirmed record with a staff-supplied reason
func (w *Workflow) Reject(ctx context.Context, guildID model.GuildID, authID model.PlayerID, staffID, reason string) (*model.PlayerRecord, error) {
	if _, err := w.guild(guildID); err != nil {
		return nil, err
	}
	staffID = strings.TrimSpace(staffID)
	reason = strings.TrimSpace(reason)
	if staffID == "" {
		return nil, model.Validationf("staff id is required")
	}
	if reason == "" {
		return nil, model.Validationf("reason is required")
	}

	now := w.clock.Now()
	rec, err := w.storage.UpdatePlayer(ctx, guildID, authID, func(r *model.PlayerRecord) error {
		if err := checkResolvable(r); err != nil {
			return err
		}
		r.RevokedAt = model.TimePtr(now)
		r.RevokedBy = staffID
		r.RevocationReason = model.ReasonStaffAction
		r.RejectionReason = reason
		r.Auth = nil
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.metrics.Rejected()
	w.logger.Info("player rejected",
		slog.String("guild_id", string(guildID)),
		slog.String("player_id", string(rec.ID)),
		slog.String("staff_id", staffID),
	)
	return rec, nil
}

// BulkApprove approves up to count waiting records, oldest confirmation first.
// A record that fails is reported and does not stop the rest.
func (w *Workflow) BulkApprove(ctx context.Context, guildID model.GuildID, count int, staffID string) (*BulkResult, error) {
	if count < 1 || count > MaxBulkApprove {
		return nil, model.Validationf("count must be between 1 and %d", MaxBulkApprove)
	}
	if _, err := w.guild(guildID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, model.Validationf("staff id is required")
	}

	waiting, err := w.storage.ListAwaitingApproval(ctx, guildID, count)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{
		TotalFound:      len(waiting),
		ApprovedPlayers: []*model.PlayerRecord{},
		Errors:          []BulkError{},
	}
	for _, rec := range waiting {
		approved, err := w.Approve(ctx, guildID, rec.ID, staffID, "bulk approved")
		if err != nil {
			result.Errors = append(result.Errors, BulkError{
				PlayerID: rec.ID,
				Username: rec.GameUsername,
				Error:    err.Error(),
			})
			continue
		}
		result.Approved++
		result.ApprovedPlayers = append(result.ApprovedPlayers, approved)
	}

	w.logger.Info("bulk approval finished",
		slog.String("guild_id", string(guildID)),
		slog.Int("approved", result.Approved),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// ListPending returns the guild's confirmed records awaiting staff action
func (w *Workflow) ListPending(ctx context.Context, guildID model.GuildID) ([]*model.PlayerRecord, error) {
	if _, err := w.guild(guildID); err != nil {
		return nil, err
	}
	return w.storage.ListAwaitingApproval(ctx, guildID, 0)
}

// Revoke removes a player's whitelist by staff decision. Revoking a player
// who is not whitelisted returns the record unchanged.
func (w *Workflow) Revoke(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, staffID, reason string) (*model.PlayerRecord, error) {
	if _, err := w.guild(guildID); err != nil {
		return nil, err
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, model.Validationf("staff id is required")
	}

	now := w.clock.Now()
	rec, err := w.storage.UpdatePlayer(ctx, guildID, playerID, func(r *model.PlayerRecord) error {
		if !r.IsWhitelisted() {
			return errNoop
		}
		r.RevokedAt = model.TimePtr(now)
		r.RevokedBy = staffID
		r.RevocationReason = model.ReasonManual
		r.RejectionReason = strings.TrimSpace(reason)
		r.Auth = nil
		r.AppendNote(fmt.Sprintf("revoked by %s", staffID))
		r.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoop) {
		return w.storage.GetPlayer(ctx, guildID, playerID)
	}
	if err != nil {
		return nil, err
	}

	w.metrics.Revoked(model.ReasonManual)
	w.logger.Info("player revoked",
		slog.String("guild_id", string(guildID)),
		slog.String("player_id", string(playerID)),
		slog.String("staff_id", staffID),
	)
	return rec, nil
}

// GetPlayer returns one record
func (w *Workflow) GetPlayer(ctx context.Context, guildID model.GuildID, playerID model.PlayerID) (*model.PlayerRecord, error) {
	return w.storage.GetPlayer(ctx, guildID, playerID)
}

func (w *Workflow) guild(id model.GuildID) (*guildconfig.Guild, error) {
	guild, ok := w.guilds.Guild(id)
	if !ok {
		return nil, model.ErrGuildNotFound
	}
	return guild, nil
}

// checkResolvable is the approve/reject precondition
func checkResolvable(r *model.PlayerRecord) error {
	if r.LinkedAt != nil || r.RevokedAt != nil {
		return model.ErrAlreadyResolved
	}
	if r.Auth == nil || r.Auth.ConfirmedAt == nil {
		return model.ErrNotConfirmed
	}
	return nil
}
