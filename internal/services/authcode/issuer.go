// Package authcode issues and confirms the short-lived codes that prove a chat
// account controls a game account.
package authcode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/dependencies/random"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

const (
	// CodeLength is the number of digits in an auth code
	CodeLength = 6
	// MaxIssueAttempts bounds retries on code collisions
	MaxIssueAttempts = 10
)

// Issuer manages the auth code handshake on PlayerRecords
type Issuer struct {
	storage storage.Storage
	guilds  *guildconfig.Registry
	clock   clock.Clock
	random  random.Random
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIssuer creates a new Issuer
func NewIssuer(
	storage storage.Storage,
	guilds *guildconfig.Registry,
	clock clock.Clock,
	random random.Random,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Issuer {
	return &Issuer{
		storage: storage,
		guilds:  guilds,
		clock:   clock,
		random:  random,
		metrics: m,
		logger:  logger.With(slog.String("component", "authcode")),
	}
}

// Issue generates a fresh code for the game account in the guild, creating the
// record if none exists. Collisions with another record's code are retried.
func (i *Issuer) Issue(ctx context.Context, guildID model.GuildID, username, gameUUID string) (*model.PlayerRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, model.Validationf("username is required")
	}
	if _, ok := i.guilds.Guild(guildID); !ok {
		return nil, model.ErrGuildNotFound
	}

	for attempt := 0; attempt < MaxIssueAttempts; attempt++ {
		code := i.random.String(CodeLength, random.Digits)
		rec, err := i.tryIssue(ctx, guildID, username, gameUUID, code)
		if errors.Is(err, model.ErrDuplicateAuthCode) {
			i.logger.Debug("auth code collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		i.metrics.CodeIssued()
		i.logger.Info("auth code issued",
			slog.String("guild_id", string(guildID)),
			slog.String("player_id", string(rec.ID)),
			slog.String("username", rec.GameUsername),
		)
		return rec, nil
	}

	i.logger.Error("auth code space saturated", slog.String("guild_id", string(guildID)))
	return nil, model.ErrCodeSaturated
}

func (i *Issuer) tryIssue(ctx context.Context, guildID model.GuildID, username, gameUUID, code string) (*model.PlayerRecord, error) {
	now := i.clock.Now()
	auth := &model.AuthState{
		Code:        code,
		ExpiresAt:   now.Add(i.guilds.AuthCodeTTL()),
		CodeShownAt: model.TimePtr(now),
	}

	existing, err := i.findRecord(ctx, guildID, username, gameUUID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec := &model.PlayerRecord{
			ID:              model.PlayerID(uuid.NewString()),
			GuildID:         guildID,
			GameUUID:        gameUUID,
			GameUsername:    username,
			Auth:            auth,
			Source:          model.SourceLinked,
			RoleSyncEnabled: true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := i.storage.CreatePlayer(ctx, rec); err != nil {
			return nil, err
		}
		storage.Normalize(rec)
		return rec, nil
	}

	return i.storage.UpdatePlayer(ctx, guildID, existing.ID, func(rec *model.PlayerRecord) error {
		if err := canIssue(rec); err != nil {
			return err
		}
		if rec.GameUUID == "" && gameUUID != "" {
			rec.GameUUID = gameUUID
		}
		rec.Auth = auth
		rec.UpdatedAt = now
		return nil
	})
}

// findRecord looks up by uuid first, then username
func (i *Issuer) findRecord(ctx context.Context, guildID model.GuildID, username, gameUUID string) (*model.PlayerRecord, error) {
	if gameUUID != "" {
		rec, err := i.storage.GetPlayerByUUID(ctx, guildID, gameUUID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, model.ErrPlayerNotFound) {
			return nil, err
		}
	}
	rec, err := i.storage.GetPlayerByUsername(ctx, guildID, username)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil, nil
	}
	return rec, err
}

// canIssue refuses records that are past the handshake
func canIssue(rec *model.PlayerRecord) error {
	switch {
	case rec.RevokedAt != nil:
		return model.ErrPlayerRevoked
	case rec.IsWhitelisted() && rec.IsLinked():
		return model.ErrAlreadyLinked
	case rec.AwaitingApproval():
		return model.ErrAwaitingReview
	}
	return nil
}

// ConfirmRequest is a chat account claiming a code
type ConfirmRequest struct {
	Code            string
	ChatUserID      string
	ChatUsername    string
	ChatDisplayName string
}

// Confirm binds the chat account to the record holding the code. A record that
// is already whitelisted (a legacy account) is linked immediately; otherwise it
// waits for staff approval.
func (i *Issuer) Confirm(ctx context.Context, req ConfirmRequest) (*model.PlayerRecord, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" || strings.TrimSpace(req.ChatUserID) == "" {
		return nil, model.Validationf("code and chat user id are required")
	}

	rec, err := i.storage.GetPlayerByAuthCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := i.clock.Now()
	updated, err := i.storage.UpdatePlayer(ctx, rec.GuildID, rec.ID, func(rec *model.PlayerRecord) error {
		if rec.Auth == nil || rec.Auth.Code != code {
			return model.ErrAuthCodeNotFound
		}
		if rec.Auth.ConfirmedAt != nil {
			return model.ErrCodeAlreadyConfirmed
		}
		if rec.Auth.Expired(now) {
			return model.ErrCodeExpired
		}
		if rec.Auth.CodeShownAt == nil {
			return model.ErrCodeNotShown
		}

		rec.ChatUserID = req.ChatUserID
		rec.ChatUsername = req.ChatUsername
		rec.ChatDisplayName = req.ChatDisplayName
		rec.UpdatedAt = now

		if rec.IsWhitelisted() {
			rec.LinkedAt = model.TimePtr(now)
			rec.Auth = nil
			rec.AppendNote("linked existing whitelist entry to chat account " + req.ChatUserID)
			return nil
		}
		rec.Auth.ConfirmedAt = model.TimePtr(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.metrics.CodeConfirmed()
	i.logger.Info("auth code confirmed",
		slog.String("guild_id", string(updated.GuildID)),
		slog.String("player_id", string(updated.ID)),
		slog.String("chat_user_id", req.ChatUserID),
		slog.Bool("linked", updated.LinkedAt != nil),
	)
	return updated, nil
}

// LinkCodeResult answers a legacy account asking to link after the fact
type LinkCodeResult struct {
	Success   bool
	AuthCode  string
	ExpiresAt time.Time
	GuildID   model.GuildID
	PlayerID  model.PlayerID
	Reason    string
}

// RequestLinkCode issues a code for a whitelisted game account that has no chat
// link yet. An existing active code is returned rather than replaced.
func (i *Issuer) RequestLinkCode(ctx context.Context, username, gameUUID, serverIP string) (*LinkCodeResult, error) {
	username = strings.TrimSpace(username)
	gameUUID = strings.TrimSpace(gameUUID)
	if username == "" || gameUUID == "" {
		return nil, model.Validationf("username and uuid are required")
	}

	candidates, err := i.linkCandidates(ctx, username, gameUUID, serverIP)
	if err != nil {
		return nil, err
	}

	var target *model.PlayerRecord
	linked := false
	for _, rec := range candidates {
		if rec.IsWhitelisted() && !rec.IsLinked() {
			target = rec
			break
		}
		if rec.IsLinked() {
			linked = true
		}
	}
	if target == nil {
		reason := "not whitelisted"
		if linked {
			reason = "already linked"
		}
		return &LinkCodeResult{Success: false, Reason: reason}, nil
	}

	now := i.clock.Now()
	if code, ok := target.ActiveCode(now); ok {
		return &LinkCodeResult{
			Success:   true,
			AuthCode:  code,
			ExpiresAt: target.Auth.ExpiresAt,
			GuildID:   target.GuildID,
			PlayerID:  target.ID,
		}, nil
	}

	rec, err := i.Issue(ctx, target.GuildID, target.GameUsername, gameUUID)
	if err != nil {
		return nil, err
	}
	return &LinkCodeResult{
		Success:   true,
		AuthCode:  rec.Auth.Code,
		ExpiresAt: rec.Auth.ExpiresAt,
		GuildID:   rec.GuildID,
		PlayerID:  rec.ID,
	}, nil
}

func (i *Issuer) linkCandidates(ctx context.Context, username, gameUUID, serverIP string) ([]*model.PlayerRecord, error) {
	if guild, ok := i.guilds.ByServerAddress(serverIP); ok {
		rec, err := i.findRecord(ctx, guild.ID, username, gameUUID)
		if err != nil || rec == nil {
			return nil, err
		}
		return []*model.PlayerRecord{rec}, nil
	}

	recs, err := i.storage.FindPlayersByUUID(ctx, gameUUID)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return recs, nil
	}
	return i.storage.FindPlayersByUsername(ctx, username)
}
