// Package membership revokes and restores whitelists as members leave and
// rejoin the chat platform.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/mclink/internal/dependencies/clock"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

// DefaultTimeout bounds one dispatched event
const DefaultTimeout = 10 * time.Second

// EventType names a chat-platform membership change
type EventType string

const (
	EventMemberJoin  EventType = "member_join"
	EventMemberLeave EventType = "member_leave"
)

// Event is a membership change reported by the chat platform
type Event struct {
	Type       EventType     `json:"type"`
	GuildID    model.GuildID `json:"guildId"`
	ChatUserID string        `json:"userId"`
}

// Validate checks the event carries everything a handler needs
func (e Event) Validate() error {
	switch {
	case e.Type != EventMemberJoin && e.Type != EventMemberLeave:
		return model.Validationf("unknown event type %q", e.Type)
	case e.GuildID == "":
		return model.Validationf("guild id is required")
	case e.ChatUserID == "":
		return model.Validationf("user id is required")
	}
	return nil
}

// Outcome is what happened to one record
type Outcome struct {
	PlayerID model.PlayerID `json:"playerId"`
	Username string         `json:"username"`
	Error    string         `json:"error,omitempty"`
}

// Report summarises the handling of one event
type Report struct {
	Enabled  bool      `json:"enabled"`
	Changed  []Outcome `json:"changed"`
	Failed   []Outcome `json:"failed"`
	Examined int       `json:"examined"`
}

// errSkip aborts an update whose record no longer qualifies
var errSkip = errors.New("record no longer qualifies")

// Service applies the guild's leave revocation policy
type Service struct {
	storage storage.Storage
	guilds  *guildconfig.Registry
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewService creates a new membership Service. A zero timeout uses DefaultTimeout.
func NewService(
	storage storage.Storage,
	guilds *guildconfig.Registry,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
	timeout time.Duration,
) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		storage: storage,
		guilds:  guilds,
		clock:   clock,
		metrics: m,
		logger:  logger.With(slog.String("component", "membership")),
		timeout: timeout,
	}
}

// OnMemberLeave revokes every whitelisted record linked to the departed
// account. Each record is handled independently.
func (s *Service) OnMemberLeave(ctx context.Context, guildID model.GuildID, chatUserID string) (*Report, error) {
	guild, ok := s.guilds.Guild(guildID)
	if !ok {
		return nil, model.ErrGuildNotFound
	}
	report := newReport()
	if !guild.LeaveRevocation.Enabled {
		return report, nil
	}
	report.Enabled = true

	recs, err := s.storage.FindPlayersByChatUser(ctx, guildID, chatUserID)
	if err != nil {
		return nil, err
	}
	report.Examined = len(recs)

	for _, rec := range recs {
		if !rec.IsWhitelisted() {
			continue
		}
		now := s.clock.Now()
		_, err := s.storage.UpdatePlayer(ctx, guildID, rec.ID, func(r *model.PlayerRecord) error {
			if !r.IsWhitelisted() {
				return errSkip
			}
			r.RevokedAt = model.TimePtr(now)
			r.RevokedBy = model.SystemActor
			r.RevocationReason = model.ReasonPlatformLeave
			r.UpdatedAt = now
			return nil
		})
		if s.record(report, rec, err) {
			s.metrics.Revoked(model.ReasonPlatformLeave)
		}
	}

	s.logger.Info("member left",
		slog.String("guild_id", string(guildID)),
		slog.String("user_id", chatUserID),
		slog.Int("revoked", len(report.Changed)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// OnMemberJoin restores records revoked because the account left. Staff
// revocations are never restored.
func (s *Service) OnMemberJoin(ctx context.Context, guildID model.GuildID, chatUserID string) (*Report, error) {
	guild, ok := s.guilds.Guild(guildID)
	if !ok {
		return nil, model.ErrGuildNotFound
	}
	report := newReport()
	if !guild.LeaveRevocation.Enabled || !guild.LeaveRevocation.RestoresOnRejoin() {
		return report, nil
	}
	report.Enabled = true

	recs, err := s.storage.FindPlayersByChatUser(ctx, guildID, chatUserID)
	if err != nil {
		return nil, err
	}
	report.Examined = len(recs)

	for _, rec := range recs {
		if !restorable(rec) {
			continue
		}
		now := s.clock.Now()
		_, err := s.storage.UpdatePlayer(ctx, guildID, rec.ID, func(r *model.PlayerRecord) error {
			if !restorable(r) {
				return errSkip
			}
			r.WhitelistedAt = model.TimePtr(now)
			r.RevokedAt = nil
			r.RevokedBy = ""
			r.RevocationReason = ""
			r.AppendNote(fmt.Sprintf("whitelist restored on rejoin at %s", now.Format(time.RFC3339)))
			r.UpdatedAt = now
			return nil
		})
		if s.record(report, rec, err) {
			s.metrics.Restored()
		}
	}

	s.logger.Info("member rejoined",
		slog.String("guild_id", string(guildID)),
		slog.String("user_id", chatUserID),
		slog.Int("restored", len(report.Changed)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// Handle routes an event to its handler
func (s *Service) Handle(ctx context.Context, event Event) (*Report, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.Type == EventMemberJoin {
		return s.OnMemberJoin(ctx, event.GuildID, event.ChatUserID)
	}
	return s.OnMemberLeave(ctx, event.GuildID, event.ChatUserID)
}

// Dispatch handles the event in the background under the service timeout.
// Failures and panics are logged and never reach the caller.
func (s *Service) Dispatch(event Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("membership handler panicked",
					slog.String("type", string(event.Type)),
					slog.String("guild_id", string(event.GuildID)),
					slog.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Handle(ctx, event); err != nil {
			s.logger.Error("membership event failed",
				slog.String("type", string(event.Type)),
				slog.String("guild_id", string(event.GuildID)),
				slog.String("user_id", event.ChatUserID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until every dispatched event has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// record files the update result in the report and reports whether it changed the record
func (s *Service) record(report *Report, rec *model.PlayerRecord, err error) bool {
	outcome := Outcome{PlayerID: rec.ID, Username: rec.GameUsername}
	switch {
	case err == nil:
		report.Changed = append(report.Changed, outcome)
		return true
	case errors.Is(err, errSkip):
		return false
	default:
		outcome.Error = err.Error()
		report.Failed = append(report.Failed, outcome)
		s.logger.Warn("membership update failed",
			slog.String("guild_id", string(rec.GuildID)),
			slog.String("player_id", string(rec.ID)),
			slog.String("error", err.Error()),
		)
		return false
	}
}

// restorable reports whether a leave revocation can be lifted
func restorable(rec *model.PlayerRecord) bool {
	return rec.IsLeaveRevoked() && rec.WhitelistedAt != nil
}

func newReport() *Report {
	return &Report{Changed: []Outcome{}, Failed: []Outcome{}}
}
