package rolesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/mclink/internal/chat"
	"github.com/mcoot/mclink/internal/dependencies/mocks"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
	"github.com/mcoot/mclink/internal/storage/memory"
	"github.com/mcoot/mclink/internal/testutil"
)

type EngineSuite struct {
	suite.Suite
	storage *memory.Storage
	chat    *chat.StaticClient
	clock   *mocks.MockClock
	engine  *Engine
	ctx     context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.storage = memory.New()
	s.chat = chat.NewStaticClient()
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	guilds := guildconfig.NewRegistry(&guildconfig.Config{
		Guilds: []guildconfig.Guild{
			{
				ID: "g1",
				RoleSync: guildconfig.RoleSync{
					Enabled: true,
					Mappings: []model.RoleMapping{
						{RoleID: "vip", Group: "vip-mc", Enabled: true},
						{RoleID: "mod", Group: "staff", Enabled: true},
					},
				},
			},
			{ID: "off"},
		},
	})
	s.engine = NewEngine(s.storage, s.chat, guilds, s.clock, nil, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *EngineSuite) linkedPlayer(guild model.GuildID, id model.PlayerID) {
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID:              id,
		GuildID:         guild,
		GameUsername:    string(id),
		ChatUserID:      "u-" + string(id),
		WhitelistedAt:   model.TimePtr(s.clock.Now()),
		LinkedAt:        model.TimePtr(s.clock.Now()),
		RoleSyncEnabled: true,
		CreatedAt:       s.clock.Now(),
	}))
}

func (s *EngineSuite) TestCalculateDiffsAgainstManagedGroups() {
	s.linkedPlayer("g1", "p1")
	s.chat.SetMember("g1", chat.Member{UserID: "u-p1", Roles: []string{"vip"}})

	// "builder" is not managed and must never be removed
	res, err := s.engine.Calculate(s.ctx, "g1", "p1", []string{"builder", "staff"}, model.TriggerConnection)
	s.Require().NoError(err)

	s.True(res.Enabled)
	s.Equal([]string{"vip-mc"}, res.TargetGroups)
	s.Equal([]string{"vip-mc"}, res.Changes.ToAdd)
	s.Equal([]string{"staff"}, res.Changes.ToRemove)
	s.Equal([]string{"vip-mc", "staff"}, res.ManagedGroups)
	s.True(res.Logged)

	d := res.Directive()
	s.Equal([]string{"vip-mc"}, d.GroupsToAdd)
	s.Equal([]string{"staff"}, d.GroupsToRemove)

	logs, err := s.engine.History(s.ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(model.TriggerConnection, logs[0].Trigger)
	s.Equal([]string{"staff"}, logs[0].GroupsBefore)
	s.Equal([]string{"vip-mc"}, logs[0].GroupsAfter)
	s.True(logs[0].Success)

	rec, err := s.storage.GetPlayer(s.ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal([]string{"vip"}, rec.LastSyncedRoles)
	s.Equal([]string{"vip-mc"}, rec.LastSyncedGroups)
	s.NotNil(rec.LastRoleSyncAt)
}

func (s *EngineSuite) TestNoLogWhenNothingChanges() {
	s.linkedPlayer("g1", "p1")
	s.chat.SetMember("g1", chat.Member{UserID: "u-p1", Roles: []string{"vip"}})

	res, err := s.engine.Calculate(s.ctx, "g1", "p1", []string{"vip-mc"}, model.TriggerManual)
	s.Require().NoError(err)
	s.True(res.Changes.Empty())
	s.False(res.Logged)

	logs, err := s.engine.History(s.ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Empty(logs)

	// Last-known state is still persisted
	rec, err := s.storage.GetPlayer(s.ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal([]string{"vip-mc"}, rec.LastSyncedGroups)
}

func (s *EngineSuite) TestRolesBeforeComesFromPreviousSync() {
	s.linkedPlayer("g1", "p1")
	s.chat.SetMember("g1", chat.Member{UserID: "u-p1", Roles: []string{"vip"}})
	_, err := s.engine.Calculate(s.ctx, "g1", "p1", nil, model.TriggerManual)
	s.Require().NoError(err)

	s.chat.SetMember("g1", chat.Member{UserID: "u-p1", Roles: []string{"mod"}})
	_, err = s.engine.Calculate(s.ctx, "g1", "p1", []string{"vip-mc"}, model.TriggerManual)
	s.Require().NoError(err)

	logs, err := s.engine.History(s.ctx, "g1", "p1", 1)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal([]string{"vip"}, logs[0].RolesBefore)
	s.Equal([]string{"mod"}, logs[0].RolesAfter)
	s.Equal([]string{"staff"}, logs[0].GroupsAdded)
	s.Equal([]string{"vip-mc"}, logs[0].GroupsRemoved)
}

func (s *EngineSuite) TestDisabledForGuild() {
	s.linkedPlayer("off", "p1")
	res, err := s.engine.Calculate(s.ctx, "off", "p1", nil, model.TriggerManual)
	s.Require().NoError(err)
	s.False(res.Enabled)
	s.Nil(res.Changes)
}

func (s *EngineSuite) TestDisabledForPlayer() {
	s.linkedPlayer("g1", "p1")
	_, err := s.storage.UpdatePlayer(s.ctx, "g1", "p1", func(r *model.PlayerRecord) error {
		r.RoleSyncEnabled = false
		return nil
	})
	s.Require().NoError(err)

	res, err := s.engine.Calculate(s.ctx, "g1", "p1", nil, model.TriggerManual)
	s.Require().NoError(err)
	s.False(res.Enabled)
}

func (s *EngineSuite) TestDisabledWithoutChatLink() {
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "p1", GuildID: "g1", GameUsername: "legacy", RoleSyncEnabled: true,
		WhitelistedAt: model.TimePtr(s.clock.Now()),
	}))
	res, err := s.engine.Calculate(s.ctx, "g1", "p1", nil, model.TriggerManual)
	s.Require().NoError(err)
	s.False(res.Enabled)
}

func (s *EngineSuite) TestMemberGoneRemovesManagedGroups() {
	s.linkedPlayer("g1", "p1")
	res, err := s.engine.Calculate(s.ctx, "g1", "p1", []string{"vip-mc"}, model.TriggerConnection)
	s.Require().NoError(err)
	s.Empty(res.TargetGroups)
	s.Equal([]string{"vip-mc"}, res.Changes.ToRemove)
}

func (s *EngineSuite) TestChatFailureIsLogged() {
	s.linkedPlayer("g1", "p1")
	s.chat.FailWith(model.Upstream("discord", errors.New("timeout")))

	_, err := s.engine.Calculate(s.ctx, "g1", "p1", []string{"vip-mc", "builder"}, model.TriggerManual)
	s.ErrorIs(err, model.ErrUpstream)

	logs, err := s.engine.History(s.ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.False(logs[0].Success)
	s.Contains(logs[0].Error, "timeout")
	s.Equal(model.TriggerManual, logs[0].Trigger)
	s.Equal([]string{"vip-mc"}, logs[0].GroupsBefore)
	s.Equal([]string{"vip-mc"}, logs[0].GroupsAfter)
	s.Empty(logs[0].GroupsAdded)
	s.Empty(logs[0].GroupsRemoved)
}

type failingUpdates struct {
	*memory.Storage
}

func (f failingUpdates) UpdatePlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID, mutate storage.MutateFunc) (*model.PlayerRecord, error) {
	return nil, model.Upstream("redis", errors.New("connection reset"))
}

func (s *EngineSuite) TestPersistFailureIsLogged() {
	s.linkedPlayer("g1", "p1")
	s.chat.SetMember("g1", chat.Member{UserID: "u-p1", Roles: []string{"vip"}})
	engine := NewEngine(failingUpdates{s.storage}, s.chat, s.engine.guilds, s.clock, nil, testutil.NopLogger())

	_, err := engine.Calculate(s.ctx, "g1", "p1", nil, model.TriggerConnection)
	s.ErrorIs(err, model.ErrUpstream)

	logs, err := s.storage.ListRoleSyncLogs(s.ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.False(logs[0].Success)
	s.Contains(logs[0].Error, "connection reset")
}

func (s *EngineSuite) TestUnknownGuildAndPlayer() {
	_, err := s.engine.Calculate(s.ctx, "nope", "p1", nil, model.TriggerManual)
	s.ErrorIs(err, model.ErrGuildNotFound)

	_, err = s.engine.Calculate(s.ctx, "g1", "missing", nil, model.TriggerManual)
	s.ErrorIs(err, model.ErrPlayerNotFound)

	_, err = s.engine.History(s.ctx, "g1", "missing", 0)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}
