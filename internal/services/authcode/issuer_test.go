package authcode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/mclink/internal/dependencies/mocks"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage/memory"
	"github.com/mcoot/mclink/internal/testutil"
)

type IssuerSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	issuer  *Issuer
	ctx     context.Context
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	guilds := guildconfig.NewRegistry(&guildconfig.Config{
		AuthCodeTTL: 10 * time.Minute,
		Guilds: []guildconfig.Guild{
			{ID: "g1", ServerAddresses: []string{"play.example.com"}},
			{ID: "g2"},
		},
	})
	s.issuer = NewIssuer(s.storage, guilds, s.clock, s.random, nil, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *IssuerSuite) issue(username, gameUUID, code string) *model.PlayerRecord {
	s.random.QueueString(code)
	rec, err := s.issuer.Issue(s.ctx, "g1", username, gameUUID)
	s.Require().NoError(err)
	return rec
}

// Issue tests

func (s *IssuerSuite) TestIssueCreatesRecord() {
	rec := s.issue("Alice", "U1", "482913")

	s.Equal("482913", rec.Auth.Code)
	s.Equal("alice", rec.GameUsername)
	s.Equal(model.SourceLinked, rec.Source)
	s.True(rec.RoleSyncEnabled)
	s.Equal(s.clock.Now().Add(10*time.Minute), rec.Auth.ExpiresAt)
	s.Require().NotNil(rec.Auth.CodeShownAt)
	s.Nil(rec.Auth.ConfirmedAt)

	stored, err := s.storage.GetPlayerByAuthCode(s.ctx, "482913")
	s.Require().NoError(err)
	s.Equal(rec.ID, stored.ID)
	s.Equal("u1", stored.GameUUID)
}

func (s *IssuerSuite) TestIssueReusesExistingRecord() {
	first := s.issue("alice", "U1", "111111")
	s.clock.Advance(time.Minute)
	second := s.issue("alice", "U1", "222222")

	s.Equal(first.ID, second.ID)
	s.Equal("222222", second.Auth.Code)

	_, err := s.storage.GetPlayerByAuthCode(s.ctx, "111111")
	s.ErrorIs(err, model.ErrAuthCodeNotFound)
}

func (s *IssuerSuite) TestIssueFillsMissingUUID() {
	first := s.issue("alice", "", "111111")
	second := s.issue("alice", "U1", "222222")
	s.Equal(first.ID, second.ID)
	s.Equal("u1", second.GameUUID)
}

func (s *IssuerSuite) TestIssueRetriesCollisions() {
	s.issue("bob", "U2", "111111")

	s.random.QueueString("111111", "111111", "333333")
	rec, err := s.issuer.Issue(s.ctx, "g1", "alice", "U1")
	s.Require().NoError(err)
	s.Equal("333333", rec.Auth.Code)
	s.Equal(0, s.random.Pending())
}

func (s *IssuerSuite) TestIssueCollisionAcrossGuilds() {
	s.issue("bob", "U2", "111111")

	s.random.QueueString("111111", "444444")
	rec, err := s.issuer.Issue(s.ctx, "g2", "alice", "U1")
	s.Require().NoError(err)
	s.Equal("444444", rec.Auth.Code)
}

func (s *IssuerSuite) TestIssueSaturates() {
	s.issue("bob", "U2", "111111")

	s.random.Fallback = "111111"
	_, err := s.issuer.Issue(s.ctx, "g1", "alice", "U1")
	s.ErrorIs(err, model.ErrCodeSaturated)
	s.ErrorIs(err, model.ErrUpstream)
}

func (s *IssuerSuite) TestIssueValidation() {
	_, err := s.issuer.Issue(s.ctx, "g1", "  ", "U1")
	s.ErrorIs(err, model.ErrValidation)

	_, err = s.issuer.Issue(s.ctx, "unknown", "alice", "U1")
	s.ErrorIs(err, model.ErrGuildNotFound)
}

func (s *IssuerSuite) TestIssueRefusesResolvedRecords() {
	now := s.clock.Now()
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "linked", GuildID: "g1", GameUsername: "linked", ChatUserID: "u1",
		WhitelistedAt: &now, LinkedAt: &now,
	}))
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "revoked", GuildID: "g1", GameUsername: "revoked",
		RevokedAt: &now, RevocationReason: model.ReasonStaffAction,
	}))

	s.random.QueueString("100000", "200000")
	_, err := s.issuer.Issue(s.ctx, "g1", "linked", "")
	s.ErrorIs(err, model.ErrAlreadyLinked)
	_, err = s.issuer.Issue(s.ctx, "g1", "revoked", "")
	s.ErrorIs(err, model.ErrPlayerRevoked)
}

func (s *IssuerSuite) TestIssueRefusesAwaitingApproval() {
	rec := s.issue("alice", "U1", "111111")
	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: rec.Auth.Code, ChatUserID: "u1"})
	s.Require().NoError(err)

	s.random.QueueString("222222")
	_, err = s.issuer.Issue(s.ctx, "g1", "alice", "U1")
	s.ErrorIs(err, model.ErrAwaitingReview)
	s.ErrorIs(err, model.ErrStateConflict)
}

func (s *IssuerSuite) TestActiveCodesAreUnique() {
	codes := map[string]bool{}
	s.random.QueueString("100001", "100001", "100002", "100002", "100003")
	for _, name := range []string{"a", "b", "c"} {
		rec, err := s.issuer.Issue(s.ctx, "g1", name, "")
		s.Require().NoError(err)
		s.False(codes[rec.Auth.Code], "duplicate active code %s", rec.Auth.Code)
		codes[rec.Auth.Code] = true
	}
}

// Confirm tests

func (s *IssuerSuite) TestConfirm() {
	rec := s.issue("alice", "U1", "482913")
	s.clock.Advance(time.Minute)

	confirmed, err := s.issuer.Confirm(s.ctx, ConfirmRequest{
		Code:            "482913",
		ChatUserID:      "chat-1",
		ChatUsername:    "alice#0001",
		ChatDisplayName: "Alice",
	})
	s.Require().NoError(err)

	s.Equal(rec.ID, confirmed.ID)
	s.Equal("chat-1", confirmed.ChatUserID)
	s.Equal("Alice", confirmed.ChatDisplayName)
	s.Require().NotNil(confirmed.Auth.ConfirmedAt)
	s.True(confirmed.AwaitingApproval())
	s.Nil(confirmed.WhitelistedAt)
}

func (s *IssuerSuite) TestConfirmUnknownCode() {
	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "000000", ChatUserID: "u1"})
	s.ErrorIs(err, model.ErrAuthCodeNotFound)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *IssuerSuite) TestConfirmExpired() {
	s.issue("alice", "U1", "482913")
	s.clock.Advance(10 * time.Minute)

	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "482913", ChatUserID: "u1"})
	s.ErrorIs(err, model.ErrCodeExpired)
	s.ErrorIs(err, model.ErrStateConflict)
}

func (s *IssuerSuite) TestConfirmTwice() {
	s.issue("alice", "U1", "482913")
	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "482913", ChatUserID: "u1"})
	s.Require().NoError(err)

	_, err = s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "482913", ChatUserID: "u2"})
	s.ErrorIs(err, model.ErrCodeAlreadyConfirmed)
}

func (s *IssuerSuite) TestConfirmRequiresShownCode() {
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "p1", GuildID: "g1", GameUsername: "alice",
		Auth: &model.AuthState{Code: "555555", ExpiresAt: s.clock.Now().Add(time.Minute)},
	}))
	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "555555", ChatUserID: "u1"})
	s.ErrorIs(err, model.ErrCodeNotShown)
}

func (s *IssuerSuite) TestConfirmValidation() {
	_, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "123456"})
	s.ErrorIs(err, model.ErrValidation)
}

func (s *IssuerSuite) TestConfirmLegacyWhitelistLinksImmediately() {
	now := s.clock.Now()
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "legacy", GuildID: "g1", GameUsername: "alice", GameUUID: "u1",
		WhitelistedAt: &now, Source: model.SourceImported,
	}))
	s.random.QueueString("777777")
	_, err := s.issuer.Issue(s.ctx, "g1", "alice", "U1")
	s.Require().NoError(err)

	rec, err := s.issuer.Confirm(s.ctx, ConfirmRequest{Code: "777777", ChatUserID: "chat-1"})
	s.Require().NoError(err)
	s.NotNil(rec.LinkedAt)
	s.Nil(rec.Auth)
	s.True(rec.IsWhitelisted())
	s.Contains(rec.Notes, "chat-1")
}

// RequestLinkCode tests

func (s *IssuerSuite) legacy(guild model.GuildID, id model.PlayerID, username, gameUUID string) {
	now := s.clock.Now()
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: id, GuildID: guild, GameUsername: username, GameUUID: gameUUID,
		WhitelistedAt: &now, Source: model.SourceImported, CreatedAt: now,
	}))
}

func (s *IssuerSuite) TestRequestLinkCode() {
	s.legacy("g1", "legacy", "alice", "u1")
	s.random.QueueString("246810")

	res, err := s.issuer.RequestLinkCode(s.ctx, "Alice", "U1", "")
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("246810", res.AuthCode)
	s.Equal(model.GuildID("g1"), res.GuildID)
	s.Equal(model.PlayerID("legacy"), res.PlayerID)

	// Asking again returns the same active code
	again, err := s.issuer.RequestLinkCode(s.ctx, "alice", "u1", "")
	s.Require().NoError(err)
	s.Equal("246810", again.AuthCode)
}

func (s *IssuerSuite) TestRequestLinkCodeTextOnlyImport() {
	s.legacy("g1", "legacy", "alice", "")
	s.random.QueueString("135790")

	res, err := s.issuer.RequestLinkCode(s.ctx, "alice", "U1", "")
	s.Require().NoError(err)
	s.True(res.Success)

	rec, err := s.storage.GetPlayer(s.ctx, "g1", "legacy")
	s.Require().NoError(err)
	s.Equal("u1", rec.GameUUID)
}

func (s *IssuerSuite) TestRequestLinkCodeUsesServerAddress() {
	s.legacy("g1", "in-g1", "alice", "u1")
	s.legacy("g2", "in-g2", "alice", "u1")
	s.random.QueueString("112233")

	res, err := s.issuer.RequestLinkCode(s.ctx, "alice", "u1", "play.example.com")
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal(model.GuildID("g1"), res.GuildID)
}

func (s *IssuerSuite) TestRequestLinkCodeRefusals() {
	res, err := s.issuer.RequestLinkCode(s.ctx, "nobody", "u9", "")
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("not whitelisted", res.Reason)

	now := s.clock.Now()
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID: "linked", GuildID: "g1", GameUsername: "bob", GameUUID: "u2",
		ChatUserID: "c2", WhitelistedAt: &now, LinkedAt: &now,
	}))
	res, err = s.issuer.RequestLinkCode(s.ctx, "bob", "u2", "")
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("already linked", res.Reason)

	_, err = s.issuer.RequestLinkCode(s.ctx, "bob", "", "")
	s.ErrorIs(err, model.ErrValidation)
}
