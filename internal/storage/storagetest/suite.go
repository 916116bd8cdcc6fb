// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

// Suite runs the storage contract against the backend returned by NewStorage.
// Embed it in a backend's own suite and set NewStorage in SetupTest.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	Store storage.Storage
	Ctx   context.Context
	Now   time.Time
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Store = s.NewStorage()
	s.Ctx = context.Background()
	s.Now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) record(guild model.GuildID, id model.PlayerID, username string) *model.PlayerRecord {
	return &model.PlayerRecord{
		ID:           id,
		GuildID:      guild,
		GameUsername: username,
		Source:       model.SourceLinked,
		CreatedAt:    s.Now,
		UpdatedAt:    s.Now,
	}
}

func (s *Suite) confirmed(guild model.GuildID, id model.PlayerID, username, code string, at time.Time) *model.PlayerRecord {
	rec := s.record(guild, id, username)
	rec.Auth = &model.AuthState{
		Code:        code,
		ExpiresAt:   at.Add(5 * time.Minute),
		CodeShownAt: model.TimePtr(at.Add(-time.Minute)),
		ConfirmedAt: model.TimePtr(at),
	}
	return rec
}

// Create and get

func (s *Suite) TestCreateAndGetPlayer() {
	rec := s.record("g1", "p1", "  Steve ")
	rec.GameUUID = "ABC-123"
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, rec))

	got, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal("steve", got.GameUsername)
	s.Equal("abc-123", got.GameUUID)
	s.Equal(model.SourceLinked, got.Source)
	s.True(got.CreatedAt.Equal(s.Now))
}

func (s *Suite) TestCreateDoesNotAliasCaller() {
	rec := s.record("g1", "p1", "steve")
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, rec))
	rec.GameUsername = "changed"

	got, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal("steve", got.GameUsername)
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.Store.GetPlayer(s.Ctx, "g1", "missing")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *Suite) TestCreateRejectsInvalidRecord() {
	err := s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", ""))
	s.ErrorIs(err, model.ErrValidation)

	err = s.Store.CreatePlayer(s.Ctx, s.record("", "p1", "steve"))
	s.ErrorIs(err, model.ErrValidation)
}

func (s *Suite) TestCreateRejectsConfirmationWithoutShownCode() {
	rec := s.confirmed("g1", "p1", "steve", "123456", s.Now)
	rec.Auth.CodeShownAt = nil
	s.ErrorIs(s.Store.CreatePlayer(s.Ctx, rec), model.ErrCodeNotShown)
}

func (s *Suite) TestCreateDuplicateID() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))
	err := s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "alex"))
	s.ErrorIs(err, model.ErrValidation)
}

// Uniqueness

func (s *Suite) TestDuplicateUsernameInGuild() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "Steve")))
	err := s.Store.CreatePlayer(s.Ctx, s.record("g1", "p2", "steve"))
	s.ErrorIs(err, model.ErrDuplicateUsername)
	s.ErrorIs(err, model.ErrDuplicate)
}

func (s *Suite) TestSameUsernameInDifferentGuilds() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g2", "p2", "steve")))

	recs, err := s.Store.FindPlayersByUsername(s.Ctx, "STEVE")
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(model.GuildID("g1"), recs[0].GuildID)
	s.Equal(model.GuildID("g2"), recs[1].GuildID)
}

func (s *Suite) TestDuplicateUUIDInGuild() {
	a := s.record("g1", "p1", "steve")
	a.GameUUID = "uuid-1"
	b := s.record("g1", "p2", "alex")
	b.GameUUID = "UUID-1"
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, a))
	s.ErrorIs(s.Store.CreatePlayer(s.Ctx, b), model.ErrDuplicateUUID)
}

func (s *Suite) TestDuplicateAuthCodeAcrossGuilds() {
	a := s.record("g1", "p1", "steve")
	a.Auth = &model.AuthState{Code: "111111", ExpiresAt: s.Now.Add(time.Minute)}
	b := s.record("g2", "p2", "alex")
	b.Auth = &model.AuthState{Code: "111111", ExpiresAt: s.Now.Add(time.Minute)}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, a))
	s.ErrorIs(s.Store.CreatePlayer(s.Ctx, b), model.ErrDuplicateAuthCode)
}

// Update

func (s *Suite) TestUpdatePlayer() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))

	updated, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.WhitelistedAt = model.TimePtr(s.Now)
		rec.ApprovedBy = "mod"
		return nil
	})
	s.Require().NoError(err)
	s.True(updated.IsWhitelisted())

	got, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal("mod", got.ApprovedBy)
	s.True(got.IsWhitelisted())
}

func (s *Suite) TestUpdateMissingPlayer() {
	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "missing", func(rec *model.PlayerRecord) error { return nil })
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestUpdateAbortedByMutate() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))

	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.ApprovedBy = "mod"
		return model.ErrAlreadyResolved
	})
	s.ErrorIs(err, model.ErrStateConflict)

	got, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Empty(got.ApprovedBy)
}

func (s *Suite) TestUpdateKeepsIdentity() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))

	updated, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.ID = "other"
		rec.GuildID = "g2"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), updated.ID)
	s.Equal(model.GuildID("g1"), updated.GuildID)
}

func (s *Suite) TestUpdateReindexesAuthCode() {
	rec := s.record("g1", "p1", "steve")
	rec.Auth = &model.AuthState{Code: "111111", ExpiresAt: s.Now.Add(time.Minute)}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, rec))

	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.Auth.Code = "222222"
		return nil
	})
	s.Require().NoError(err)

	_, err = s.Store.GetPlayerByAuthCode(s.Ctx, "111111")
	s.ErrorIs(err, model.ErrAuthCodeNotFound)

	got, err := s.Store.GetPlayerByAuthCode(s.Ctx, "222222")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)

	_, err = s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.Auth = nil
		return nil
	})
	s.Require().NoError(err)
	_, err = s.Store.GetPlayerByAuthCode(s.Ctx, "222222")
	s.ErrorIs(err, model.ErrAuthCodeNotFound)
}

func (s *Suite) TestUpdateDuplicateLeavesRecordUnchanged() {
	a := s.record("g1", "p1", "steve")
	a.Auth = &model.AuthState{Code: "111111", ExpiresAt: s.Now.Add(time.Minute)}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, a))
	b := s.record("g1", "p2", "alex")
	b.Auth = &model.AuthState{Code: "222222", ExpiresAt: s.Now.Add(time.Minute)}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, b))

	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p2", func(rec *model.PlayerRecord) error {
		rec.Auth.Code = "111111"
		return nil
	})
	s.ErrorIs(err, model.ErrDuplicateAuthCode)

	got, err := s.Store.GetPlayerByAuthCode(s.Ctx, "222222")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), got.ID)

	got, err = s.Store.GetPlayerByAuthCode(s.Ctx, "111111")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)
}

func (s *Suite) TestUpdateSetsUUID() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))
	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.GameUUID = "UUID-9"
		return nil
	})
	s.Require().NoError(err)

	got, err := s.Store.GetPlayerByUUID(s.Ctx, "g1", "uuid-9")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)

	recs, err := s.Store.FindPlayersByUUID(s.Ctx, "uuid-9")
	s.Require().NoError(err)
	s.Len(recs, 1)
}

func (s *Suite) TestConcurrentUpdatesDoNotLoseWrites() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "steve")))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
				rec.AppendNote("x")
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.Require().NoError(err)
	s.Equal("x\nx", got.Notes)
}

func (s *Suite) TestConcurrentApprovalSingleWinner() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g1", "p1", "steve", "111111", s.Now)))

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
				if rec.WhitelistedAt != nil {
					return model.ErrAlreadyResolved
				}
				rec.WhitelistedAt = model.TimePtr(s.Now)
				return nil
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, model.ErrStateConflict)
		}
	}
	s.Equal(1, succeeded)
}

// Lookups

func (s *Suite) TestGetPlayerByUsernameIsCaseInsensitive() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.record("g1", "p1", "Steve")))
	got, err := s.Store.GetPlayerByUsername(s.Ctx, "g1", "STEVE")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)

	_, err = s.Store.GetPlayerByUsername(s.Ctx, "g2", "steve")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestGetPlayerByUUIDEmpty() {
	_, err := s.Store.GetPlayerByUUID(s.Ctx, "g1", "")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestGetPlayerByAuthCodeUnknown() {
	_, err := s.Store.GetPlayerByAuthCode(s.Ctx, "999999")
	s.ErrorIs(err, model.ErrAuthCodeNotFound)
}

func (s *Suite) TestFindPlayersByChatUser() {
	a := s.record("g1", "p1", "steve")
	a.ChatUserID = "u1"
	b := s.record("g1", "p2", "alex")
	b.ChatUserID = "u1"
	b.CreatedAt = s.Now.Add(time.Second)
	c := s.record("g2", "p3", "steve")
	c.ChatUserID = "u1"
	for _, rec := range []*model.PlayerRecord{a, b, c} {
		s.Require().NoError(s.Store.CreatePlayer(s.Ctx, rec))
	}

	recs, err := s.Store.FindPlayersByChatUser(s.Ctx, "g1", "u1")
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(model.PlayerID("p1"), recs[0].ID)
	s.Equal(model.PlayerID("p2"), recs[1].ID)

	recs, err = s.Store.FindPlayersByChatUser(s.Ctx, "g1", "")
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *Suite) TestListAwaitingApprovalOrdering() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g1", "late", "a", "100001", s.Now.Add(2*time.Minute))))
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g1", "early", "b", "100002", s.Now)))
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g1", "mid", "c", "100003", s.Now.Add(time.Minute))))
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g2", "other", "d", "100004", s.Now)))
	// Not yet confirmed
	pending := s.record("g1", "unconfirmed", "e")
	pending.Auth = &model.AuthState{Code: "100005", ExpiresAt: s.Now.Add(time.Minute)}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, pending))

	recs, err := s.Store.ListAwaitingApproval(s.Ctx, "g1", 0)
	s.Require().NoError(err)
	s.Require().Len(recs, 3)
	s.Equal(model.PlayerID("early"), recs[0].ID)
	s.Equal(model.PlayerID("mid"), recs[1].ID)
	s.Equal(model.PlayerID("late"), recs[2].ID)

	recs, err = s.Store.ListAwaitingApproval(s.Ctx, "g1", 2)
	s.Require().NoError(err)
	s.Len(recs, 2)
}

func (s *Suite) TestListAwaitingApprovalDropsResolved() {
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, s.confirmed("g1", "p1", "steve", "111111", s.Now)))
	_, err := s.Store.UpdatePlayer(s.Ctx, "g1", "p1", func(rec *model.PlayerRecord) error {
		rec.WhitelistedAt = model.TimePtr(s.Now)
		return nil
	})
	s.Require().NoError(err)

	recs, err := s.Store.ListAwaitingApproval(s.Ctx, "g1", 0)
	s.Require().NoError(err)
	s.Empty(recs)
}

// Role sync log

func (s *Suite) TestRoleSyncLogNewestFirst() {
	for i, id := range []string{"l1", "l2", "l3"} {
		s.Require().NoError(s.Store.AppendRoleSyncLog(s.Ctx, &model.RoleSyncLog{
			ID:          id,
			GuildID:     "g1",
			PlayerID:    "p1",
			Trigger:     model.TriggerManual,
			GroupsAfter: []string{"member"},
			Success:     true,
			Timestamp:   s.Now.Add(time.Duration(i) * time.Second),
		}))
	}
	s.Require().NoError(s.Store.AppendRoleSyncLog(s.Ctx, &model.RoleSyncLog{ID: "other", GuildID: "g1", PlayerID: "p2"}))

	entries, err := s.Store.ListRoleSyncLogs(s.Ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("l3", entries[0].ID)
	s.Equal("l1", entries[2].ID)
	s.Equal([]string{"member"}, entries[0].GroupsAfter)

	entries, err = s.Store.ListRoleSyncLogs(s.Ctx, "g1", "p1", 2)
	s.Require().NoError(err)
	s.Len(entries, 2)
}
