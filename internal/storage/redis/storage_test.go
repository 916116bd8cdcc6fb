package redis

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
	"github.com/mcoot/mclink/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	mini  *miniredis.Miniredis
	redis *Storage
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage {
		s.mini = miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{
			Addr: s.mini.Addr(),
		})
		s.redis = NewWithClient(client, DefaultConfig())
		return s.redis
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TearDownTest() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func (s *StorageSuite) TestKeyLayout() {
	rec := &model.PlayerRecord{
		ID:           "p1",
		GuildID:      "g1",
		GameUsername: "Steve",
		GameUUID:     "UUID-1",
		ChatUserID:   "u1",
		Auth:         &model.AuthState{Code: "123456", ExpiresAt: s.Now.Add(time.Minute)},
	}
	s.Require().NoError(s.Store.CreatePlayer(s.Ctx, rec))

	s.True(s.mini.Exists("mclink:player:g1:p1"))

	ref, err := s.mini.Get("mclink:idx:username:g1:steve")
	s.Require().NoError(err)
	s.Equal("g1/p1", ref)

	ref, err = s.mini.Get("mclink:idx:uuid:g1:uuid-1")
	s.Require().NoError(err)
	s.Equal("g1/p1", ref)

	ref, err = s.mini.Get("mclink:idx:code:123456")
	s.Require().NoError(err)
	s.Equal("g1/p1", ref)

	members, err := s.mini.Members("mclink:idx:chat_user:g1:u1")
	s.Require().NoError(err)
	s.Equal([]string{"p1"}, members)
}

func (s *StorageSuite) TestDanglingIndexIsNotFound() {
	s.Require().NoError(s.mini.Set("mclink:idx:code:555555", "g1/ghost"))
	_, err := s.Store.GetPlayerByAuthCode(s.Ctx, "555555")
	s.ErrorIs(err, model.ErrAuthCodeNotFound)
}

func (s *StorageSuite) TestSkipsCorruptDocuments() {
	s.Require().NoError(s.mini.Set("mclink:player:g1:bad", "not json"))
	_, err := s.mini.SAdd("mclink:idx:username_all:steve", "g1/bad")
	s.Require().NoError(err)

	recs, err := s.Store.FindPlayersByUsername(s.Ctx, "steve")
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *StorageSuite) TestBackendFailureIsUpstream() {
	s.mini.SetError("READONLY")
	_, err := s.Store.GetPlayer(s.Ctx, "g1", "p1")
	s.ErrorIs(err, model.ErrUpstream)
	s.mini.SetError("")
}

func (s *StorageSuite) TestSyncLogsAreCapped() {
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	capped := NewWithClient(client, Config{MaxSyncLogs: 3})
	defer func() { _ = capped.Close() }()

	for i := 0; i < 5; i++ {
		s.Require().NoError(capped.AppendRoleSyncLog(s.Ctx, &model.RoleSyncLog{
			ID:        fmt.Sprintf("log-%d", i),
			GuildID:   "g1",
			PlayerID:  "p1",
			Success:   true,
			Timestamp: s.Now.Add(time.Duration(i) * time.Second),
		}))
	}

	logs, err := capped.ListRoleSyncLogs(s.Ctx, "g1", "p1", 0)
	s.Require().NoError(err)
	s.Require().Len(logs, 3)
	s.Equal("log-4", logs[0].ID)
	s.Equal("log-2", logs[2].ID)

	length, err := client.LLen(s.Ctx, "mclink:rolesync:g1:p1").Result()
	s.Require().NoError(err)
	s.EqualValues(3, length)
}

func TestRecordRef(t *testing.T) {
	guild, id, ok := parseRecordRef(recordRef("guild/with/slash", "p1"))
	if !ok || guild != "guild/with/slash" || id != "p1" {
		t.Fatalf("unexpected parse: %q %q %v", guild, id, ok)
	}
	if _, _, ok := parseRecordRef("noslash"); ok {
		t.Fatal("expected parse failure")
	}
}
