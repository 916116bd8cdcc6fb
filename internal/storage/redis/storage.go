package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

// errConcurrentUpdate is returned when optimistic retries are exhausted
var errConcurrentUpdate = fmt.Errorf("%w: record was modified concurrently", model.ErrStateConflict)

// Storage is a Redis-backed implementation of the storage interface.
// Records are JSON documents; uniqueness is enforced with index keys that are
// WATCHed during every write.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	if cfg.MaxSyncLogs <= 0 {
		cfg.MaxSyncLogs = DefaultConfig().MaxSyncLogs
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, rec *model.PlayerRecord) error {
	if err := storage.ValidateRecord(rec); err != nil {
		return err
	}
	stored := rec.Clone()
	storage.Normalize(stored)

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	key := playerKey(stored.GuildID, stored.ID)
	watched := append([]string{key}, uniqueKeys(stored)...)

	return s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.Validationf("player %s already exists", stored.ID)
		}
		if err := checkUnique(ctx, tx, stored); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			addIndexes(ctx, pipe, stored)
			return nil
		})
		return err
	}, watched...)
}

func (s *Storage) UpdatePlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID, mutate storage.MutateFunc) (*model.PlayerRecord, error) {
	key := playerKey(guildID, id)
	var result *model.PlayerRecord

	err := s.transact(ctx, func(tx *redis.Tx) error {
		current, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}

		updated := current.Clone()
		if err := mutate(updated); err != nil {
			return err
		}
		// Identity is immutable
		updated.ID, updated.GuildID = current.ID, current.GuildID
		storage.Normalize(updated)
		if err := storage.ValidateRecord(updated); err != nil {
			return err
		}

		if keys := uniqueKeys(updated); len(keys) > 0 {
			if err := tx.Watch(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if err := checkUnique(ctx, tx, updated); err != nil {
			return err
		}

		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			removeIndexes(ctx, pipe, current)
			pipe.Set(ctx, key, data, 0)
			addIndexes(ctx, pipe, updated)
			return nil
		})
		if err == nil {
			result = updated
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) GetPlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID) (*model.PlayerRecord, error) {
	rec, err := getRecord(ctx, s.client, playerKey(guildID, id))
	if err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

func (s *Storage) GetPlayerByUUID(ctx context.Context, guildID model.GuildID, uuid string) (*model.PlayerRecord, error) {
	uuid = model.NormalizeUUID(uuid)
	if uuid == "" {
		return nil, model.ErrPlayerNotFound
	}
	return s.getByRef(ctx, uuidIndexKey(guildID, uuid), model.ErrPlayerNotFound)
}

func (s *Storage) GetPlayerByUsername(ctx context.Context, guildID model.GuildID, username string) (*model.PlayerRecord, error) {
	return s.getByRef(ctx, usernameIndexKey(guildID, model.NormalizeUsername(username)), model.ErrPlayerNotFound)
}

func (s *Storage) GetPlayerByAuthCode(ctx context.Context, code string) (*model.PlayerRecord, error) {
	if code == "" {
		return nil, model.ErrAuthCodeNotFound
	}
	return s.getByRef(ctx, codeIndexKey(code), model.ErrAuthCodeNotFound)
}

func (s *Storage) FindPlayersByUUID(ctx context.Context, uuid string) ([]*model.PlayerRecord, error) {
	uuid = model.NormalizeUUID(uuid)
	if uuid == "" {
		return nil, nil
	}
	return s.findByRefSet(ctx, uuidSetKey(uuid))
}

func (s *Storage) FindPlayersByUsername(ctx context.Context, username string) ([]*model.PlayerRecord, error) {
	return s.findByRefSet(ctx, usernameSetKey(model.NormalizeUsername(username)))
}

func (s *Storage) FindPlayersByChatUser(ctx context.Context, guildID model.GuildID, chatUserID string) ([]*model.PlayerRecord, error) {
	if chatUserID == "" {
		return nil, nil
	}
	ids, err := s.client.SMembers(ctx, chatUserSetKey(guildID, chatUserID)).Result()
	if err != nil {
		return nil, model.Upstream("redis", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(guildID, model.PlayerID(id))
	}
	recs, err := s.loadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

func (s *Storage) ListAwaitingApproval(ctx context.Context, guildID model.GuildID, limit int) ([]*model.PlayerRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	// ZSET ties fall back to lexical member order, matching the memory store
	ids, err := s.client.ZRange(ctx, awaitingKey(guildID), 0, stop).Result()
	if err != nil {
		return nil, model.Upstream("redis", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(guildID, model.PlayerID(id))
	}
	recs, err := s.loadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if rec.AwaitingApproval() && rec.LinkedAt == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Role sync log operations

func (s *Storage) AppendRoleSyncLog(ctx context.Context, entry *model.RoleSyncLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := roleSyncLogKey(entry.GuildID, entry.PlayerID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(s.cfg.MaxSyncLogs-1))
		return nil
	})
	if err != nil {
		return model.Upstream("redis", err)
	}
	return nil
}

func (s *Storage) ListRoleSyncLogs(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, limit int) ([]*model.RoleSyncLog, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	values, err := s.client.LRange(ctx, roleSyncLogKey(guildID, playerID), 0, stop).Result()
	if err != nil {
		return nil, model.Upstream("redis", err)
	}
	entries := make([]*model.RoleSyncLog, 0, len(values))
	for _, val := range values {
		var entry model.RoleSyncLog
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			continue // Skip invalid data
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// transact runs fn inside WATCH/MULTI, retrying when a watched key changes
func (s *Storage) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return translate(err)
	}
	return errConcurrentUpdate
}

func (s *Storage) getByRef(ctx context.Context, indexKey string, notFound error) (*model.PlayerRecord, error) {
	ref, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, model.Upstream("redis", err)
	}
	guildID, id, ok := parseRecordRef(ref)
	if !ok {
		return nil, notFound
	}
	rec, err := s.GetPlayer(ctx, guildID, id)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil, notFound
	}
	return rec, err
}

func (s *Storage) findByRefSet(ctx context.Context, setKey string) ([]*model.PlayerRecord, error) {
	refs, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, model.Upstream("redis", err)
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		if guildID, id, ok := parseRecordRef(ref); ok {
			keys = append(keys, playerKey(guildID, id))
		}
	}
	recs, err := s.loadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

// loadMany fetches records with MGET, preserving key order and skipping missing keys
func (s *Storage) loadMany(ctx context.Context, keys []string) ([]*model.PlayerRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, model.Upstream("redis", err)
	}
	recs := make([]*model.PlayerRecord, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var rec model.PlayerRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue // Skip invalid data
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRecord(ctx context.Context, g getter, key string) (*model.PlayerRecord, error) {
	data, err := g.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	var rec model.PlayerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// uniqueIndex is one uniqueness constraint a record participates in
type uniqueIndex struct {
	key    string
	dupErr error
}

func uniqueIndexes(rec *model.PlayerRecord) []uniqueIndex {
	idx := []uniqueIndex{{usernameIndexKey(rec.GuildID, rec.GameUsername), model.ErrDuplicateUsername}}
	if rec.GameUUID != "" {
		idx = append(idx, uniqueIndex{uuidIndexKey(rec.GuildID, rec.GameUUID), model.ErrDuplicateUUID})
	}
	if code := rec.AuthCode(); code != "" {
		idx = append(idx, uniqueIndex{codeIndexKey(code), model.ErrDuplicateAuthCode})
	}
	return idx
}

func uniqueKeys(rec *model.PlayerRecord) []string {
	idx := uniqueIndexes(rec)
	keys := make([]string, len(idx))
	for i, u := range idx {
		keys[i] = u.key
	}
	return keys
}

func checkUnique(ctx context.Context, tx *redis.Tx, rec *model.PlayerRecord) error {
	self := recordRef(rec.GuildID, rec.ID)
	for _, u := range uniqueIndexes(rec) {
		owner, err := tx.Get(ctx, u.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		if owner != self {
			return u.dupErr
		}
	}
	return nil
}

func addIndexes(ctx context.Context, pipe redis.Pipeliner, rec *model.PlayerRecord) {
	ref := recordRef(rec.GuildID, rec.ID)
	for _, key := range uniqueKeys(rec) {
		pipe.Set(ctx, key, ref, 0)
	}
	pipe.SAdd(ctx, usernameSetKey(rec.GameUsername), ref)
	if rec.GameUUID != "" {
		pipe.SAdd(ctx, uuidSetKey(rec.GameUUID), ref)
	}
	if rec.ChatUserID != "" {
		pipe.SAdd(ctx, chatUserSetKey(rec.GuildID, rec.ChatUserID), string(rec.ID))
	}
	if rec.AwaitingApproval() && rec.LinkedAt == nil {
		pipe.ZAdd(ctx, awaitingKey(rec.GuildID), redis.Z{
			Score:  float64(rec.Auth.ConfirmedAt.UnixMilli()),
			Member: string(rec.ID),
		})
	}
}

func removeIndexes(ctx context.Context, pipe redis.Pipeliner, rec *model.PlayerRecord) {
	ref := recordRef(rec.GuildID, rec.ID)
	if keys := uniqueKeys(rec); len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.SRem(ctx, usernameSetKey(rec.GameUsername), ref)
	if rec.GameUUID != "" {
		pipe.SRem(ctx, uuidSetKey(rec.GameUUID), ref)
	}
	if rec.ChatUserID != "" {
		pipe.SRem(ctx, chatUserSetKey(rec.GuildID, rec.ChatUserID), string(rec.ID))
	}
	pipe.ZRem(ctx, awaitingKey(rec.GuildID), string(rec.ID))
}

// translate passes domain errors through and wraps everything else as upstream
func translate(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{model.ErrValidation, model.ErrNotFound, model.ErrStateConflict, model.ErrDuplicate, model.ErrUpstream} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return model.Upstream("redis", err)
}

func sortRecords(recs []*model.PlayerRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].GuildID != recs[j].GuildID {
			return recs[i].GuildID < recs[j].GuildID
		}
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
