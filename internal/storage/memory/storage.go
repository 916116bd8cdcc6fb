package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	players       map[recordKey]*model.PlayerRecord
	uuidIndex     map[guildValue]model.PlayerID
	usernameIndex map[guildValue]model.PlayerID
	codeIndex     map[string]recordKey
	syncLogs      []*model.RoleSyncLog
}

type recordKey struct {
	guildID model.GuildID
	id      model.PlayerID
}

type guildValue struct {
	guildID model.GuildID
	value   string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:       make(map[recordKey]*model.PlayerRecord),
		uuidIndex:     make(map[guildValue]model.PlayerID),
		usernameIndex: make(map[guildValue]model.PlayerID),
		codeIndex:     make(map[string]recordKey),
	}
}

var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, rec *model.PlayerRecord) error {
	if err := storage.ValidateRecord(rec); err != nil {
		return err
	}
	stored := rec.Clone()
	storage.Normalize(stored)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{stored.GuildID, stored.ID}
	if _, exists := s.players[key]; exists {
		return model.Validationf("player %s already exists", stored.ID)
	}
	if err := s.checkIndexes(stored); err != nil {
		return err
	}
	s.players[key] = stored
	s.index(stored)
	return nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID, mutate storage.MutateFunc) (*model.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{guildID, id}
	current, ok := s.players[key]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	// Identity is immutable
	updated.ID, updated.GuildID = current.ID, current.GuildID
	storage.Normalize(updated)
	if err := storage.ValidateRecord(updated); err != nil {
		return nil, err
	}

	s.unindex(current)
	if err := s.checkIndexes(updated); err != nil {
		s.index(current)
		return nil, err
	}
	s.players[key] = updated
	s.index(updated)
	return updated.Clone(), nil
}

func (s *Storage) GetPlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID) (*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.players[recordKey{guildID, id}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return rec.Clone(), nil
}

func (s *Storage) GetPlayerByUUID(ctx context.Context, guildID model.GuildID, uuid string) (*model.PlayerRecord, error) {
	uuid = model.NormalizeUUID(uuid)
	if uuid == "" {
		return nil, model.ErrPlayerNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.uuidIndex[guildValue{guildID, uuid}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return s.players[recordKey{guildID, id}].Clone(), nil
}

func (s *Storage) GetPlayerByUsername(ctx context.Context, guildID model.GuildID, username string) (*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameIndex[guildValue{guildID, model.NormalizeUsername(username)}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return s.players[recordKey{guildID, id}].Clone(), nil
}

func (s *Storage) GetPlayerByAuthCode(ctx context.Context, code string) (*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.codeIndex[code]
	if !ok {
		return nil, model.ErrAuthCodeNotFound
	}
	return s.players[key].Clone(), nil
}

func (s *Storage) FindPlayersByUUID(ctx context.Context, uuid string) ([]*model.PlayerRecord, error) {
	uuid = model.NormalizeUUID(uuid)
	if uuid == "" {
		return nil, nil
	}
	return s.filter(func(rec *model.PlayerRecord) bool { return rec.GameUUID == uuid }), nil
}

func (s *Storage) FindPlayersByUsername(ctx context.Context, username string) ([]*model.PlayerRecord, error) {
	username = model.NormalizeUsername(username)
	return s.filter(func(rec *model.PlayerRecord) bool { return rec.GameUsername == username }), nil
}

func (s *Storage) FindPlayersByChatUser(ctx context.Context, guildID model.GuildID, chatUserID string) ([]*model.PlayerRecord, error) {
	if chatUserID == "" {
		return nil, nil
	}
	return s.filter(func(rec *model.PlayerRecord) bool {
		return rec.GuildID == guildID && rec.ChatUserID == chatUserID
	}), nil
}

func (s *Storage) ListAwaitingApproval(ctx context.Context, guildID model.GuildID, limit int) ([]*model.PlayerRecord, error) {
	recs := s.filter(func(rec *model.PlayerRecord) bool {
		return rec.GuildID == guildID && rec.AwaitingApproval() && rec.LinkedAt == nil
	})
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Auth.ConfirmedAt, recs[j].Auth.ConfirmedAt
		if a.Equal(*b) {
			return recs[i].ID < recs[j].ID
		}
		return a.Before(*b)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Role sync log operations

func (s *Storage) AppendRoleSyncLog(ctx context.Context, entry *model.RoleSyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.syncLogs = append(s.syncLogs, &c)
	return nil
}

func (s *Storage) ListRoleSyncLogs(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, limit int) ([]*model.RoleSyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.RoleSyncLog
	for i := len(s.syncLogs) - 1; i >= 0; i-- {
		entry := s.syncLogs[i]
		if entry.GuildID != guildID || entry.PlayerID != playerID {
			continue
		}
		c := *entry
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Index maintenance; callers hold s.mu

func (s *Storage) checkIndexes(rec *model.PlayerRecord) error {
	if id, ok := s.usernameIndex[guildValue{rec.GuildID, rec.GameUsername}]; ok && id != rec.ID {
		return model.ErrDuplicateUsername
	}
	if rec.GameUUID != "" {
		if id, ok := s.uuidIndex[guildValue{rec.GuildID, rec.GameUUID}]; ok && id != rec.ID {
			return model.ErrDuplicateUUID
		}
	}
	if code := rec.AuthCode(); code != "" {
		if key, ok := s.codeIndex[code]; ok && key != (recordKey{rec.GuildID, rec.ID}) {
			return model.ErrDuplicateAuthCode
		}
	}
	return nil
}

func (s *Storage) index(rec *model.PlayerRecord) {
	s.usernameIndex[guildValue{rec.GuildID, rec.GameUsername}] = rec.ID
	if rec.GameUUID != "" {
		s.uuidIndex[guildValue{rec.GuildID, rec.GameUUID}] = rec.ID
	}
	if code := rec.AuthCode(); code != "" {
		s.codeIndex[code] = recordKey{rec.GuildID, rec.ID}
	}
}

func (s *Storage) unindex(rec *model.PlayerRecord) {
	delete(s.usernameIndex, guildValue{rec.GuildID, rec.GameUsername})
	if rec.GameUUID != "" {
		delete(s.uuidIndex, guildValue{rec.GuildID, rec.GameUUID})
	}
	if code := rec.AuthCode(); code != "" {
		delete(s.codeIndex, code)
	}
}

func (s *Storage) filter(keep func(*model.PlayerRecord) bool) []*model.PlayerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PlayerRecord
	for _, rec := range s.players {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
