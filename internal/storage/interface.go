package storage

import (
	"context"

	"github.com/mcoot/mclink/internal/model"
)

// MutateFunc edits a record inside an atomic update. Returning an error aborts
// the update without writing; returning ErrStateConflict is how callers say
// "the record is not in the state I expected".
type MutateFunc func(rec *model.PlayerRecord) error

// PlayerStore persists PlayerRecords and enforces their uniqueness constraints:
// (guild, uuid), (guild, username) and the global auth code.
type PlayerStore interface {
	// CreatePlayer inserts a new record. Fails with ErrDuplicate* when an index is taken.
	CreatePlayer(ctx context.Context, rec *model.PlayerRecord) error

	// UpdatePlayer atomically loads the record, applies mutate and writes it back,
	// updating indexes. Concurrent writers never interleave inside one update.
	UpdatePlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID, mutate MutateFunc) (*model.PlayerRecord, error)

	GetPlayer(ctx context.Context, guildID model.GuildID, id model.PlayerID) (*model.PlayerRecord, error)
	GetPlayerByUUID(ctx context.Context, guildID model.GuildID, uuid string) (*model.PlayerRecord, error)
	GetPlayerByUsername(ctx context.Context, guildID model.GuildID, username string) (*model.PlayerRecord, error)
	GetPlayerByAuthCode(ctx context.Context, code string) (*model.PlayerRecord, error)

	// Cross-guild lookups used for guild resolution
	FindPlayersByUUID(ctx context.Context, uuid string) ([]*model.PlayerRecord, error)
	FindPlayersByUsername(ctx context.Context, username string) ([]*model.PlayerRecord, error)

	// FindPlayersByChatUser returns every record in the guild linked to the chat account
	FindPlayersByChatUser(ctx context.Context, guildID model.GuildID, chatUserID string) ([]*model.PlayerRecord, error)

	// ListAwaitingApproval returns confirmed, unresolved records ordered by
	// confirmation time, oldest first. limit <= 0 means no limit.
	ListAwaitingApproval(ctx context.Context, guildID model.GuildID, limit int) ([]*model.PlayerRecord, error)
}

// RoleSyncLogStore is the append-only audit trail of role sync operations
type RoleSyncLogStore interface {
	AppendRoleSyncLog(ctx context.Context, entry *model.RoleSyncLog) error
	// ListRoleSyncLogs returns the player's entries, newest first
	ListRoleSyncLogs(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, limit int) ([]*model.RoleSyncLog, error)
}

// Storage is the full persistence surface of the service
type Storage interface {
	PlayerStore
	RoleSyncLogStore
}

// composite joins a player store with a separate role sync log sink
type composite struct {
	PlayerStore
	RoleSyncLogStore
}

// Compose returns a Storage that keeps records in players and audit entries in logs
func Compose(players PlayerStore, logs RoleSyncLogStore) Storage {
	return composite{PlayerStore: players, RoleSyncLogStore: logs}
}
