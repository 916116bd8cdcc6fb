// Package sqlite stores the role sync audit trail in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/storage"
)

//go:embed schema.sql
var schema string

// LogStore is an append-only RoleSyncLogStore backed by SQLite
type LogStore struct {
	db *sql.DB
}

var _ storage.RoleSyncLogStore = (*LogStore)(nil)

// Open creates a LogStore at the given database path, creating the schema if needed
func Open(path string) (*LogStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &LogStore{db: db}, nil
}

// Close closes the database connection
func (s *LogStore) Close() error {
	return s.db.Close()
}

func (s *LogStore) AppendRoleSyncLog(ctx context.Context, entry *model.RoleSyncLog) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	lists := make([]any, 0, 6)
	for _, list := range [][]string{
		entry.RolesBefore, entry.RolesAfter,
		entry.GroupsBefore, entry.GroupsAfter,
		entry.GroupsAdded, entry.GroupsRemoved,
	} {
		lists = append(lists, encodeList(list))
	}

	args := []any{id, string(entry.GuildID), string(entry.PlayerID), string(entry.Trigger)}
	args = append(args, lists...)
	args = append(args, entry.Success, entry.Error, formatTimestamp(entry.Timestamp))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_sync_logs (
			id, guild_id, player_id, sync_trigger,
			roles_before, roles_after, groups_before, groups_after, groups_added, groups_removed,
			success, sync_error, synced_at, seq
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM role_sync_logs))
	`, args...)
	if err != nil {
		return model.Upstream("sqlite", err)
	}
	return nil
}

func (s *LogStore) ListRoleSyncLogs(ctx context.Context, guildID model.GuildID, playerID model.PlayerID, limit int) ([]*model.RoleSyncLog, error) {
	query := `
		SELECT id, guild_id, player_id, sync_trigger,
			roles_before, roles_after, groups_before, groups_after, groups_added, groups_removed,
			success, sync_error, synced_at
		FROM role_sync_logs
		WHERE guild_id = ? AND player_id = ?
		ORDER BY seq DESC`
	args := []any{string(guildID), string(playerID)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.Upstream("sqlite", err)
	}
	defer rows.Close()

	var entries []*model.RoleSyncLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, model.Upstream("sqlite", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Upstream("sqlite", err)
	}
	return entries, nil
}

func scanLog(rows *sql.Rows) (*model.RoleSyncLog, error) {
	var entry model.RoleSyncLog
	var guildID, playerID, trigger, ts string
	var rolesBefore, rolesAfter, groupsBefore, groupsAfter, groupsAdded, groupsRemoved string
	err := rows.Scan(&entry.ID, &guildID, &playerID, &trigger,
		&rolesBefore, &rolesAfter, &groupsBefore, &groupsAfter, &groupsAdded, &groupsRemoved,
		&entry.Success, &entry.Error, &ts)
	if err != nil {
		return nil, err
	}
	entry.GuildID = model.GuildID(guildID)
	entry.PlayerID = model.PlayerID(playerID)
	entry.Trigger = model.SyncTrigger(trigger)
	entry.RolesBefore = decodeList(rolesBefore)
	entry.RolesAfter = decodeList(rolesAfter)
	entry.GroupsBefore = decodeList(groupsBefore)
	entry.GroupsAfter = decodeList(groupsAfter)
	entry.GroupsAdded = decodeList(groupsAdded)
	entry.GroupsRemoved = decodeList(groupsRemoved)
	entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	return &entry, nil
}

// formatTimestamp keeps sub-second precision so entries round-trip exactly
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeList(s string) []string {
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil || len(list) == 0 {
		return nil
	}
	return list
}
