package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/mclink/internal/model"
)

// Key prefix for all linking data
const keyPrefix = "mclink"

// playerKey returns the Redis key for a PlayerRecord document
func playerKey(guildID model.GuildID, id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s:%s", keyPrefix, guildID, id)
}

// uuidIndexKey maps (guild, uuid) to a record ref; unique
func uuidIndexKey(guildID model.GuildID, uuid string) string {
	return fmt.Sprintf("%s:idx:uuid:%s:%s", keyPrefix, guildID, uuid)
}

// usernameIndexKey maps (guild, username) to a record ref; unique
func usernameIndexKey(guildID model.GuildID, username string) string {
	return fmt.Sprintf("%s:idx:username:%s:%s", keyPrefix, guildID, username)
}

// codeIndexKey maps an active auth code to a record ref; globally unique
func codeIndexKey(code string) string {
	return fmt.Sprintf("%s:idx:code:%s", keyPrefix, code)
}

// uuidSetKey is the SET of refs for a uuid across all guilds
func uuidSetKey(uuid string) string {
	return fmt.Sprintf("%s:idx:uuid_all:%s", keyPrefix, uuid)
}

// usernameSetKey is the SET of refs for a username across all guilds
func usernameSetKey(username string) string {
	return fmt.Sprintf("%s:idx:username_all:%s", keyPrefix, username)
}

// chatUserSetKey is the SET of record ids linked to a chat account in a guild
func chatUserSetKey(guildID model.GuildID, chatUserID string) string {
	return fmt.Sprintf("%s:idx:chat_user:%s:%s", keyPrefix, guildID, chatUserID)
}

// awaitingKey is the ZSET of record ids awaiting approval, scored by confirmation time
func awaitingKey(guildID model.GuildID) string {
	return fmt.Sprintf("%s:idx:awaiting:%s", keyPrefix, guildID)
}

// roleSyncLogKey is the LIST of role sync log entries for a player, newest first
func roleSyncLogKey(guildID model.GuildID, playerID model.PlayerID) string {
	return fmt.Sprintf("%s:rolesync:%s:%s", keyPrefix, guildID, playerID)
}

// recordRef encodes a record's location for cross-guild indexes
func recordRef(guildID model.GuildID, id model.PlayerID) string {
	return string(guildID) + "/" + string(id)
}

// parseRecordRef splits a ref produced by recordRef. Player ids never contain "/".
func parseRecordRef(ref string) (model.GuildID, model.PlayerID, bool) {
	i := strings.LastIndex(ref, "/")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return model.GuildID(ref[:i]), model.PlayerID(ref[i+1:]), true
}
