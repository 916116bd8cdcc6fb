// Package chat reads member and role data from the chat platform.
package chat

import (
	"context"

	"github.com/mcoot/mclink/internal/model"
)

// Member is a chat-platform account as seen in one guild
type Member struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
}

// Client is the read-only view of the chat platform this service needs.
// GetMember returns model.ErrMemberNotFound when the user is not in the guild.
type Client interface {
	GetMember(ctx context.Context, guildID model.GuildID, userID string) (*Member, error)
}
