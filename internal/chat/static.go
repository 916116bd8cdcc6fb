package chat

import (
	"context"
	"sync"

	"github.com/mcoot/mclink/internal/model"
)

// StaticClient serves members from memory. Used in development and tests.
type StaticClient struct {
	mu      sync.RWMutex
	members map[model.GuildID]map[string]Member
	err     error
}

var _ Client = (*StaticClient)(nil)

// NewStaticClient creates an empty StaticClient
func NewStaticClient() *StaticClient {
	return &StaticClient{members: make(map[model.GuildID]map[string]Member)}
}

// SetMember adds or replaces a member
func (c *StaticClient) SetMember(guildID model.GuildID, m Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members[guildID] == nil {
		c.members[guildID] = make(map[string]Member)
	}
	m.Roles = append([]string(nil), m.Roles...)
	c.members[guildID][m.UserID] = m
}

// RemoveMember removes a member from a guild
func (c *StaticClient) RemoveMember(guildID model.GuildID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members[guildID], userID)
}

// FailWith makes every lookup return err until cleared with nil
func (c *StaticClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *StaticClient) GetMember(ctx context.Context, guildID model.GuildID, userID string) (*Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	m, ok := c.members[guildID][userID]
	if !ok {
		return nil, model.ErrMemberNotFound
	}
	m.Roles = append([]string(nil), m.Roles...)
	return &m, nil
}
