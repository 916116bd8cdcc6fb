package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mcoot/mclink/internal/model"
)

// DiscordClient reads guild members through a bot-token discordgo session.
// Only the REST side of the session is used; no gateway connection is opened.
type DiscordClient struct {
	session *discordgo.Session
}

var _ Client = (*DiscordClient)(nil)

// NewDiscordClient creates a client for the bot token. A non-empty apiHost
// sends requests to that scheme and host instead of discord.com.
func NewDiscordClient(apiHost, token string) (*DiscordClient, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: 10 * time.Second}
	session.MaxRestRetries = 1

	if apiHost != "" {
		target, err := url.Parse(apiHost)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid discord API host %q", apiHost)
		}
		session.Client.Transport = hostRewriter{target: target, next: http.DefaultTransport}
	}
	return &DiscordClient{session: session}, nil
}

// GetMember fetches the guild member and flattens their display name
func (c *DiscordClient) GetMember(ctx context.Context, guildID model.GuildID, userID string) (*Member, error) {
	dm, err := c.session.GuildMember(string(guildID), userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, model.ErrMemberNotFound
		}
		return nil, model.Upstream("discord", err)
	}
	if dm.User == nil {
		return nil, model.Upstream("discord", errors.New("member response has no user"))
	}

	display := dm.Nick
	if display == "" {
		display = dm.User.GlobalName
	}
	if display == "" {
		display = dm.User.Username
	}
	return &Member{
		UserID:      dm.User.ID,
		Username:    dm.User.Username,
		DisplayName: display,
		Roles:       dm.Roles,
	}, nil
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// hostRewriter points discordgo's fixed endpoints at another host
type hostRewriter struct {
	target *url.URL
	next   http.RoundTripper
}

func (h hostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = h.target.Scheme
	out.URL.Host = h.target.Host
	out.Host = h.target.Host
	return h.next.RoundTrip(out)
}
