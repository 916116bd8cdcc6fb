package guildconfig

import "strings"

// MessageKind names a kick message template
type MessageKind string

const (
	MessageStartLinking MessageKind = "start_linking"
	MessageShowAuthCode MessageKind = "show_auth_code"
	MessagePending      MessageKind = "pending"
	MessageRejected     MessageKind = "rejected"
	MessageLeftPlatform MessageKind = "left_platform"
	MessageError        MessageKind = "error"
)

// Messages are the player-facing kick message templates. Templates may use
// {username}, {code} and {reason} placeholders.
type Messages struct {
	StartLinking string `yaml:"start_linking"`
	ShowAuthCode string `yaml:"show_auth_code"`
	Pending      string `yaml:"pending"`
	Rejected     string `yaml:"rejected"`
	LeftPlatform string `yaml:"left_platform"`
	Error        string `yaml:"error"`
}

// DefaultMessages returns the built-in templates
func DefaultMessages() Messages {
	return Messages{
		StartLinking: "This server requires a linked Discord account. Use /mclink {username} in our Discord to get a link code, then rejoin.",
		ShowAuthCode: "Your link code is {code}. Run /confirm {code} in Discord to finish linking.",
		Pending:      "Your account link is waiting for staff approval. Please check back soon.",
		Rejected:     "Your whitelist request was denied: {reason}",
		LeftPlatform: "Your whitelist was removed because you left our Discord. Rejoin the Discord to restore access.",
		Error:        "We could not verify your account right now. Please try again in a moment.",
	}
}

// Template returns the raw template for kind
func (m Messages) Template(kind MessageKind) string {
	switch kind {
	case MessageStartLinking:
		return m.StartLinking
	case MessageShowAuthCode:
		return m.ShowAuthCode
	case MessagePending:
		return m.Pending
	case MessageRejected:
		return m.Rejected
	case MessageLeftPlatform:
		return m.LeftPlatform
	default:
		return m.Error
	}
}

// Vars are the values substituted into a template
type Vars struct {
	Username string
	Code     string
	Reason   string
}

// Render fills the template for kind
func (m Messages) Render(kind MessageKind, vars Vars) string {
	r := strings.NewReplacer(
		"{username}", vars.Username,
		"{code}", vars.Code,
		"{reason}", vars.Reason,
	)
	return strings.TrimSpace(r.Replace(m.Template(kind)))
}

func (m Messages) withFallback(d Messages) Messages {
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return Messages{
		StartLinking: pick(m.StartLinking, d.StartLinking),
		ShowAuthCode: pick(m.ShowAuthCode, d.ShowAuthCode),
		Pending:      pick(m.Pending, d.Pending),
		Rejected:     pick(m.Rejected, d.Rejected),
		LeftPlatform: pick(m.LeftPlatform, d.LeftPlatform),
		Error:        pick(m.Error, d.Error),
	}
}
