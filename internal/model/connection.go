package model

// ConnectionAction tells the game plugin what to do with a joining player.
// Every action other than ActionAllow means kick with the attached message.
type ConnectionAction string

const (
	ActionAllow        ConnectionAction = "allow"
	ActionStartLinking ConnectionAction = "start_linking"
	ActionShowAuthCode ConnectionAction = "show_auth_code"
	ActionPending      ConnectionAction = "pending"
	ActionRejected     ConnectionAction = "rejected"
	ActionError        ConnectionAction = "error"
)

// Kicks reports whether the plugin should disconnect the player
func (a ConnectionAction) Kicks() bool {
	return a != ActionAllow
}

// ConnectionAttempt is what the game server reports on every join
type ConnectionAttempt struct {
	Username             string
	UUID                 string
	IP                   string
	ServerIP             string
	CurrentlyWhitelisted bool
	CurrentGroups        []string
}

// RoleSyncDirective is the advisory group change handed back to the plugin
type RoleSyncDirective struct {
	Enabled        bool     `json:"enabled"`
	TargetGroups   []string `json:"targetGroups"`
	GroupsToAdd    []string `json:"groupsToAdd"`
	GroupsToRemove []string `json:"groupsToRemove"`
	ManagedGroups  []string `json:"managedGroups"`
}

// ConnectionDecision is the outcome for one connection attempt
type ConnectionDecision struct {
	ShouldBeWhitelisted bool
	HasAuth             bool
	Action              ConnectionAction
	KickMessage         string
	GuildID             GuildID
	PlayerID            PlayerID
	RoleSync            *RoleSyncDirective
}
