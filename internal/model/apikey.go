package model

// Scope is a permission granted to an API key
type Scope string

const (
	// ScopeConnect is held by game-server plugins
	ScopeConnect Scope = "minecraft:connect"
	// ScopeStaff is held by the chat bot, dashboard and staff CLI
	ScopeStaff Scope = "minecraft:staff"
)

// Valid reports whether the scope is one the service understands
func (s Scope) Valid() bool {
	return s == ScopeConnect || s == ScopeStaff
}
