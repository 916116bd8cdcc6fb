package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Player:
		o.printPlayer(v)
	case PendingList:
		o.printPending(v)
	case BulkResult:
		o.printBulkResult(v)
	case AuthCode:
		o.printAuthCode(v)
	case LinkCode:
		o.printLinkCode(v)
	case Decision:
		o.printDecision(v)
	case RoleSync:
		o.printRoleSync(v)
	case RoleSyncLogs:
		o.printRoleSyncLogs(v)
	case MembershipReport:
		o.printMembershipReport(v)
	case HealthResult:
		o.printHealthResult(v)
	case KeyResult:
		o.printKeyResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Player response type (matches API)
type Player struct {
	ID               string     `json:"id"`
	GuildID          string     `json:"guildId"`
	GameUUID         string     `json:"gameUuid,omitempty"`
	GameUsername     string     `json:"gameUsername"`
	ChatUserID       string     `json:"chatUserId,omitempty"`
	ChatUsername     string     `json:"chatUsername,omitempty"`
	Whitelisted      bool       `json:"whitelisted"`
	LinkedAt         *time.Time `json:"linkedAt,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	ApprovedBy       string     `json:"approvedBy,omitempty"`
	Auth             *struct {
		ExpiresAt   time.Time  `json:"expiresAt"`
		ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	} `json:"auth,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingList response type
type PendingList struct {
	Players []Player `json:"players"`
	Count   int      `json:"count"`
}

// BulkResult response type
type BulkResult struct {
	Approved        int      `json:"approved"`
	TotalFound      int      `json:"totalFound"`
	ApprovedPlayers []Player `json:"approvedPlayers"`
	Errors          []struct {
		PlayerID string `json:"playerId"`
		Username string `json:"username"`
		Error    string `json:"error"`
	} `json:"errors"`
}

// AuthCode response type
type AuthCode struct {
	AuthID    string    `json:"authId"`
	GuildID   string    `json:"guildId"`
	AuthCode  string    `json:"authCode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LinkCode response type
type LinkCode struct {
	Success   bool       `json:"success"`
	AuthCode  string     `json:"authCode,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	GuildID   string     `json:"guildId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Decision response type for a connection attempt
type Decision struct {
	ShouldBeWhitelisted bool      `json:"shouldBeWhitelisted"`
	HasAuth             bool      `json:"hasAuth"`
	Action              string    `json:"action"`
	KickMessage         string    `json:"kickMessage,omitempty"`
	GuildID             string    `json:"guildId,omitempty"`
	RoleSync            *RoleSync `json:"roleSync,omitempty"`
}

// RoleSync response type
type RoleSync struct {
	Enabled        bool     `json:"enabled"`
	TargetGroups   []string `json:"targetGroups"`
	GroupsToAdd    []string `json:"groupsToAdd"`
	GroupsToRemove []string `json:"groupsToRemove"`
	ManagedGroups  []string `json:"managedGroups"`
	Logged         bool     `json:"logged,omitempty"`
}

// RoleSyncLogs response type
type RoleSyncLogs struct {
	Logs []struct {
		Trigger       string    `json:"trigger"`
		GroupsAdded   []string  `json:"groupsAdded"`
		GroupsRemoved []string  `json:"groupsRemoved"`
		Success       bool      `json:"success"`
		Error         string    `json:"error,omitempty"`
		Timestamp     time.Time `json:"timestamp"`
	} `json:"logs"`
}

// MembershipReport response type
type MembershipReport struct {
	Enabled bool `json:"enabled"`
	Changed []struct {
		PlayerID string `json:"playerId"`
		Username string `json:"username"`
	} `json:"changed"`
	Failed []struct {
		PlayerID string `json:"playerId"`
		Username string `json:"username"`
		Error    string `json:"error"`
	} `json:"failed"`
	Examined int `json:"examined"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

// KeyResult is produced locally by the key commands
type KeyResult struct {
	Secret string `json:"secret,omitempty"`
	Hash   string `json:"hash"`
}

func (o *Output) printPlayer(p Player) {
	fmt.Printf("Player: %s (%s)\n", p.GameUsername, p.ID)
	fmt.Printf("Guild: %s\n", p.GuildID)
	if p.GameUUID != "" {
		fmt.Printf("UUID: %s\n", p.GameUUID)
	}
	if p.ChatUserID != "" {
		fmt.Printf("Chat user: %s %s\n", p.ChatUserID, p.ChatUsername)
	}
	fmt.Printf("Status: %s\n", playerStatus(p))
	if p.ApprovedBy != "" {
		fmt.Printf("Approved by: %s\n", p.ApprovedBy)
	}
	if p.RejectionReason != "" {
		fmt.Printf("Rejection reason: %s\n", p.RejectionReason)
	}
	if p.Notes != "" {
		fmt.Println("Notes:")
		for _, line := range strings.Split(p.Notes, "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
}

func playerStatus(p Player) string {
	switch {
	case p.Whitelisted:
		return "whitelisted"
	case p.RevokedAt != nil:
		return "revoked (" + p.RevocationReason + ")"
	case p.RejectionReason != "":
		return "rejected"
	case p.Auth != nil && p.Auth.ConfirmedAt != nil:
		return "awaiting approval"
	case p.Auth != nil:
		return "code issued"
	default:
		return "unlinked"
	}
}

func (o *Output) printPending(l PendingList) {
	fmt.Printf("Pending (%d):\n", l.Count)
	for _, p := range l.Players {
		confirmed := ""
		if p.Auth != nil && p.Auth.ConfirmedAt != nil {
			confirmed = p.Auth.ConfirmedAt.Format(time.RFC3339)
		}
		fmt.Printf("  - %s (%s) chat=%s confirmed=%s\n", p.GameUsername, p.ID, p.ChatUserID, confirmed)
	}
}

func (o *Output) printBulkResult(r BulkResult) {
	fmt.Printf("Approved %d of %d\n", r.Approved, r.TotalFound)
	for _, p := range r.ApprovedPlayers {
		fmt.Printf("  + %s (%s)\n", p.GameUsername, p.ID)
	}
	for _, e := range r.Errors {
		fmt.Printf("  ! %s (%s): %s\n", e.Username, e.PlayerID, e.Error)
	}
}

func (o *Output) printAuthCode(a AuthCode) {
	fmt.Printf("Code: %s\n", a.AuthCode)
	fmt.Printf("Auth ID: %s\n", a.AuthID)
	fmt.Printf("Expires: %s\n", a.ExpiresAt.Format(time.RFC3339))
}

func (o *Output) printLinkCode(l LinkCode) {
	if !l.Success {
		fmt.Printf("No code issued: %s\n", l.Reason)
		return
	}
	fmt.Printf("Code: %s\n", l.AuthCode)
	fmt.Printf("Guild: %s\n", l.GuildID)
	if l.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", l.ExpiresAt.Format(time.RFC3339))
	}
}

func (o *Output) printDecision(d Decision) {
	fmt.Printf("Action: %s\n", d.Action)
	fmt.Printf("Whitelisted: %t\n", d.ShouldBeWhitelisted)
	if d.GuildID != "" {
		fmt.Printf("Guild: %s\n", d.GuildID)
	}
	if d.KickMessage != "" {
		fmt.Printf("Kick message: %s\n", d.KickMessage)
	}
	if d.RoleSync != nil {
		o.printRoleSync(*d.RoleSync)
	}
}

func (o *Output) printRoleSync(r RoleSync) {
	if !r.Enabled {
		fmt.Println("Role sync: disabled")
		return
	}
	fmt.Printf("Target groups: %s\n", strings.Join(r.TargetGroups, ", "))
	if len(r.GroupsToAdd) > 0 {
		fmt.Printf("Add: %s\n", strings.Join(r.GroupsToAdd, ", "))
	}
	if len(r.GroupsToRemove) > 0 {
		fmt.Printf("Remove: %s\n", strings.Join(r.GroupsToRemove, ", "))
	}
}

func (o *Output) printRoleSyncLogs(l RoleSyncLogs) {
	for _, e := range l.Logs {
		status := "ok"
		if !e.Success {
			status = "failed: " + e.Error
		}
		fmt.Printf("%s [%s] +%v -%v %s\n", e.Timestamp.Format(time.RFC3339), e.Trigger, e.GroupsAdded, e.GroupsRemoved, status)
	}
}

func (o *Output) printMembershipReport(r MembershipReport) {
	if !r.Enabled {
		fmt.Println("Leave revocation is not enabled for this guild")
		return
	}
	fmt.Printf("Examined %d, changed %d, failed %d\n", r.Examined, len(r.Changed), len(r.Failed))
	for _, c := range r.Changed {
		fmt.Printf("  * %s (%s)\n", c.Username, c.PlayerID)
	}
	for _, f := range r.Failed {
		fmt.Printf("  ! %s (%s): %s\n", f.Username, f.PlayerID, f.Error)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
}

func (o *Output) printKeyResult(k KeyResult) {
	if k.Secret != "" {
		fmt.Printf("Secret: %s\n", k.Secret)
	}
	fmt.Printf("Hash: %s\n", k.Hash)
}
