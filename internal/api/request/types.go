package request

// ConnectionAttemptRequest is sent by the game plugin on every join
type ConnectionAttemptRequest struct {
	Username             string   `json:"username"`
	UUID                 string   `json:"uuid"`
	IP                   string   `json:"ip"`
	ServerIP             string   `json:"serverIp"`
	CurrentlyWhitelisted bool     `json:"currentlyWhitelisted"`
	CurrentGroups        []string `json:"currentGroups"`
}

// RequestLinkCodeRequest is sent by the plugin for a whitelisted, unlinked player
type RequestLinkCodeRequest struct {
	Username string `json:"username"`
	UUID     string `json:"uuid"`
	ServerIP string `json:"serverIp"`
}

// IssueCodeRequest is the request body for issuing an auth code
type IssueCodeRequest struct {
	Username string `json:"username"`
	UUID     string `json:"uuid"`
}

// ConfirmRequest is the request body for confirming an auth code from chat
type ConfirmRequest struct {
	Code            string `json:"code"`
	ChatUserID      string `json:"userId"`
	ChatUsername    string `json:"username"`
	ChatDisplayName string `json:"displayName"`
}

// ApproveRequest is the request body for approving a link
type ApproveRequest struct {
	StaffID string `json:"staffMemberId"`
	Notes   string `json:"notes"`
}

// RejectRequest is the request body for rejecting a link
type RejectRequest struct {
	StaffID string `json:"staffMemberId"`
	Reason  string `json:"reason"`
}

// BulkApproveRequest is the request body for bulk approval
type BulkApproveRequest struct {
	Count   int    `json:"count"`
	StaffID string `json:"staffMemberId"`
}

// RevokeRequest is the request body for revoking a whitelist
type RevokeRequest struct {
	StaffID string `json:"staffMemberId"`
	Reason  string `json:"reason"`
}

// RoleSyncRequest is the request body for a manual role sync
type RoleSyncRequest struct {
	CurrentGroups []string `json:"currentGroups"`
}
