package types

// Chat types derived from the chat identifier suffix.
type ChatType string

const (
	ChatGroup     ChatType = "group"
	ChatDirect    ChatType = "direct"
	ChatChannel   ChatType = "channel"
	ChatCommunity ChatType = "community"
)

// GroupParticipant is one member of a group as reported by the transport.
// Admin status may be carried by Role or by either boolean flag.
type GroupParticipant struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	Role         string `json:"role,omitempty"`
	IsAdmin      bool   `json:"isAdmin,omitempty"`
	IsSuperAdmin bool   `json:"isSuperAdmin,omitempty"`
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	ID           string             `json:"id"`
	Subject      string             `json:"subject"`
	Owner        string             `json:"owner,omitempty"`
	Participants []GroupParticipant `json:"participants"`
}

// PermissionResult is computed for every message and never persisted.
// IsOwner also holds for the creator of the group the message came from;
// IsSessionOwner and IsSessionSudo come from the session descriptor alone
// and gate everything that edits or bypasses the session's settings.
type PermissionResult struct {
	IsAdmin        bool              `json:"isAdmin"`
	IsOwner        bool              `json:"isOwner"`
	IsSudo         bool              `json:"isSudo"`
	IsSessionOwner bool              `json:"isSessionOwner"`
	IsSessionSudo  bool              `json:"isSessionSudo"`
	IsAdminOrOwner bool              `json:"isAdminOrOwner"`
	IsBotAdmin     bool              `json:"isBotAdmin"`
	IsGroupOwner   bool              `json:"isGroupOwner"`
	Participant    *GroupParticipant `json:"participant,omitempty"`
}
