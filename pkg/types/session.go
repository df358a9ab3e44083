// Package types provides the core data types shared across wamux packages.
package types

import "time"

// Session modes.
const (
	ModePublic  = "public"
	ModePrivate = "private"
)

// DefaultPrefix is the command prefix used when a descriptor has none.
const DefaultPrefix = "!"

// SessionDescriptor identifies one tenant: a WhatsApp account bound to an owner.
type SessionDescriptor struct {
	Name        string   `json:"name"`
	SessionID   string   `json:"sessionId,omitempty"`
	OwnerNumber string   `json:"ownerNumber"`
	Prefix      string   `json:"prefix,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Sudo        []string `json:"sudo"`
}

// ID returns the stable session identifier, falling back to the name.
func (d SessionDescriptor) ID() string {
	if d.SessionID != "" {
		return d.SessionID
	}
	return d.Name
}

// EffectivePrefix returns the configured prefix or DefaultPrefix.
func (d SessionDescriptor) EffectivePrefix() string {
	if d.Prefix == "" {
		return DefaultPrefix
	}
	return d.Prefix
}

// EffectiveMode returns the configured mode or ModePublic.
func (d SessionDescriptor) EffectiveMode() string {
	if d.Mode == "" {
		return ModePublic
	}
	return d.Mode
}

// Clone returns a deep copy of the descriptor.
func (d SessionDescriptor) Clone() SessionDescriptor {
	c := d
	c.Sudo = append([]string(nil), d.Sudo...)
	return c
}

// SessionState is a state of the per-session connection state machine.
type SessionState string

const (
	StateStarting     SessionState = "starting"
	StateAwaitingAuth SessionState = "awaiting_auth"
	StateConnected    SessionState = "connected"
	StateDisconnected SessionState = "disconnected"
	StateReconnecting SessionState = "reconnecting"
	StateRemoved      SessionState = "removed"
)

// ActiveSession is an immutable snapshot of a running session.
// The supervisor replaces the whole snapshot on every transition.
type ActiveSession struct {
	Name               string       `json:"name"`
	State              SessionState `json:"state"`
	Connected          bool         `json:"connected"`
	SelfID             string       `json:"selfId,omitempty"`
	QR                 string       `json:"qr,omitempty"`
	PairingCode        string       `json:"pairingCode,omitempty"`
	LastDisconnectTime *time.Time   `json:"lastDisconnectTime,omitempty"`
	LastError          string       `json:"lastError,omitempty"`
	Performance        Performance  `json:"performance"`
}

// Performance holds per-session counters.
type Performance struct {
	StartTime          time.Time  `json:"startTime"`
	MessageCount       int64      `json:"messageCount"`
	LastActivity       *time.Time `json:"lastActivity,omitempty"`
	ConnectionTime     *time.Time `json:"connectionTime,omitempty"`
	ConnectionAttempts int        `json:"connectionAttempts"`
}
