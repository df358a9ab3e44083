package event

import "github.com/telnet2/wamux/pkg/types"

// SessionStateData is the data for session.state events.
type SessionStateData struct {
	Name     string               `json:"name"`
	From     types.SessionState   `json:"from"`
	To       types.SessionState   `json:"to"`
	Snapshot *types.ActiveSession `json:"snapshot,omitempty"`
}

// SessionRemovedData is the data for session.removed events.
type SessionRemovedData struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ConfigChangedData is the data for config.changed events.
// Added and Removed are session names relative to the previous snapshot.
type ConfigChangedData struct {
	Config  *types.Config `json:"config"`
	Added   []string      `json:"added,omitempty"`
	Removed []string      `json:"removed,omitempty"`
}

// CommandsReloadedData is the data for commands.reloaded events.
type CommandsReloadedData struct {
	Count   int `json:"count"`
	Skipped int `json:"skipped"`
}

// CommandExecutedData is the data for command.executed events.
type CommandExecutedData struct {
	Session string `json:"session"`
	Command string `json:"command"`
	Chat    string `json:"chat"`
	Sender  string `json:"sender"`
	Error   string `json:"error,omitempty"`
}
