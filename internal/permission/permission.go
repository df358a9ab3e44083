package permission

import (
	"errors"
	"fmt"

	"github.com/telnet2/wamux/pkg/types"
)

// Reason identifies which command requirement rejected an invocation.
type Reason string

const (
	ReasonOwnerOnly    Reason = "owner_only"
	ReasonSudoOnly     Reason = "sudo_only"
	ReasonGroupOnly    Reason = "group_only"
	ReasonAdminOnly    Reason = "admin_only"
	ReasonBotAdminOnly Reason = "bot_admin_only"
	ReasonPrivateMode  Reason = "private_mode"
)

// Requirements are the access flags a command declares.
type Requirements struct {
	// SessionOwnerOnly admits the session owner but not a group creator.
	SessionOwnerOnly bool `json:"sessionOwnerOnly,omitempty" yaml:"sessionOwnerOnly"`
	OwnerOnly        bool `json:"ownerOnly,omitempty" yaml:"ownerOnly"`
	SudoOnly         bool `json:"sudoOnly,omitempty" yaml:"sudoOnly"`
	GroupOnly        bool `json:"groupOnly,omitempty" yaml:"groupOnly"`
	AdminOnly        bool `json:"adminOnly,omitempty" yaml:"adminOnly"`
	BotAdminOnly     bool `json:"botAdminOnly,omitempty" yaml:"botAdminOnly"`
}

// DeniedError is returned when an invocation fails a requirement.
type DeniedError struct {
	Reason  Reason
	Command string
}

func (e *DeniedError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("permission denied: %s", e.Reason)
	}
	return fmt.Sprintf("permission denied for %s: %s", e.Command, e.Reason)
}

// IsDeniedError checks if an error is a permission denial and returns it.
func IsDeniedError(err error) (*DeniedError, bool) {
	var d *DeniedError
	ok := errors.As(err, &d)
	return d, ok
}

// CheckMode rejects senders who are neither the owner nor a sudo user of a
// private session. Owning the group does not count.
func CheckMode(mode string, res types.PermissionResult) error {
	if mode == types.ModePrivate && !res.IsSessionOwner && !res.IsSessionSudo {
		return &DeniedError{Reason: ReasonPrivateMode}
	}
	return nil
}

// Check evaluates requirements in a fixed order: session owner, owner, sudo
// (owners pass), group, admin, bot admin. The first failure is returned.
func Check(command string, req Requirements, res types.PermissionResult, isGroup bool) error {
	var reason Reason
	switch {
	case req.SessionOwnerOnly && !res.IsSessionOwner:
		reason = ReasonOwnerOnly
	case req.OwnerOnly && !res.IsOwner:
		reason = ReasonOwnerOnly
	case req.SudoOnly && !res.IsOwner && !res.IsSudo:
		reason = ReasonSudoOnly
	case req.GroupOnly && !isGroup:
		reason = ReasonGroupOnly
	case req.AdminOnly && !res.IsAdmin:
		reason = ReasonAdminOnly
	case req.BotAdminOnly && !res.IsBotAdmin:
		reason = ReasonBotAdminOnly
	default:
		return nil
	}
	return &DeniedError{Reason: reason, Command: command}
}
