// Package builtin implements the commands every session gets without any
// manifest: menu, session, mode, prefix, sudo and ping.
package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/permission"
	"github.com/telnet2/wamux/internal/sessionstore"
)

// Categories used by the built-ins.
const (
	CategoryGeneral = "general"
	CategoryOwner   = "owner"
)

// Commands returns fresh descriptors for every built-in.
func Commands() []*command.Command {
	return []*command.Command{
		{
			Name:        "menu",
			Description: "Show the available commands",
			Category:    CategoryGeneral,
			Aliases:     []string{"help"},
			Run:         Menu,
		},
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
			Category:    CategoryGeneral,
			Run:         Ping,
		},
		{
			Name:        "session",
			Description: "Show or change this session's settings",
			Category:    CategoryOwner,
			Run:         Session,
		},
		{
			Name:        "mode",
			Description: "Show or change the access mode",
			Category:    CategoryOwner,
			Run:         Mode,
		},
		{
			Name:         "prefix",
			Description:  "Change the command prefix",
			Category:     CategoryOwner,
			Aliases:      []string{"setprefix"},
			Run:          Prefix,
			Requirements: permission.Requirements{SessionOwnerOnly: true},
		},
		{
			Name:         "sudo",
			Description:  "Manage the sudo list",
			Category:     CategoryOwner,
			Run:          Sudo,
			Requirements: permission.Requirements{SessionOwnerOnly: true},
		},
	}
}

// storeError turns a store failure into a user-facing message. Unexpected
// errors are returned so the dispatcher answers with its generic notice.
func storeError(ctx context.Context, inv *command.Invocation, err error) error {
	switch {
	case errors.Is(err, sessionstore.ErrInvalidPrefix):
		return inv.Reply(ctx, "❌ A prefix is 1 to 3 letters, digits or standard symbols.")
	case errors.Is(err, sessionstore.ErrInvalidMode):
		return inv.Reply(ctx, "❌ Invalid mode. Use *public* or *private*.")
	case errors.Is(err, sessionstore.ErrInvalidNumber):
		return inv.Reply(ctx, "❌ Invalid number. Use the country code followed by the number, without a leading 0 (e.g. 33123456789).")
	case errors.Is(err, sessionstore.ErrSessionNotFound):
		return inv.Reply(ctx, "❌ This session is no longer configured.")
	default:
		return err
	}
}

// targetNumber takes the number from args[i], or from the quoted message's
// sender when the argument is missing.
func targetNumber(inv *command.Invocation, i int) string {
	if i < len(inv.Args) {
		return identity.NormalizeNumber(inv.Args[i])
	}
	if inv.Message.QuotedSender != "" {
		return identity.Number(inv.Message.QuotedSender)
	}
	return ""
}

func check(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func usage(inv *command.Invocation, format string, a ...any) string {
	return "❌ Usage: " + inv.Prefix() + fmt.Sprintf(format, a...)
}
