package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/telnet2/wamux/internal/command"
)

// Sudo manages the session's sudo list: add, del (remove) and list.
func Sudo(ctx context.Context, inv *command.Invocation) error {
	c := inv.Context
	p := inv.Prefix()
	if len(inv.Args) == 0 {
		return inv.Reply(ctx, fmt.Sprintf(
			"⚡ *Sudo*\n\nSudo users: *%d*\nUsage: *%ssudo add|del|list [number]*\n\n"+
				"Examples:\n• %ssudo add 34612345678\n• %ssudo del 33123456789\n• %ssudo list\n\n"+
				"Format: country code followed by the number, no leading 0.",
			len(c.Session.Sudo), p, p, p, p))
	}

	switch strings.ToLower(inv.Args[0]) {
	case "add":
		n := targetNumber(inv, 1)
		if n == "" {
			return inv.Reply(ctx, usage(inv, "sudo add <number>"))
		}
		return addSudo(ctx, inv, n)
	case "del", "remove", "rm":
		n := targetNumber(inv, 1)
		if n == "" {
			return inv.Reply(ctx, usage(inv, "sudo del <number>"))
		}
		return removeSudo(ctx, inv, n)
	case "list", "ls":
		return inv.Reply(ctx, sudoList(c.Session.Sudo, p))
	default:
		return inv.Reply(ctx, usage(inv, "sudo add|del|list [number]"))
	}
}

func addSudo(ctx context.Context, inv *command.Invocation, n string) error {
	c := inv.Context
	if n == c.Session.OwnerNumber {
		return inv.Reply(ctx, "ℹ️ The owner already has full access to this session.")
	}
	added, err := c.Store.AddSudo(ctx, c.SessionName, n)
	if err != nil {
		return storeError(ctx, inv, err)
	}
	if !added {
		return inv.Reply(ctx, fmt.Sprintf("ℹ️ *%s* is already a sudo user.", n))
	}
	return inv.Reply(ctx, fmt.Sprintf("✅ *%s* added to the sudo users of this session.", n))
}

func removeSudo(ctx context.Context, inv *command.Invocation, n string) error {
	c := inv.Context
	removed, err := c.Store.RemoveSudo(ctx, c.SessionName, n)
	if err != nil {
		return storeError(ctx, inv, err)
	}
	if !removed {
		return inv.Reply(ctx, fmt.Sprintf("ℹ️ *%s* is not a sudo user.", n))
	}
	return inv.Reply(ctx, fmt.Sprintf("🗑️ *%s* removed from the sudo users of this session.", n))
}

func sudoList(sudo []string, prefix string) string {
	if len(sudo) == 0 {
		return fmt.Sprintf("📋 *Sudo users*\n\nNo sudo users yet.\n\nAdd one with *%ssudo add <number>*", prefix)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Sudo users* (%d)\n\n", len(sudo))
	for i, n := range sudo {
		fmt.Fprintf(&b, "%d. %s\n", i+1, n)
	}
	fmt.Fprintf(&b, "\nRemove one with *%ssudo del <number>*", prefix)
	return b.String()
}
