package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/pkg/types"
)

// Session shows or edits the current session. The session owner and its sudo
// users may use it; adding and removing sudo entries is reserved to the owner.
// Group creators get no rights here.
func Session(ctx context.Context, inv *command.Invocation) error {
	c := inv.Context
	if !c.Permissions.IsSessionOwner && !c.Permissions.IsSessionSudo {
		return inv.Reply(ctx, "🚫 Only the owner and sudo users of this session can manage it.")
	}

	sub := ""
	if len(inv.Args) > 0 {
		sub = strings.ToLower(inv.Args[0])
	}

	switch sub {
	case "", "info":
		return inv.Reply(ctx, sessionInfo(c.Session))

	case "prefix":
		if len(inv.Args) < 2 {
			return inv.Reply(ctx, usage(inv, "session prefix <new prefix>"))
		}
		p := inv.Args[1]
		if err := c.Store.SetPrefix(ctx, c.SessionName, p); err != nil {
			return storeError(ctx, inv, err)
		}
		return inv.Reply(ctx, fmt.Sprintf("✅ Prefix updated: *%s*\n\n_Commands now start with %s_", p, p))

	case "mode":
		if len(inv.Args) < 2 {
			return inv.Reply(ctx, usage(inv, "session mode <public|private>"))
		}
		return setMode(ctx, inv, strings.ToLower(inv.Args[1]))

	case "addsudo", "delsudo":
		if !c.Permissions.IsSessionOwner {
			return inv.Reply(ctx, "🚫 Only the owner can change the sudo list.")
		}
		n := targetNumber(inv, 1)
		if n == "" {
			return inv.Reply(ctx, usage(inv, "session %s <number>\n\nOr reply to a message.", sub))
		}
		if sub == "addsudo" {
			return addSudo(ctx, inv, n)
		}
		return removeSudo(ctx, inv, n)

	default:
		return inv.Reply(ctx, fmt.Sprintf("❌ Unknown subcommand: *%s*\n\nUse %ssession info to see the available subcommands.", sub, inv.Prefix()))
	}
}

func sessionInfo(d types.SessionDescriptor) string {
	sudo := "none"
	if len(d.Sudo) > 0 {
		sudo = strings.Join(d.Sudo, ", ")
	}
	p := d.EffectivePrefix()

	var b strings.Builder
	b.WriteString("*📱 Session*\n\n")
	fmt.Fprintf(&b, "Name: %s\n", d.Name)
	fmt.Fprintf(&b, "Owner: %s\n", d.OwnerNumber)
	fmt.Fprintf(&b, "Prefix: %s\n", p)
	fmt.Fprintf(&b, "Mode: %s\n", d.EffectiveMode())
	fmt.Fprintf(&b, "Sudo: %s\n", sudo)
	fmt.Fprintf(&b, "Session ID: %s\n\n", d.ID())
	b.WriteString("*Subcommands:*\n")
	fmt.Fprintf(&b, "• %ssession prefix <new>\n", p)
	fmt.Fprintf(&b, "• %ssession mode <public|private>\n", p)
	fmt.Fprintf(&b, "• %ssession addsudo <number>\n", p)
	fmt.Fprintf(&b, "• %ssession delsudo <number>", p)
	return b.String()
}
