package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/pkg/types"
)

// Mode shows the access mode to anyone and lets the session owner change it.
func Mode(ctx context.Context, inv *command.Invocation) error {
	c := inv.Context
	if len(inv.Args) == 0 {
		return inv.Reply(ctx, fmt.Sprintf(
			"🔧 *Mode*\n\nMode: *%s*\nOwner: %s\nSudo: %s\n\nUsage: *%smode public|private*\n\n"+
				"private: only the owner and sudo users can use the bot\npublic: everyone can use the bot",
			modeLabel(c.Session.EffectiveMode()), check(c.Permissions.IsSessionOwner), check(c.Permissions.IsSessionSudo), inv.Prefix()))
	}
	if !c.Permissions.IsSessionOwner {
		return inv.Reply(ctx, "❌ Only the owner can change the mode.")
	}
	return setMode(ctx, inv, strings.ToLower(inv.Args[0]))
}

func setMode(ctx context.Context, inv *command.Invocation, mode string) error {
	c := inv.Context
	if err := c.Store.SetMode(ctx, c.SessionName, mode); err != nil {
		return storeError(ctx, inv, err)
	}
	effect := "Everyone can now use the bot."
	if mode == types.ModePrivate {
		effect = "Only the owner and sudo users can now use the bot."
	}
	return inv.Reply(ctx, fmt.Sprintf("✅ Mode updated: *%s*\n\n_%s_", modeLabel(mode), effect))
}

func modeLabel(mode string) string {
	if mode == types.ModePrivate {
		return "🔒 private"
	}
	return "🌐 public"
}

// Prefix changes the session's command prefix.
func Prefix(ctx context.Context, inv *command.Invocation) error {
	c := inv.Context
	if len(inv.Args) == 0 {
		p := inv.Prefix()
		return inv.Reply(ctx, fmt.Sprintf(
			"🔧 *Prefix*\n\nCurrent prefix: *%s*\nUsage: *%sprefix <new prefix>*\n\nExamples: %sprefix .  %sprefix #",
			p, p, p, p))
	}
	p := inv.Args[0]
	if err := c.Store.SetPrefix(ctx, c.SessionName, p); err != nil {
		return storeError(ctx, inv, err)
	}
	return inv.Reply(ctx, fmt.Sprintf("✅ Prefix updated: *%s*\n\nTry *%smenu*", p, p))
}
