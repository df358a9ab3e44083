package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/telnet2/wamux/internal/command"
)

// Menu lists the registered commands grouped by category.
func Menu(ctx context.Context, inv *command.Invocation) error {
	c := inv.Context
	_ = inv.React(ctx, "📝")

	name := inv.Message.PushName
	if name == "" {
		name = "No Name"
	}
	prefix := inv.Prefix()

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", strings.ToUpper(c.BotName))
	fmt.Fprintf(&b, "› User: *%s*\n", name)
	fmt.Fprintf(&b, "› Prefix: *[%s]*\n", prefix)
	fmt.Fprintf(&b, "› Mode: *%s*\n", c.Session.EffectiveMode())
	fmt.Fprintf(&b, "› Owner: %s\n", check(c.Permissions.IsOwner))
	fmt.Fprintf(&b, "› Sudo: %s\n", check(c.Permissions.IsSudo))

	if c.Registry != nil {
		category := "\x00"
		for _, cmd := range c.Registry.List() {
			if cmd.Category != category {
				category = cmd.Category
				title := category
				if title == "" {
					title = "other"
				}
				fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(title))
			}
			fmt.Fprintf(&b, "◦ %s%s", prefix, cmd.Name)
			if cmd.Description != "" {
				fmt.Fprintf(&b, ": %s", cmd.Description)
			}
			b.WriteByte('\n')
		}
	}

	return inv.ReplyMentions(ctx, strings.TrimRight(b.String(), "\n"), inv.Message.Sender)
}
