package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/telnet2/wamux/internal/command"
)

// Ping answers with the delay between the message timestamp and now.
func Ping(ctx context.Context, inv *command.Invocation) error {
	text := "🏓 Pong!"
	if ts := inv.Message.Timestamp; !ts.IsZero() {
		latency := time.Since(ts).Round(time.Millisecond)
		if latency < 0 {
			latency = 0
		}
		text = fmt.Sprintf("🏓 Pong! %s", latency)
	}
	return inv.Reply(ctx, text)
}
