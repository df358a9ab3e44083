// Package identity canonicalizes WhatsApp identifiers.
//
// Every comparison of a phone-number-like identifier in wamux goes through
// NormalizeNumber, and every sender or chat id goes through Canonical first.
package identity

import (
	"strings"

	"github.com/telnet2/wamux/pkg/types"
)

// Servers.
const (
	UserServer       = "s.whatsapp.net"
	LIDServer        = "lid"
	GroupServer      = "g.us"
	NewsletterServer = "newsletter"
	BroadcastServer  = "broadcast"
)

// StatusBroadcast is the chat id of the status feed.
const StatusBroadcast = "status@broadcast"

// Canonical strips device and agent suffixes from an identifier:
// "221700000000:12@s.whatsapp.net" becomes "221700000000@s.whatsapp.net".
// Identifiers without a server part are returned trimmed but otherwise unchanged.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	at := strings.LastIndexByte(raw, '@')
	if at < 0 {
		return raw
	}
	user, server := raw[:at], raw[at+1:]
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	if server == UserServer || server == LIDServer {
		if i := strings.IndexByte(user, '.'); i >= 0 {
			user = user[:i]
		}
	}
	return user + "@" + server
}

// User returns the user part of the canonical identifier.
func User(raw string) string {
	c := Canonical(raw)
	if at := strings.LastIndexByte(c, '@'); at >= 0 {
		return c[:at]
	}
	return c
}

// Server returns the server part of the identifier, or "".
func Server(raw string) string {
	raw = strings.TrimSpace(raw)
	if at := strings.LastIndexByte(raw, '@'); at >= 0 {
		return raw[at+1:]
	}
	return ""
}

// NormalizeNumber keeps only the ASCII digits of s.
func NormalizeNumber(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Number returns the digits-only user part of an identifier.
func Number(raw string) string {
	return NormalizeNumber(User(raw))
}

// SameNumber reports whether two identifiers or numbers refer to the same
// phone number. Empty numbers never match.
func SameNumber(a, b string) bool {
	na, nb := Number(a), Number(b)
	return na != "" && na == nb
}

// UserJID builds a user identifier from a phone number.
func UserJID(number string) string {
	return NormalizeNumber(number) + "@" + UserServer
}

// IsGroup reports whether chat is a group chat.
func IsGroup(chat string) bool {
	return Server(chat) == GroupServer
}

// ChatTypeOf classifies a chat by its identifier suffix.
func ChatTypeOf(chat string) types.ChatType {
	switch Server(chat) {
	case GroupServer:
		return types.ChatGroup
	case UserServer, LIDServer:
		return types.ChatDirect
	case NewsletterServer:
		return types.ChatChannel
	default:
		return types.ChatCommunity
	}
}
