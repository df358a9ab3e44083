package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telnet2/wamux/pkg/types"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"221700000000@s.whatsapp.net", "221700000000@s.whatsapp.net"},
		{"221700000000:12@s.whatsapp.net", "221700000000@s.whatsapp.net"},
		{"221700000000.0:3@s.whatsapp.net", "221700000000@s.whatsapp.net"},
		{"  98765:1@lid ", "98765@lid"},
		{"120363000000000000@g.us", "120363000000000000@g.us"},
		{"221700000000", "221700000000"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "221700000000", NormalizeNumber("+221 70-000 0000"))
	assert.Equal(t, "", NormalizeNumber("abc"))
	assert.Equal(t, "221700000000", Number("221700000000:4@s.whatsapp.net"))
}

func TestSameNumber(t *testing.T) {
	assert.True(t, SameNumber("221700000000:4@s.whatsapp.net", "+221700000000"))
	assert.False(t, SameNumber("221700000000@s.whatsapp.net", "221799999999"))
	assert.False(t, SameNumber("", ""))
}

func TestChatTypeOf(t *testing.T) {
	assert.Equal(t, types.ChatGroup, ChatTypeOf("1203630@g.us"))
	assert.Equal(t, types.ChatDirect, ChatTypeOf("221700000000@s.whatsapp.net"))
	assert.Equal(t, types.ChatDirect, ChatTypeOf("98765@lid"))
	assert.Equal(t, types.ChatChannel, ChatTypeOf("1203630@newsletter"))
	assert.Equal(t, types.ChatCommunity, ChatTypeOf("status@broadcast"))
	assert.True(t, IsGroup("1203630@g.us"))
	assert.False(t, IsGroup("221700000000@s.whatsapp.net"))
}

func TestUserJID(t *testing.T) {
	assert.Equal(t, "221700000000@s.whatsapp.net", UserJID("+221 700000000"))
	assert.Equal(t, "221700000000", User(UserJID("221700000000")))
}
