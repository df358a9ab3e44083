package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/telnet2/wamux/pkg/types"
)

func TestConvertContent(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want types.Content
	}{
		{"nil", nil, types.Content{Kind: types.KindOther}},
		{"conversation", &waE2E.Message{Conversation: proto.String("!ping")},
			types.Content{Kind: types.KindConversation, Text: "!ping"}},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("!menu")}},
			types.Content{Kind: types.KindExtendedText, Text: "!menu"}},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("!sticker")}},
			types.Content{Kind: types.KindImage, Caption: "!sticker"}},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")}},
			types.Content{Kind: types.KindVideo, Caption: "clip"}},
		{"buttons", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{SelectedButtonID: proto.String("!ping")}},
			types.Content{Kind: types.KindButtonsResponse, SelectedID: "!ping"}},
		{"list", &waE2E.Message{ListResponseMessage: &waE2E.ListResponseMessage{
			SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{SelectedRowID: proto.String("!mode")},
		}}, types.Content{Kind: types.KindListResponse, SelectedID: "!mode"}},
		{"template", &waE2E.Message{TemplateButtonReplyMessage: &waE2E.TemplateButtonReplyMessage{SelectedID: proto.String("!session")}},
			types.Content{Kind: types.KindTemplateButtonReply, SelectedID: "!session"}},
		{"interactive", &waE2E.Message{InteractiveResponseMessage: &waE2E.InteractiveResponseMessage{
			InteractiveResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage_{
				NativeFlowResponseMessage: &waE2E.InteractiveResponseMessage_NativeFlowResponseMessage{
					ParamsJSON: proto.String(`{"id":"!ping"}`),
				},
			},
		}}, types.Content{Kind: types.KindInteractiveResponse, ParamsJSON: `{"id":"!ping"}`}},
		{"context only", &waE2E.Message{MessageContextInfo: &waE2E.MessageContextInfo{}},
			types.Content{Kind: types.KindContextInfo}},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			types.Content{Kind: types.KindOther}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertContent(tt.msg))
		})
	}
}

func TestConvertMessage(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := &events.Message{
		Info: watypes.MessageInfo{
			MessageSource: watypes.MessageSource{
				Chat:    watypes.NewJID("120363000000000000", watypes.GroupServer),
				Sender:  watypes.NewADJID("221700000000", 0, 12),
				IsGroup: true,
			},
			ID:        "3EB0ABC",
			PushName:  "Awa",
			Timestamp: ts,
		},
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("!sudo add"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:    proto.String("3EB0QUOTED"),
				Participant: proto.String("221711111111@s.whatsapp.net"),
			},
		}},
	}

	msg := convertMessage(evt)
	assert.Equal(t, "3EB0ABC", msg.ID)
	assert.Equal(t, "120363000000000000@g.us", msg.Chat)
	assert.Equal(t, "221700000000@s.whatsapp.net", msg.Sender, "device part is dropped")
	assert.False(t, msg.FromMe)
	assert.Equal(t, "Awa", msg.PushName)
	assert.Equal(t, ts, msg.Timestamp)
	assert.Equal(t, "!sudo add", msg.Content.Text)
	assert.Equal(t, "221711111111@s.whatsapp.net", msg.QuotedSender)
	assert.Same(t, evt, msg.Raw)
}

func TestQuotedSender_RequiresStanza(t *testing.T) {
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String("hi @x"),
		ContextInfo: &waE2E.ContextInfo{Participant: proto.String("221711111111@s.whatsapp.net")},
	}}
	assert.Empty(t, quotedSender(msg))
	assert.Empty(t, quotedSender(&waE2E.Message{Conversation: proto.String("x")}))
}

func TestBuildMessage(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	t.Run("plain", func(t *testing.T) {
		m, err := buildMessage(types.Payload{Text: "hello"}, now)
		require.NoError(t, err)
		assert.Equal(t, "hello", m.GetConversation())
	})

	t.Run("quote and mentions", func(t *testing.T) {
		m, err := buildMessage(types.Payload{
			Text:     "hi @221711111111",
			Mentions: []string{"221711111111@s.whatsapp.net"},
			Quote:    &types.MessageKey{ID: "Q1", Chat: "g@g.us", Sender: "221700000000@s.whatsapp.net"},
		}, now)
		require.NoError(t, err)
		ext := m.GetExtendedTextMessage()
		require.NotNil(t, ext)
		assert.Equal(t, "hi @221711111111", ext.GetText())
		ci := ext.GetContextInfo()
		assert.Equal(t, []string{"221711111111@s.whatsapp.net"}, ci.GetMentionedJID())
		assert.Equal(t, "Q1", ci.GetStanzaID())
		assert.Equal(t, "221700000000@s.whatsapp.net", ci.GetParticipant())
		assert.NotNil(t, ci.GetQuotedMessage())
	})

	t.Run("reaction", func(t *testing.T) {
		m, err := buildMessage(types.Payload{
			Reaction: "❌",
			ReactTo:  &types.MessageKey{ID: "M1", Chat: "g@g.us", Sender: "221700000000@s.whatsapp.net"},
		}, now)
		require.NoError(t, err)
		r := m.GetReactionMessage()
		require.NotNil(t, r)
		assert.Equal(t, "❌", r.GetText())
		assert.Equal(t, int64(1700000000000), r.GetSenderTimestampMS())
		assert.Equal(t, "M1", r.GetKey().GetID())
		assert.Equal(t, "g@g.us", r.GetKey().GetRemoteJID())
		assert.Equal(t, "221700000000@s.whatsapp.net", r.GetKey().GetParticipant())
	})

	t.Run("reaction in direct chat has no participant", func(t *testing.T) {
		chat := "221700000000@s.whatsapp.net"
		m, err := buildMessage(types.Payload{Reaction: "📝", ReactTo: &types.MessageKey{ID: "M2", Chat: chat, Sender: chat}}, now)
		require.NoError(t, err)
		assert.Empty(t, m.GetReactionMessage().GetKey().GetParticipant())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := buildMessage(types.Payload{}, now)
		assert.Error(t, err)
	})

	t.Run("bad mention", func(t *testing.T) {
		_, err := buildMessage(types.Payload{Text: "x", Mentions: []string{"221:x@s.whatsapp.net"}}, now)
		assert.Error(t, err)
	})
}

func TestConvertGroup(t *testing.T) {
	info := &watypes.GroupInfo{
		JID:       watypes.NewJID("120363000000000000", watypes.GroupServer),
		OwnerJID:  watypes.NewJID("221700000000", watypes.DefaultUserServer),
		GroupName: watypes.GroupName{Name: "Team"},
		Participants: []watypes.GroupParticipant{
			{JID: watypes.NewJID("221700000000", watypes.DefaultUserServer), IsAdmin: true, IsSuperAdmin: true},
			{JID: watypes.NewJID("221711111111", watypes.DefaultUserServer), IsAdmin: true},
			{JID: watypes.NewJID("1234567890", watypes.HiddenUserServer), PhoneNumber: watypes.NewJID("221722222222", watypes.DefaultUserServer)},
		},
	}

	meta := convertGroup(info)
	assert.Equal(t, "120363000000000000@g.us", meta.ID)
	assert.Equal(t, "Team", meta.Subject)
	assert.Equal(t, "221700000000@s.whatsapp.net", meta.Owner)
	require.Len(t, meta.Participants, 3)
	assert.Equal(t, "superadmin", meta.Participants[0].Role)
	assert.Equal(t, "admin", meta.Participants[1].Role)
	assert.Empty(t, meta.Participants[2].Role)
	assert.Equal(t, "1234567890@lid", meta.Participants[2].ID)
	assert.Equal(t, "221722222222@s.whatsapp.net", meta.Participants[2].PhoneNumber)
}
