package whatsapp

import (
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/telnet2/wamux/pkg/types"
)

// convertMessage maps a whatsmeow message event onto the transport-neutral
// message. The event itself is kept as Raw.
func convertMessage(evt *events.Message) *types.Message {
	info := evt.Info
	return &types.Message{
		ID:           info.ID,
		Chat:         info.Chat.ToNonAD().String(),
		Sender:       jidString(info.Sender),
		FromMe:       info.IsFromMe,
		PushName:     info.PushName,
		Timestamp:    info.Timestamp,
		Content:      convertContent(evt.Message),
		QuotedSender: quotedSender(evt.Message),
		Raw:          evt,
	}
}

// convertContent picks the first text-bearing shape of msg.
func convertContent(msg *waE2E.Message) types.Content {
	switch {
	case msg == nil:
		return types.Content{Kind: types.KindOther}
	case msg.Conversation != nil:
		return types.Content{Kind: types.KindConversation, Text: msg.GetConversation()}
	case msg.ExtendedTextMessage != nil:
		return types.Content{Kind: types.KindExtendedText, Text: msg.GetExtendedTextMessage().GetText()}
	case msg.ImageMessage != nil:
		return types.Content{Kind: types.KindImage, Caption: msg.GetImageMessage().GetCaption()}
	case msg.VideoMessage != nil:
		return types.Content{Kind: types.KindVideo, Caption: msg.GetVideoMessage().GetCaption()}
	case msg.ButtonsResponseMessage != nil:
		return types.Content{Kind: types.KindButtonsResponse, SelectedID: msg.GetButtonsResponseMessage().GetSelectedButtonID()}
	case msg.ListResponseMessage != nil:
		return types.Content{Kind: types.KindListResponse, SelectedID: msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()}
	case msg.TemplateButtonReplyMessage != nil:
		return types.Content{Kind: types.KindTemplateButtonReply, SelectedID: msg.GetTemplateButtonReplyMessage().GetSelectedID()}
	case msg.InteractiveResponseMessage != nil:
		return types.Content{
			Kind:       types.KindInteractiveResponse,
			ParamsJSON: msg.GetInteractiveResponseMessage().GetNativeFlowResponseMessage().GetParamsJSON(),
		}
	case msg.MessageContextInfo != nil:
		return types.Content{Kind: types.KindContextInfo}
	default:
		return types.Content{Kind: types.KindOther}
	}
}

// quotedSender returns the author of the message msg replies to, if any.
func quotedSender(msg *waE2E.Message) string {
	var ci *waE2E.ContextInfo
	switch {
	case msg.GetExtendedTextMessage() != nil:
		ci = msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		ci = msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		ci = msg.GetVideoMessage().GetContextInfo()
	}
	if ci.GetStanzaID() == "" {
		return ""
	}
	return ci.GetParticipant()
}

// buildMessage turns an outbound payload into a protocol message.
func buildMessage(p types.Payload, now time.Time) (*waE2E.Message, error) {
	if p.ReactTo != nil {
		return &waE2E.Message{
			ReactionMessage: &waE2E.ReactionMessage{
				Key:               messageKey(*p.ReactTo),
				Text:              proto.String(p.Reaction),
				SenderTimestampMS: proto.Int64(now.UnixMilli()),
			},
		}, nil
	}
	if p.Text == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if p.Quote == nil && len(p.Mentions) == 0 {
		return &waE2E.Message{Conversation: proto.String(p.Text)}, nil
	}

	ci := &waE2E.ContextInfo{}
	for _, m := range p.Mentions {
		jid, err := watypes.ParseJID(m)
		if err != nil {
			return nil, fmt.Errorf("invalid mention %q: %w", m, err)
		}
		ci.MentionedJID = append(ci.MentionedJID, jid.String())
	}
	if q := p.Quote; q != nil {
		ci.StanzaID = proto.String(q.ID)
		if q.Sender != "" {
			ci.Participant = proto.String(q.Sender)
		}
		ci.QuotedMessage = &waE2E.Message{Conversation: proto.String("")}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(p.Text),
			ContextInfo: ci,
		},
	}, nil
}

func messageKey(k types.MessageKey) *waCommon.MessageKey {
	key := &waCommon.MessageKey{
		RemoteJID: proto.String(k.Chat),
		FromMe:    proto.Bool(k.FromMe),
		ID:        proto.String(k.ID),
	}
	if !k.FromMe && k.Sender != "" && k.Sender != k.Chat {
		key.Participant = proto.String(k.Sender)
	}
	return key
}

// convertGroup maps whatsmeow group info onto GroupMetadata.
func convertGroup(info *watypes.GroupInfo) *types.GroupMetadata {
	meta := &types.GroupMetadata{
		ID:      info.JID.String(),
		Subject: info.GroupName.Name,
		Owner:   jidString(info.OwnerJID),
	}
	for _, p := range info.Participants {
		gp := types.GroupParticipant{
			ID:           jidString(p.JID),
			PhoneNumber:  jidString(p.PhoneNumber),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		}
		switch {
		case p.IsSuperAdmin:
			gp.Role = "superadmin"
		case p.IsAdmin:
			gp.Role = "admin"
		}
		meta.Participants = append(meta.Participants, gp)
	}
	return meta
}

// jidString renders a JID without its device part; the empty JID renders as "".
func jidString(jid watypes.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	return jid.ToNonAD().String()
}
