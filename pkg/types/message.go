package types

import "time"

// ContentKind names the transport message shape a text was taken from.
type ContentKind string

const (
	KindConversation        ContentKind = "conversation"
	KindExtendedText        ContentKind = "extended_text"
	KindImage               ContentKind = "image"
	KindVideo               ContentKind = "video"
	KindButtonsResponse     ContentKind = "buttons_response"
	KindListResponse        ContentKind = "list_response"
	KindTemplateButtonReply ContentKind = "template_button_reply"
	KindInteractiveResponse ContentKind = "interactive_response"
	KindContextInfo         ContentKind = "context_info"
	KindOther               ContentKind = "other"
)

// Content carries the text-bearing fields of an inbound message.
type Content struct {
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Caption    string      `json:"caption,omitempty"`
	SelectedID string      `json:"selectedId,omitempty"`
	ParamsJSON string      `json:"paramsJson,omitempty"`
}

// Message is a transport-neutral inbound chat message.
type Message struct {
	ID           string    `json:"id"`
	Chat         string    `json:"chat"`
	Sender       string    `json:"sender"`
	FromMe       bool      `json:"fromMe"`
	PushName     string    `json:"pushName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Content      Content   `json:"content"`
	QuotedSender string    `json:"quotedSender,omitempty"`

	// Raw is the transport-native event, passed through to handlers untouched.
	Raw any `json:"-"`
}

// Key returns the key identifying this message for reactions and quotes.
func (m *Message) Key() MessageKey {
	return MessageKey{ID: m.ID, Chat: m.Chat, Sender: m.Sender, FromMe: m.FromMe}
}

// MessageKey addresses a previously received message.
type MessageKey struct {
	ID     string `json:"id"`
	Chat   string `json:"chat"`
	Sender string `json:"sender"`
	FromMe bool   `json:"fromMe"`
}

// Payload is an outbound message. Exactly one of Text or Reaction is expected.
type Payload struct {
	Text     string      `json:"text,omitempty"`
	Mentions []string    `json:"mentions,omitempty"`
	Quote    *MessageKey `json:"quote,omitempty"`
	Reaction string      `json:"reaction,omitempty"`
	ReactTo  *MessageKey `json:"reactTo,omitempty"`
}
