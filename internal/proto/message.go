package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSubscribe   = "subscribe"
	InboundTypeUnsubscribe = "unsubscribe"
	InboundTypeSend        = "send"
	InboundTypeEdit        = "edit"
	InboundTypeDelete      = "delete"
	InboundTypeReact       = "react"
	InboundTypeTyping      = "typing"
	InboundTypeRead        = "read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameMessages = "messages"
	EventNameUnread   = "unread"
	EventNameTyping   = "typing"
)

// SubscribeData requests live delivery of one conversation's state.
type SubscribeData struct {
	ConversationID int64 `json:"conversation_id"`
}

// SendData is a new message from the client.
type SendData struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	ReplyTo        *int64 `json:"reply_to,omitempty"`
}

// EditData replaces the content of an owned message. The affected
// conversation is resolved server-side from the message id.
type EditData struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteData soft-deletes an owned message.
type DeleteData struct {
	MessageID int64 `json:"message_id"`
}

// ReactData toggles the sender's emoji reaction on a message.
type ReactData struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// TypingData raises or clears the sender's typing flag.
type TypingData struct {
	ConversationID int64 `json:"conversation_id"`
	Typing         bool  `json:"typing"`
}

// ReadData confirms the sender's read state. LastSeen optionally carries the
// newest message id the client has rendered; zero requests the unconditional
// reset.
type ReadData struct {
	ConversationID int64 `json:"conversation_id"`
	LastSeen       int64 `json:"last_seen,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessageView is one message row as rendered for a particular viewer.
// Deleted messages keep their position but carry no content unless the
// viewer is the sender.
type MessageView struct {
	ID             int64              `json:"id"`
	ConversationID int64              `json:"conversation_id"`
	SenderID       int64              `json:"sender_id"`
	Content        string             `json:"content"`
	ReplyTo        *int64             `json:"reply_to,omitempty"`
	TS             int64              `json:"ts"`
	IsDeleted      bool               `json:"is_deleted"`
	Reactions      map[string][]int64 `json:"reactions"`
}

// EventMessages carries the re-resolved ordered message list.
type EventMessages struct {
	ConversationID int64         `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}

// EventUnread carries the viewer's unread count for a conversation.
type EventUnread struct {
	ConversationID int64 `json:"conversation_id"`
	Unread         int   `json:"unread"`
}

// EventTyping carries the set of users currently typing.
type EventTyping struct {
	ConversationID int64   `json:"conversation_id"`
	Typists        []int64 `json:"typists"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
