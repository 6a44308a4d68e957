package core

import "github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessages delivers the re-resolved ordered message list of a
	// conversation. Sent to a client on subscribe and to every subscriber
	// after each message mutation: the live-query push.
	EventMessages EventKind = iota
	// EventUnread delivers the receiving client's unread count for a
	// conversation.
	EventUnread
	// EventTyping delivers the set of users currently typing in a
	// conversation.
	EventTyping
	// EventError notifies the issuing client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind           EventKind
	ConversationID int64
	Messages       []*store.Message // for EventMessages
	Unread         int              // for EventUnread
	Typists        []int64          // for EventTyping
	Error          *CoreError       // for EventError
}
