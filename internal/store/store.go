package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when the store detects a concurrent-update race
// (e.g. a busy/locked database). Callers may retry the operation once.
var ErrConflict = errors.New("conflict")

// User represents a chat participant synced from the identity provider.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	AvatarURL    string
	IsOnline     bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// Conversation is a container of participants and their messages.
type Conversation struct {
	ID            int64
	Name          *string // nil for unnamed direct conversations
	IsGroup       bool
	LastMessageID *int64 // most recently inserted message, nil if none yet
	UpdatedAt     time.Time
	CreatedAt     time.Time
	Participants  []int64
}

// Message is a persisted chat message. Deletion is logical: the row and its
// content survive, flagged via IsDeleted.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	ReplyTo        *int64 // weak reference, may dangle after the target is deleted
	Timestamp      time.Time
	IsDeleted      bool
	Reactions      map[string][]int64 // emoji -> user ids, unique per user per emoji
}

// UnreadCounter tracks messages a user has not yet confirmed reading
// in one conversation. At most one row per (user, conversation).
type UnreadCounter struct {
	UserID         int64
	ConversationID int64
	Count          int
}

// ConversationSummary is a conversation with the denormalized fields the
// sidebar query needs: last message preview and the viewer's unread count.
type ConversationSummary struct {
	Conversation
	LastMessage *Message
	Unread      int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByName retrieves a user by name.
	GetUserByName(ctx context.Context, name string) (*User, error)

	// SetPresence updates the online flag and stamps last_seen_at.
	SetPresence(ctx context.Context, userID int64, online bool) error
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation with the given participants.
	// The participant set is immutable after creation and must have size >= 2.
	CreateConversation(ctx context.Context, name *string, isGroup bool, participants []int64) (*Conversation, error)

	// GetConversationByID retrieves a conversation with its participants.
	GetConversationByID(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations lists a user's conversations ordered by updated_at
	// descending, each with the caller's unread count and last message attached.
	ListConversations(ctx context.Context, userID int64) ([]*ConversationSummary, error)

	// ListParticipants lists participant user ids of a conversation.
	ListParticipants(ctx context.Context, conversationID int64) ([]int64, error)
}

// MessageStore handles message persistence and the aggregates a message
// mutation maintains.
type MessageStore interface {
	// SendMessage inserts a message and, in the same transaction, repoints the
	// conversation's last message, bumps updated_at, and increments the unread
	// counter of every participant except the sender. Either everything
	// commits or nothing does.
	SendMessage(ctx context.Context, conversationID, senderID int64, content string, replyTo *int64) (*Message, error)

	// GetMessageByID retrieves a single message with its reactions.
	GetMessageByID(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns all messages of a conversation, soft-deleted rows
	// included, ascending by timestamp with insertion order breaking ties.
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)

	// MarkMessageDeleted flags a message as deleted. Content is retained.
	MarkMessageDeleted(ctx context.Context, id int64) error

	// UpdateMessageContent replaces the content of a message in place.
	UpdateMessageContent(ctx context.Context, id int64, content string) error

	// ToggleReaction flips the user's membership in the emoji bucket of a
	// message. Returns true if the reaction was added, false if removed.
	// Only the toggling user's row is touched, so concurrent toggles by
	// different users on the same bucket never overwrite each other.
	ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error)
}

// UnreadStore handles unread counter bookkeeping.
type UnreadStore interface {
	// GetUnreadCount returns the counter value, 0 if no row exists.
	GetUnreadCount(ctx context.Context, userID, conversationID int64) (int, error)

	// ResetUnread clears the user's counter for the conversation.
	ResetUnread(ctx context.Context, userID, conversationID int64) error

	// RecountUnreadAfter rebuilds the counter from message history: the new
	// value is the number of messages from other senders strictly newer than
	// lastSeenMessageID. Doubles as the out-of-band repair for a partially
	// applied fan-out.
	RecountUnreadAfter(ctx context.Context, userID, conversationID, lastSeenMessageID int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	UnreadStore

	// Close releases underlying resources.
	Close() error
}
