package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSubscribe starts live delivery of a conversation's state.
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe stops live delivery.
	CommandUnsubscribe
	// CommandSendMessage sends a message into a conversation.
	CommandSendMessage
	// CommandEditMessage replaces the content of an owned message.
	CommandEditMessage
	// CommandDeleteMessage soft-deletes an owned message.
	CommandDeleteMessage
	// CommandToggleReaction flips the sender's emoji reaction on a message.
	CommandToggleReaction
	// CommandSetTyping raises or clears the typing flag.
	CommandSetTyping
	// CommandMarkRead confirms the viewer's read state for a conversation.
	CommandMarkRead
)

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	ConversationID int64
	MessageID      int64
	Content        string
	ReplyTo        *int64
	Emoji          string
	Typing         bool
	// LastSeen carries the watermark for CommandMarkRead; zero means
	// unconditional reset.
	LastSeen int64
}
