package core

// Client is a connected viewer as seen by the core layer. One client is one
// device session; a user may hold several.
type Client struct {
	ID            string
	UserID        int64
	Commands      chan *Command
	Events        chan *Event
	Subscriptions map[int64]struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, userID int64) *Client {
	return &Client{
		ID:            id,
		UserID:        userID,
		Commands:      make(chan *Command, 8),
		Events:        make(chan *Event, 8),
		Subscriptions: make(map[int64]struct{}),
	}
}
