package core

// Feed groups clients subscribed to the same conversation's live query.
type Feed struct {
	ConversationID int64
	clients        map[*Client]struct{}
}

// NewFeed constructs a feed with no subscribers.
func NewFeed(conversationID int64) *Feed {
	return &Feed{
		ConversationID: conversationID,
		clients:        make(map[*Client]struct{}),
	}
}

// AddClient subscribes a client. Returns true if newly added.
func (f *Feed) AddClient(c *Client) bool {
	if _, exists := f.clients[c]; exists {
		return false
	}
	f.clients[c] = struct{}{}
	return true
}

// RemoveClient unsubscribes a client. Returns true if removed.
func (f *Feed) RemoveClient(c *Client) bool {
	if _, exists := f.clients[c]; !exists {
		return false
	}
	delete(f.clients, c)
	return true
}

// Broadcast sends an event to every subscriber.
func (f *Feed) Broadcast(event *Event) {
	for client := range f.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Each calls fn for every subscriber. Used when the event payload depends on
// the receiving client, e.g. per-user unread counts.
func (f *Feed) Each(fn func(*Client)) {
	for client := range f.clients {
		fn(client)
	}
}

// Empty returns true if no clients are subscribed.
func (f *Feed) Empty() bool {
	return len(f.clients) == 0
}
