package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL bounds how long a typing flag survives without a refresh. The
// client clears the flag itself after ~1.5s of quiet; the TTL only covers
// clients that crash or disconnect before sending the follow-up false.
const DefaultTTL = 5 * time.Second

type key struct {
	conversationID int64
	userID         int64
}

// Tracker holds ephemeral typing flags per (user, conversation). State is
// in-memory only; it is not meant to survive restarts. Writes are
// last-write-wins per key.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[key]time.Time // expiry per typing flag
}

// NewTracker creates a tracker whose entries expire after ttl.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[key]time.Time),
	}
}

// SetTyping upserts the typing flag for the pair. typing=false removes the
// entry immediately; typing=true stores a fresh expiry.
func (t *Tracker) SetTyping(conversationID, userID int64, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{conversationID: conversationID, userID: userID}
	if !typing {
		delete(t.entries, k)
		return
	}
	t.entries[k] = t.now().Add(t.ttl)
}

// Typists returns the ids of users currently marked typing in a
// conversation, expired entries filtered out and pruned.
func (t *Tracker) Typists(conversationID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var ids []int64
	for k, expiry := range t.entries {
		if !expiry.After(now) {
			delete(t.entries, k)
			continue
		}
		if k.conversationID == conversationID {
			ids = append(ids, k.userID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
