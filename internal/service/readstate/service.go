package readstate

import (
	"context"
	"fmt"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// Service confirms a user's read state for a conversation. The trigger point
// (scroll-to-bottom, focus gain) is the caller's choice; this service only
// performs the reset.
type Service struct {
	store store.Store
}

// New creates a new read-state service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// MarkRead unconditionally clears the user's unread counter for the
// conversation. A send racing with this call may have its increment erased
// before the user actually saw the message; callers that care pass their
// last seen message id to MarkReadThrough instead.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID int64) error {
	if err := s.store.ResetUnread(ctx, userID, conversationID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkReadThrough clears only the unread credit for messages at or before
// lastSeenMessageID. Messages that arrived after that point stay counted.
func (s *Service) MarkReadThrough(ctx context.Context, conversationID, userID, lastSeenMessageID int64) error {
	if err := s.store.RecountUnreadAfter(ctx, userID, conversationID, lastSeenMessageID); err != nil {
		return fmt.Errorf("mark read through %d: %w", lastSeenMessageID, err)
	}
	return nil
}

// Unread reports the user's current unread count for a conversation.
func (s *Service) Unread(ctx context.Context, conversationID, userID int64) (int, error) {
	count, err := s.store.GetUnreadCount(ctx, userID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("get unread: %w", err)
	}
	return count, nil
}
