package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/core"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/proto"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/presence"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/readstate"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints:
// creation, listing, read-state confirmation, and typing presence.
type ConversationHandlers struct {
	store  store.Store
	reads  *readstate.Service
	typing *presence.Tracker
	hub    *core.Hub
	log    *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, reads *readstate.Service, typing *presence.Tracker, hub *core.Hub, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store:  st,
		reads:  reads,
		typing: typing,
		hub:    hub,
		log:    logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
// Participants must include the caller; the set is immutable afterwards.
type CreateConversationRequest struct {
	Name         *string `json:"name,omitempty"`
	IsGroup      bool    `json:"is_group"`
	Participants []int64 `json:"participants" binding:"required,min=2"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID            int64              `json:"id"`
	Name          *string            `json:"name,omitempty"`
	IsGroup       bool               `json:"is_group"`
	Participants  []int64            `json:"participants"`
	LastMessageID *int64             `json:"last_message_id,omitempty"`
	LastMessage   *proto.MessageView `json:"last_message,omitempty"`
	Unread        int                `json:"unread"`
	UpdatedAt     int64              `json:"updated_at"`
}

// MarkReadRequest represents the read confirmation request body. LastSeen
// optionally carries the newest message id the client has rendered.
type MarkReadRequest struct {
	LastSeen int64 `json:"last_seen,omitempty"`
}

// TypingRequest represents the typing flag request body.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// TypingResponse lists users currently typing in a conversation.
type TypingResponse struct {
	Typists []int64 `json:"typists"`
}

// CreateConversation handles conversation creation.
// POST /api/conversations
func (h *ConversationHandlers) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	caller := false
	distinct := make(map[int64]struct{}, len(req.Participants))
	for _, id := range req.Participants {
		distinct[id] = struct{}{}
		if id == userID {
			caller = true
		}
	}
	if !caller {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participants must include the caller"})
		return
	}
	if len(distinct) < 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at least 2 distinct participants required"})
		return
	}

	conv, err := h.store.CreateConversation(c.Request.Context(), req.Name, req.IsGroup, req.Participants)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("conversation_id", conv.ID).Int("participants", len(conv.Participants)).Msg("conversation created")
	c.JSON(http.StatusCreated, ConversationResponse{
		ID:           conv.ID,
		Name:         conv.Name,
		IsGroup:      conv.IsGroup,
		Participants: conv.Participants,
		UpdatedAt:    conv.UpdatedAt.UnixMilli(),
	})
}

// ListConversations handles the sidebar query: the caller's conversations
// newest-activity first, with unread counts and last message previews.
// GET /api/conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	sums, err := h.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationResponse, 0, len(sums))
	for _, sum := range sums {
		resp := ConversationResponse{
			ID:            sum.ID,
			Name:          sum.Name,
			IsGroup:       sum.IsGroup,
			Participants:  sum.Participants,
			LastMessageID: sum.LastMessageID,
			Unread:        sum.Unread,
			UpdatedAt:     sum.UpdatedAt.UnixMilli(),
		}
		if sum.LastMessage != nil {
			view := messageView(sum.LastMessage, userID)
			resp.LastMessage = &view
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, response)
}

// GetConversation handles fetching one conversation.
// GET /api/conversations/:id
func (h *ConversationHandlers) GetConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.store.GetConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to get conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	unread, err := h.reads.Unread(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to get unread")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ConversationResponse{
		ID:            conv.ID,
		Name:          conv.Name,
		IsGroup:       conv.IsGroup,
		Participants:  conv.Participants,
		LastMessageID: conv.LastMessageID,
		Unread:        unread,
		UpdatedAt:     conv.UpdatedAt.UnixMilli(),
	})
}

// MarkRead handles read confirmation for a conversation.
// POST /api/conversations/:id/read
func (h *ConversationHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req MarkReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	var err error
	if req.LastSeen > 0 {
		err = h.reads.MarkReadThrough(c.Request.Context(), conversationID, userID, req.LastSeen)
	} else {
		err = h.reads.MarkRead(c.Request.Context(), conversationID, userID)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to mark read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.Invalidate(conversationID)
	c.Status(http.StatusNoContent)
}

// SetTyping handles raising or clearing the caller's typing flag.
// POST /api/conversations/:id/typing
func (h *ConversationHandlers) SetTyping(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.typing.SetTyping(conversationID, userID, req.Typing)
	h.hub.InvalidateTyping(conversationID)
	c.Status(http.StatusNoContent)
}

// GetTyping lists users currently typing in a conversation. Participants
// only, same as the live subscribe path.
// GET /api/conversations/:id/typing
func (h *ConversationHandlers) GetTyping(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !requireMember(c, h.store, h.log, conversationID, userID) {
		return
	}

	c.JSON(http.StatusOK, TypingResponse{Typists: h.typing.Typists(conversationID)})
}

// pathID parses a numeric path parameter, writing a 400 response on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}
