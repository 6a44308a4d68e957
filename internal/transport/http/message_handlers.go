package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/core"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/proto"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/messages"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	messages *messages.Service
	store    store.Store
	hub      *core.Hub
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, st store.Store, hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		messages: svc,
		store:    st,
		hub:      hub,
		log:      logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReactionRequest represents the reaction toggle request body.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ListMessages returns the conversation's full ordered history, soft-deleted
// rows included with content masked for non-owners.
// GET /api/conversations/:id/messages
func (h *MessageHandlers) ListMessages(c *gin.Context) {
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

	msgs, err := h.messages.List(c.Request.Context(), conversationID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	views := make([]proto.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView(m, userID))
	}
	c.JSON(http.StatusOK, views)
}

// SendMessage handles sending a message into a conversation.
// POST /api/conversations/:id/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), conversationID, userID, req.Content, req.ReplyTo)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Invalidate(conversationID)
	c.JSON(http.StatusCreated, messageView(msg, userID))
}

// EditMessage handles replacing the content of an owned message.
// PATCH /api/messages/:id
func (h *MessageHandlers) EditMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.messages.Edit(c.Request.Context(), messageID, userID, req.Content); err != nil {
		h.writeServiceError(c, err)
		return
	}

	msg, err := h.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Invalidate(msg.ConversationID)
	c.JSON(http.StatusOK, messageView(msg, userID))
}

// DeleteMessage handles soft-deleting an owned message.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.messages.Delete(c.Request.Context(), messageID, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Invalidate(msg.ConversationID)
	c.JSON(http.StatusOK, messageView(msg, userID))
}

// ToggleReaction handles flipping the caller's emoji reaction on a message.
// POST /api/messages/:id/reactions
func (h *MessageHandlers) ToggleReaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.messages.ToggleReaction(c.Request.Context(), messageID, userID, req.Emoji); err != nil {
		h.writeServiceError(c, err)
		return
	}

	msg, err := h.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	h.hub.Invalidate(msg.ConversationID)
	c.JSON(http.StatusOK, messageView(msg, userID))
}

// writeServiceError maps the message service taxonomy onto HTTP statuses.
// Denied and NotFound are distinct on the wire, never a silent success.
func (h *MessageHandlers) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, messages.ErrDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "denied"})
	case errors.Is(err, messages.ErrInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict, retry"})
	default:
		h.log.Error().Err(err).Msg("message operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
