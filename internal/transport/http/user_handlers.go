package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// UserHandlers provides HTTP handlers for user endpoints.
type UserHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	IsOnline   bool   `json:"is_online"`
	LastSeenAt int64  `json:"last_seen_at"`
}

// PresenceRequest represents the presence update request body.
type PresenceRequest struct {
	Online bool `json:"online"`
}

// Me returns the authenticated user's record.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:         user.ID,
		Name:       user.Name,
		AvatarURL:  user.AvatarURL,
		IsOnline:   user.IsOnline,
		LastSeenAt: user.LastSeenAt.UnixMilli(),
	})
}

// GetUser returns one user's public record.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:         user.ID,
		Name:       user.Name,
		AvatarURL:  user.AvatarURL,
		IsOnline:   user.IsOnline,
		LastSeenAt: user.LastSeenAt.UnixMilli(),
	})
}

// SetPresence updates the caller's online flag and last-seen timestamp.
// POST /api/users/presence
func (h *UserHandlers) SetPresence(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.SetPresence(c.Request.Context(), userID, req.Online); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to set presence")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
