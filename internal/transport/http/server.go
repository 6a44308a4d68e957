package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/auth"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/config"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/core"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/messages"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/presence"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/readstate"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// Services bundles the application services the transport exposes.
type Services struct {
	Auth     *auth.Service
	Messages *messages.Service
	Reads    *readstate.Service
	Typing   *presence.Tracker
}

// NewServer builds the HTTP server: REST API plus the WebSocket entry of the
// live-query push channel.
func NewServer(hub *core.Hub, svc Services, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	authHandlers := NewAuthHandlers(svc.Auth, logger)
	userHandlers := NewUserHandlers(st, logger)
	convHandlers := NewConversationHandlers(st, svc.Reads, svc.Typing, hub, logger)
	msgHandlers := NewMessageHandlers(svc.Messages, st, hub, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.POST("/api/register", authHandlers.Register)
	router.POST("/api/login", authHandlers.Login)

	api := router.Group("/api", AuthMiddleware(svc.Auth, logger))
	{
		api.GET("/users/me", userHandlers.Me)
		api.GET("/users/:id", userHandlers.GetUser)
		api.POST("/users/presence", userHandlers.SetPresence)

		api.POST("/conversations", convHandlers.CreateConversation)
		api.GET("/conversations", convHandlers.ListConversations)
		api.GET("/conversations/:id", convHandlers.GetConversation)
		api.POST("/conversations/:id/read", convHandlers.MarkRead)
		api.GET("/conversations/:id/typing", convHandlers.GetTyping)
		api.POST("/conversations/:id/typing", convHandlers.SetTyping)

		api.GET("/conversations/:id/messages", msgHandlers.ListMessages)
		api.POST("/conversations/:id/messages", msgHandlers.SendMessage)
		api.PATCH("/messages/:id", msgHandlers.EditMessage)
		api.DELETE("/messages/:id", msgHandlers.DeleteMessage)
		api.POST("/messages/:id/reactions", msgHandlers.ToggleReaction)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, svc.Auth, st, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
