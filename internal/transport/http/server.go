package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/auth"
	"github.com/inkconnect/inkconnect-server/internal/config"
	"github.com/inkconnect/inkconnect-server/internal/realtime"
	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
)

// NewServer builds the HTTP server: REST API, health check, and both
// websocket transport endpoints.
func NewServer(gw *realtime.Gateway, authService *auth.Service, svc *messaging.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	router.POST("/api/auth/register", apiHandlers.Register)
	router.POST("/api/auth/login", apiHandlers.Login)
	router.GET("/api/auth/me", AuthMiddleware(authService, logger), apiHandlers.Me)

	messageHandlers := NewMessageHandlers(svc, gw, logger)
	messages := router.Group("/api/messages")
	messages.Use(AuthMiddleware(authService, logger))
	{
		messages.GET("/conversations", messageHandlers.ListConversations)
		messages.GET("/unread-count", messageHandlers.UnreadCount)
		messages.POST("/conversations/:userId", messageHandlers.StartConversation)
		messages.GET("/conversations/:conversationId/messages", messageHandlers.ListMessages)
		messages.PUT("/conversations/:conversationId/read", messageHandlers.MarkRead)
		messages.POST("", messageHandlers.SendMessage)
		messages.DELETE("/:messageId", messageHandlers.DeleteMessage)
	}

	// Two transport flavors, one gateway. Sessions authenticate in-band.
	router.GET("/ws/channel", gin.WrapH(NewChannelHandler(gw, cfg.EventRateLimit, logger)))
	router.GET("/ws/stream", gin.WrapH(NewStreamHandler(gw, cfg.EventRateLimit, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
