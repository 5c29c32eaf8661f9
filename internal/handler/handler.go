// Package handler exposes the session registry over HTTP. Routes and
// payloads follow the bridge API: request validation happens here,
// every decision belongs to the session core.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"telegram-bridge/internal/session"
)

type Handler struct {
	manager *session.Manager

	// Default Telegram application credentials, applied when a
	// session-creation request omits its own.
	defaultAPIID   int
	defaultAPIHash string
}

func NewHandler(manager *session.Manager, defaultAPIID int, defaultAPIHash string) *Handler {
	return &Handler{
		manager:        manager,
		defaultAPIID:   defaultAPIID,
		defaultAPIHash: defaultAPIHash,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.POST("/sessions/start", h.StartSession)

	sessions := router.Group("/sessions/:session_id")
	sessions.GET("/qr", h.GetQR)
	sessions.POST("/verify", h.VerifyCode)
	sessions.GET("/status", h.GetStatus)
	sessions.GET("/dialogs", h.GetDialogs)
	sessions.GET("/messages/:chat_id", h.GetMessages)
	sessions.POST("/send", h.SendMessage)
	sessions.POST("/send-by-phone", h.SendMessageByPhone)
	sessions.POST("/contacts/import", h.ImportContact)
	sessions.POST("/webhook", h.SetWebhook)
	sessions.DELETE("", h.StopSession)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Telegram Bridge",
		"version": "1.0.0",
		"status":  "running",
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// writeError maps core errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
	case errors.Is(err, session.ErrPhoneRequired),
		errors.Is(err, session.ErrInvalidCode),
		errors.Is(err, session.ErrPasswordNeeded),
		errors.Is(err, session.ErrAuthTimeout),
		errors.Is(err, session.ErrWrongAuthMethod),
		errors.Is(err, session.ErrNotConnected):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	}
}
