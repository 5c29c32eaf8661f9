package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"telegram-bridge/internal/session"
)

func (h *Handler) connectedSession(c *gin.Context) *session.Session {
	sess := h.manager.Get(c.Param("session_id"))
	if sess == nil {
		writeError(c, session.ErrSessionNotFound)
		return nil
	}

	if !sess.Transport().Connected() {
		writeError(c, session.ErrNotConnected)
		return nil
	}

	return sess
}

func intQuery(c *gin.Context, name string, def, min, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (h *Handler) GetDialogs(c *gin.Context) {
	sess := h.connectedSession(c)
	if sess == nil {
		return
	}

	limit := intQuery(c, "limit", 50, 1, 100)

	dialogs, err := sess.Transport().Dialogs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(dialogs))
	for _, d := range dialogs {
		item := gin.H{
			"id":           d.Chat.ID,
			"type":         d.Chat.Type,
			"title":        d.Chat.Title,
			"username":     d.Username,
			"unread_count": d.UnreadCount,
		}
		if d.LastMessage != nil {
			item["last_message"] = gin.H{
				"text": d.LastMessage.Text,
				"date": d.LastMessage.Date,
			}
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"dialogs": out})
}

func (h *Handler) GetMessages(c *gin.Context) {
	sess := h.connectedSession(c)
	if sess == nil {
		return
	}

	limit := intQuery(c, "limit", 50, 1, 100)
	offsetID := intQuery(c, "offset_id", 0, 0, 1<<30)

	messages, err := h.manager.History(
		c.Request.Context(),
		sess.ID,
		c.Param("chat_id"),
		limit,
		offsetID,
	)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		item := gin.H{
			"id":       m.ID,
			"text":     m.Text,
			"date":     m.Date,
			"outgoing": m.Outgoing,
		}
		if m.From != nil {
			item["from_user"] = gin.H{
				"id":         m.From.ID,
				"username":   m.From.Username,
				"first_name": m.From.FirstName,
			}
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{"messages": out})
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	sess := h.connectedSession(c)
	if sess == nil {
		return
	}

	msg, err := sess.Transport().SendMessage(c.Request.Context(), req.ChatID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": msg.ID,
		"date":       msg.Date,
	})
}

type sendByPhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

func (h *Handler) SendMessageByPhone(c *gin.Context) {
	var req sendByPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	sess := h.connectedSession(c)
	if sess == nil {
		return
	}

	ctx := c.Request.Context()

	user, err := sess.Transport().ResolvePhone(ctx, req.Phone)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": "User with phone " + req.Phone + " not found",
		})
		return
	}

	msg, err := sess.Transport().SendMessage(ctx, strconv.FormatInt(user.ID, 10), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": msg.ID,
		"date":       msg.Date,
		"phone":      req.Phone,
	})
}

type importContactRequest struct {
	Phone     string `json:"phone" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
}

func (h *Handler) ImportContact(c *gin.Context) {
	var req importContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	sess := h.connectedSession(c)
	if sess == nil {
		return
	}

	firstName := req.FirstName
	if firstName == "" {
		firstName = req.Name
	}

	user, err := sess.Transport().ImportContact(
		c.Request.Context(),
		req.Phone,
		firstName,
		req.LastName,
	)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": "User with phone " + req.Phone + " not found or could not be imported",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user_id":    strconv.FormatInt(user.ID, 10),
		"phone":      user.Phone,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}
