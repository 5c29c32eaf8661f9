package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/session"
)

type startSessionRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	APIID      int    `json:"api_id"`
	APIHash    string `json:"api_hash"`
	AuthMethod string `json:"auth_method"`
	Phone      string `json:"phone"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	apiID := req.APIID
	if apiID == 0 {
		apiID = h.defaultAPIID
	}
	apiHash := req.APIHash
	if apiHash == "" {
		apiHash = h.defaultAPIHash
	}

	if apiID == 0 || apiHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": "Telegram API credentials not configured. Set TELEGRAM_API_ID and TELEGRAM_API_HASH environment variables.",
		})
		return
	}

	method := session.AuthMethod(req.AuthMethod)
	if method == "" {
		method = session.AuthCode
	}
	if method != session.AuthCode && method != session.AuthToken {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "auth_method must be \"code\" or \"token\""})
		return
	}

	ctx := c.Request.Context()

	_, err := h.manager.Create(ctx, req.SessionID, method, req.Phone, apiID, apiHash)
	if err != nil {
		writeError(c, err)
		return
	}

	if method == session.AuthCode {
		flow, err := h.manager.CodeFlow(req.SessionID)
		if err != nil {
			writeError(c, err)
			return
		}

		logger.Info("starting code auth", map[string]any{
			"session_id": req.SessionID,
		})

		sent, err := flow.Start(ctx)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id":      req.SessionID,
			"status":          session.StatusAwaitingCode,
			"phone_code_hash": sent.PhoneCodeHash,
			"timeout":         int(sent.Timeout.Seconds()),
		})
		return
	}

	flow, err := h.manager.QRFlow(req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	image, err := flow.Start(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  req.SessionID,
		"status":      session.StatusAwaitingToken,
		"qr_code":     image,
		"auth_method": session.AuthToken,
	})
}

func (h *Handler) GetQR(c *gin.Context) {
	flow, err := h.manager.QRFlow(c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	image, err := flow.Start(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"qr_code": image})
}

type verifyCodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Password string `json:"password"`
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	id := c.Param("session_id")

	flow, err := h.manager.CodeFlow(id)
	if err != nil {
		writeError(c, err)
		return
	}

	user, err := flow.Verify(c.Request.Context(), req.Code, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"session_id": id,
		"status":     session.StatusConnected,
	}
	if user != nil {
		resp["user"] = user
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetStatus(c *gin.Context) {
	id := c.Param("session_id")

	sess := h.manager.Get(id)
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_found"})
		return
	}

	connected := sess.Transport().Connected()

	// The token flow completes in the background; reflect a transport
	// that connected since the last look.
	if connected && sess.Status() != session.StatusConnected {
		user, err := sess.Transport().Me(c.Request.Context())
		if err != nil {
			logger.Warn("failed to fetch account info", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
		h.manager.UpdateStatus(id, session.StatusConnected, user)
	}

	info := sess.Info()

	c.JSON(http.StatusOK, gin.H{
		"session_id":   info.SessionID,
		"status":       info.Status,
		"auth_method":  info.AuthMethod,
		"user":         info.User,
		"connected":    connected,
		"created_at":   info.CreatedAt,
		"connected_at": info.ConnectedAt,
	})
}

type setWebhookRequest struct {
	WebhookURL string `json:"webhook_url"`
}

func (h *Handler) SetWebhook(c *gin.Context) {
	url := c.Query("webhook_url")
	if url == "" {
		var req setWebhookRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			url = req.WebhookURL
		}
	}

	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "webhook_url required"})
		return
	}

	if err := h.manager.SetWebhook(c.Request.Context(), c.Param("session_id"), url); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "webhook_url": url})
}

func (h *Handler) StopSession(c *gin.Context) {
	h.manager.Remove(c.Request.Context(), c.Param("session_id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
