package session

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/transport"
)

const webhookTimeout = 10 * time.Second

// WebhookDispatcher relays inbound messages to each session's
// configured callback URL. Delivery is fire-and-forget with respect to
// the inbound stream: the transport's handler returns before the HTTP
// call completes, and a failing webhook never touches the session.
type WebhookDispatcher struct {
	client *http.Client
}

func NewWebhookDispatcher() *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Install registers the inbound-message subscription for the session.
// Installing twice is a no-op: the handler reads the current callback
// URL at send time, so URL changes need no re-registration.
func (d *WebhookDispatcher) Install(sess *Session) {
	if !sess.markSubscribed() {
		return
	}

	sess.Transport().OnMessage(func(msg transport.Message) {
		if msg.Outgoing || msg.Service {
			return
		}

		url := sess.WebhookURL()
		if url == "" {
			logger.Info("no webhook configured, dropping message", map[string]any{
				"session_id": sess.ID,
				"message_id": msg.ID,
			})
			return
		}

		go d.deliver(sess.ID, url, msg)
	})
}

type webhookUser struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type webhookMessage struct {
	ID       string       `json:"id"`
	ChatID   string       `json:"chat_id"`
	FromUser *webhookUser `json:"from_user"`
	Text     string       `json:"text"`
	Date     string       `json:"date"`
}

type webhookPayload struct {
	SessionID string         `json:"session_id"`
	Message   webhookMessage `json:"message"`
}

// newWebhookPayload serializes every identifier as a string so JSON
// consumers never lose precision on 64-bit ids.
func newWebhookPayload(sessionID string, msg transport.Message) webhookPayload {
	payload := webhookPayload{
		SessionID: sessionID,
		Message: webhookMessage{
			ID:     strconv.Itoa(msg.ID),
			ChatID: strconv.FormatInt(msg.ChatID, 10),
			Text:   msg.Text,
			Date:   msg.Date.UTC().Format(time.RFC3339),
		},
	}

	if msg.From != nil {
		payload.Message.FromUser = &webhookUser{
			ID:        strconv.FormatInt(msg.From.ID, 10),
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			Phone:     msg.From.Phone,
		}
	}

	return payload
}

// deliver makes one bounded attempt. No retry: connection errors,
// timeouts and non-success statuses are logged and dropped.
func (d *WebhookDispatcher) deliver(sessionID, url string, msg transport.Message) {
	body, err := json.Marshal(newWebhookPayload(sessionID, msg))
	if err != nil {
		logger.Error("failed to marshal webhook payload", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	resp, err := d.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Error("webhook delivery failed", map[string]any{
			"session_id":  sessionID,
			"webhook_url": url,
			"error":       err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error("webhook returned non-success status", map[string]any{
			"session_id":  sessionID,
			"webhook_url": url,
			"status":      resp.StatusCode,
			"body":        string(respBody),
		})
	}
}
