package session

import (
	"context"
	"strings"

	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/store"
	"telegram-bridge/internal/transport"
)

// sessionIDSuffix marks ids produced by the current naming scheme. An
// earlier scheme generated ids with a random "_xxxx" tail instead;
// those rows are unusable and are purged during restore.
const sessionIDSuffix = "_tg"

func isLegacySessionID(id string) bool {
	return !strings.HasSuffix(id, sessionIDSuffix) && strings.Contains(id, "_")
}

// RestoreAll revives every persisted session at startup. Each record
// is handled on its own: one bad row never aborts the rest. A session
// that cannot be fully revived is deleted from the store rather than
// retried lazily, so it does not block future reuse of its id.
func (m *Manager) RestoreAll(ctx context.Context) {
	records, err := m.store.LoadAll(ctx)
	if err != nil {
		logger.Error("failed to load sessions from store", map[string]any{
			"error": err.Error(),
		})
		return
	}

	logger.Info("restoring sessions", map[string]any{
		"count": len(records),
	})

	restored := 0
	for _, rec := range records {
		if m.restoreOne(ctx, rec) {
			restored++
		}
	}

	logger.Info("session restore finished", map[string]any{
		"restored": restored,
		"total":    len(records),
	})
}

func (m *Manager) restoreOne(ctx context.Context, rec store.Record) bool {
	id := rec.SessionID

	if m.Get(id) != nil {
		logger.Info("session already live, skipping restore", map[string]any{
			"session_id": id,
		})
		return false
	}

	if isLegacySessionID(id) {
		logger.Warn("deleting legacy session id", map[string]any{
			"session_id": id,
		})
		if err := m.store.Delete(ctx, id); err != nil {
			logger.Error("failed to delete legacy session", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
		return false
	}

	if rec.SessionString == "" {
		logger.Warn("session record has no credentials, skipping", map[string]any{
			"session_id": id,
		})
		return false
	}

	handle, err := m.factory(transport.Config{
		SessionID:   id,
		APIID:       rec.APIID,
		APIHash:     rec.APIHash,
		Phone:       rec.Phone,
		Credentials: rec.SessionString,
	})
	if err != nil {
		m.purgeUnrevivable(ctx, id, nil, "transport construction failed", err)
		return false
	}

	if err := handle.Connect(ctx); err != nil {
		m.purgeUnrevivable(ctx, id, handle, "reconnect failed", err)
		return false
	}

	if !handle.Connected() {
		m.purgeUnrevivable(ctx, id, handle, "connected but not authorized", nil)
		return false
	}

	method := AuthToken
	if rec.Phone != "" {
		method = AuthCode
	}

	sess := newSession(id, method, rec.Phone, rec.APIID, rec.APIHash, handle)
	sess.SetWebhookURL(rec.WebhookURL)

	// Subscription first, with the persisted URL, so no inbound
	// message can slip through between connected and subscribed.
	m.dispatcher.Install(sess)

	// The reconnect above blocks, and an API create may have claimed
	// the id meanwhile. Install-if-absent: the live session wins and
	// the restored transport is torn down.
	m.mu.Lock()
	if m.sessions[id] != nil {
		m.mu.Unlock()
		logger.Warn("session created while restoring, discarding restored transport", map[string]any{
			"session_id": id,
		})
		if err := handle.Stop(ctx); err != nil {
			logger.Warn("failed to stop transport", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
		return false
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	user, err := handle.Me(ctx)
	if err != nil {
		logger.Warn("failed to fetch account info during restore", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
	}
	sess.setStatus(StatusConnected, user)

	if err := handle.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.purgeUnrevivable(ctx, id, handle, "failed to start update stream", err)
		return false
	}

	logger.Info("session restored", map[string]any{
		"session_id":  id,
		"has_webhook": rec.WebhookURL != "",
	})

	return true
}

func (m *Manager) purgeUnrevivable(ctx context.Context, id string, handle transport.Handle, reason string, cause error) {
	fields := map[string]any{
		"session_id": id,
		"reason":     reason,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	logger.Error("purging unrevivable session", fields)

	if handle != nil {
		if err := handle.Stop(ctx); err != nil {
			logger.Warn("failed to stop transport", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}

	if err := m.store.Delete(ctx, id); err != nil {
		logger.Error("failed to delete session from store", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
	}
}
