package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/store"
	"telegram-bridge/internal/transport"
)

// Manager is the single source of truth for which sessions exist.
// Construct one per process (or per test); all mutating operations are
// serialized by one lock over the map, which is plenty for the
// expected session counts.
type Manager struct {
	store      store.Store
	flows      flowstate.Store
	factory    transport.Factory
	dispatcher *WebhookDispatcher

	// Token-flow poll pacing; overridable in tests.
	qrTimeout      time.Duration
	qrPollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(st store.Store, flows flowstate.Store, factory transport.Factory) *Manager {
	return &Manager{
		store:          st,
		flows:          flows,
		factory:        factory,
		dispatcher:     NewWebhookDispatcher(),
		qrTimeout:      qrAuthTimeout,
		qrPollInterval: qrPollInterval,
		sessions:       make(map[string]*Session),
	}
}

// Create registers a new session in pending state. A live, connected
// session with the same id is an error; a stale in-memory record is
// torn down and replaced so recreation stays idempotent.
func (m *Manager) Create(ctx context.Context, id string, method AuthMethod, phone string, apiID int, apiHash string) (*Session, error) {
	m.mu.Lock()
	existing := m.sessions[id]
	m.mu.Unlock()

	if existing != nil {
		if existing.Transport().Connected() {
			return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
		}

		logger.Warn("session exists in memory but not connected, recreating", map[string]any{
			"session_id": id,
		})
		m.Remove(ctx, id)
	}

	handle, err := m.factory(transport.Config{
		SessionID: id,
		APIID:     apiID,
		APIHash:   apiHash,
		Phone:     phone,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport for %s: %w", id, err)
	}

	sess := newSession(id, method, phone, apiID, apiHash, handle)

	m.mu.Lock()
	// A concurrent create may have claimed the id meanwhile; exactly
	// one caller gets to install a transport, the loser tears its own
	// down.
	if cur := m.sessions[id]; cur != nil {
		m.mu.Unlock()
		if err := handle.Stop(ctx); err != nil {
			logger.Warn("failed to stop transport", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get is a lookup only; nil when the id is unknown.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *Manager) UpdateStatus(id string, status Status, user *transport.User) {
	sess := m.Get(id)
	if sess == nil {
		return
	}
	sess.setStatus(status, user)
}

// Remove stops the session and purges it everywhere. Best effort all
// the way down: a failed transport stop or store delete is logged and
// swallowed so a broken session can never persist forever.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	sess := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if sess != nil {
		sess.cancelPoll()
		if err := sess.Transport().Stop(ctx); err != nil {
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

	if err := m.flows.Delete(ctx, id); err != nil {
		logger.Warn("failed to delete flow state", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
	}
}

// CleanupAll stops every live transport and clears the map. The store
// is left untouched so the process can resume after a restart.
func (m *Manager) CleanupAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.cancelPoll()
		if err := sess.Transport().Stop(ctx); err != nil {
			logger.Warn("failed to stop transport during cleanup", map[string]any{
				"session_id": sess.ID,
				"error":      err.Error(),
			})
		}
	}

	logger.Info("all sessions stopped", map[string]any{
		"count": len(sessions),
	})
}

// finishConnect runs the shared tail of both auth flows: install the
// webhook subscription, start the live update stream, mark connected
// and persist credentials. The credential save is deliberately not a
// rollback point: the session stays usable in-process even if the
// store is down.
func (m *Manager) finishConnect(ctx context.Context, sess *Session) (*transport.User, error) {
	m.dispatcher.Install(sess)

	if err := sess.Transport().Start(ctx); err != nil {
		return nil, fmt.Errorf("start updates for %s: %w", sess.ID, err)
	}

	user, err := sess.Transport().Me(ctx)
	if err != nil {
		logger.Warn("failed to fetch account info", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		user = nil
	}

	sess.setStatus(StatusConnected, user)
	m.persistCredentials(ctx, sess)

	if err := m.flows.Delete(ctx, sess.ID); err != nil {
		logger.Warn("failed to delete flow state", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}

	return user, nil
}

func (m *Manager) persistCredentials(ctx context.Context, sess *Session) {
	blob, err := sess.Transport().ExportCredentials(ctx)
	if err != nil {
		logger.Error("failed to export session credentials", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		return
	}

	err = m.store.Save(ctx, store.Record{
		SessionID:     sess.ID,
		SessionString: blob,
		APIID:         sess.APIID,
		APIHash:       sess.APIHash,
		Phone:         sess.Phone,
		WebhookURL:    sess.WebhookURL(),
	})
	if err != nil {
		logger.Error("failed to save session to store", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		return
	}

	logger.Info("session saved", map[string]any{
		"session_id": sess.ID,
	})
}

// SetWebhook updates the runtime callback URL and persists it so the
// webhook survives a restart. Store trouble is logged, never fatal.
func (m *Manager) SetWebhook(ctx context.Context, id, url string) error {
	sess := m.Get(id)
	if sess == nil {
		return ErrSessionNotFound
	}

	logger.Info("setting webhook", map[string]any{
		"session_id":  id,
		"webhook_url": url,
	})

	sess.SetWebhookURL(url)

	existing, err := m.store.Load(ctx, id)
	if err != nil {
		logger.Error("failed to load session record", map[string]any{
			"session_id": id,
			"error":      err.Error(),
		})
		return nil
	}

	if existing != nil {
		existing.WebhookURL = url
		if err := m.store.Save(ctx, *existing); err != nil {
			logger.Error("failed to persist webhook url", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
		return nil
	}

	// No record yet: the session may not have reached connected. Try
	// exporting the current credentials so the URL is not lost.
	if sess.Transport().Connected() {
		m.persistCredentials(ctx, sess)
	}

	return nil
}

// History fetches chat history, honoring a flood-wait demand from the
// protocol by sleeping the requested duration and retrying once.
func (m *Manager) History(ctx context.Context, id, chatID string, limit, offsetID int) ([]transport.Message, error) {
	sess := m.Get(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	const maxAttempts = 2

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		messages, err := sess.Transport().History(ctx, chatID, limit, offsetID)
		if err == nil {
			return messages, nil
		}
		lastErr = err

		wait, ok := transport.AsFloodWait(err)
		if !ok {
			return nil, err
		}

		logger.Warn("flood wait", map[string]any{
			"session_id": id,
			"seconds":    wait.Seconds(),
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}
