package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/transport"
)

const (
	qrAuthTimeout  = 120 * time.Second
	qrPollInterval = 2 * time.Second
	qrImageSize    = 256
)

// QRFlow drives one session from pending through awaiting_token to
// connected via a scannable login token.
type QRFlow struct {
	m    *Manager
	sess *Session
}

func (m *Manager) QRFlow(id string) (*QRFlow, error) {
	sess := m.Get(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.AuthMethod != AuthToken {
		return nil, ErrWrongAuthMethod
	}
	return &QRFlow{m: m, sess: sess}, nil
}

// Start connects without authorizing, issues a fresh login token and
// returns it rendered as a base64 PNG data URL. The scan wait runs on
// its own goroutine; calling Start again replaces any previous wait
// with a fresh token.
func (f *QRFlow) Start(ctx context.Context) (string, error) {
	if err := f.sess.Transport().Connect(ctx); err != nil {
		return "", fmt.Errorf("connect %s: %w", f.sess.ID, err)
	}

	token, err := f.sess.Transport().ExportLoginToken(ctx)
	if err != nil {
		return "", fmt.Errorf("export login token for %s: %w", f.sess.ID, err)
	}

	image, err := renderQR(token.URL)
	if err != nil {
		return "", fmt.Errorf("render qr for %s: %w", f.sess.ID, err)
	}

	expires := token.Expires
	if expires.IsZero() || !expires.After(time.Now()) {
		expires = time.Now().Add(f.m.qrTimeout)
	}

	err = f.m.flows.Put(ctx, flowstate.State{
		SessionID: f.sess.ID,
		Method:    string(AuthToken),
		ExpiresAt: expires,
	})
	if err != nil {
		logger.Error("failed to store flow state", map[string]any{
			"session_id": f.sess.ID,
			"error":      err.Error(),
		})
	}

	f.sess.setStatus(StatusAwaitingToken, nil)

	pollCtx, cancel := context.WithCancel(context.Background())
	f.sess.setPollCancel(cancel)
	go f.poll(pollCtx)

	return image, nil
}

// poll re-checks the login token until it is accepted, the wait window
// closes or the loop is cancelled. The request path that launched the
// session has already returned, so nothing here may escape: every
// failure is logged and ends the loop.
func (f *QRFlow) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("qr poll panic", map[string]any{
				"session_id": f.sess.ID,
				"panic":      fmt.Sprint(r),
			})
		}
	}()

	logger.Info("waiting for qr scan", map[string]any{
		"session_id": f.sess.ID,
	})

	deadline := time.Now().Add(f.m.qrTimeout)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		update, err := f.sess.Transport().CheckLoginToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("qr token check failed", map[string]any{
				"session_id": f.sess.ID,
				"error":      err.Error(),
			})
			return
		}

		switch update.State {
		case transport.TokenAccepted:
			if _, err := f.m.finishConnect(ctx, f.sess); err != nil {
				logger.Error("qr auth completion failed", map[string]any{
					"session_id": f.sess.ID,
					"error":      err.Error(),
				})
				return
			}
			logger.Info("session connected via qr", map[string]any{
				"session_id": f.sess.ID,
			})
			return

		case transport.TokenMigrate:
			// Not a terminal outcome: follow the account to its
			// datacenter and keep polling.
			logger.Info("qr auth datacenter migration", map[string]any{
				"session_id": f.sess.ID,
				"dc":         update.DC,
			})
			if err := f.sess.Transport().Reconnect(ctx); err != nil {
				logger.Error("qr auth reconnect failed", map[string]any{
					"session_id": f.sess.ID,
					"error":      err.Error(),
				})
				return
			}
			continue

		case transport.TokenPending:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.m.qrPollInterval):
		}
	}

	// Timeout is not an error state: the session stays in
	// awaiting_token and a new Start issues a fresh token.
	logger.Warn("qr auth timeout", map[string]any{
		"session_id": f.sess.ID,
		"status":     string(f.sess.Status()),
	})
}

func renderQR(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
