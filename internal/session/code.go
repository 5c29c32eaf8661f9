package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/transport"
)

// codeFlowTTL bounds how long a requested login code stays verifiable.
const codeFlowTTL = 10 * time.Minute

// CodeFlow drives one session from pending through awaiting_code to
// connected using a one-time code sent to the account's phone.
type CodeFlow struct {
	m    *Manager
	sess *Session
}

func (m *Manager) CodeFlow(id string) (*CodeFlow, error) {
	sess := m.Get(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return &CodeFlow{m: m, sess: sess}, nil
}

// Start requests a one-time code. The returned correlation hash is
// also kept in the flow-state store; verification is impossible
// without it.
func (f *CodeFlow) Start(ctx context.Context) (*transport.SentCode, error) {
	if f.sess.Phone == "" {
		return nil, ErrPhoneRequired
	}

	if err := f.sess.Transport().Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", f.sess.ID, err)
	}

	sent, err := f.sess.Transport().SendCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("send code for %s: %w", f.sess.ID, err)
	}

	err = f.m.flows.Put(ctx, flowstate.State{
		SessionID: f.sess.ID,
		Method:    string(AuthCode),
		CodeHash:  sent.PhoneCodeHash,
		ExpiresAt: time.Now().Add(codeFlowTTL),
	})
	if err != nil {
		logger.Error("failed to store flow state", map[string]any{
			"session_id": f.sess.ID,
			"error":      err.Error(),
		})
	}

	f.sess.setStatus(StatusAwaitingCode, nil)

	return sent, nil
}

// Verify submits the code, plus the 2FA password when the account asks
// for one. A wrong code leaves the session in awaiting_code so the
// caller can retry.
func (f *CodeFlow) Verify(ctx context.Context, code, password string) (*transport.User, error) {
	state, err := f.m.flows.Get(ctx, f.sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load flow state for %s: %w", f.sess.ID, err)
	}
	if state == nil || state.CodeHash == "" {
		return nil, ErrAuthTimeout
	}

	err = f.sess.Transport().SignIn(ctx, state.CodeHash, code)

	switch {
	case err == nil:

	case errors.Is(err, transport.ErrPasswordNeeded):
		if password == "" {
			return nil, ErrPasswordNeeded
		}
		if err := f.sess.Transport().CheckPassword(ctx, password); err != nil {
			return nil, fmt.Errorf("check password for %s: %w", f.sess.ID, err)
		}

	case errors.Is(err, transport.ErrCodeInvalid):
		return nil, ErrInvalidCode

	default:
		return nil, fmt.Errorf("sign in %s: %w", f.sess.ID, err)
	}

	return f.m.finishConnect(ctx, f.sess)
}
