// Package flowstate keeps the short-lived correlation state of an
// in-progress authentication flow: the phone-code hash for code login
// and the token expiry for QR login. The state is worthless once the
// flow completes, so every entry carries an absolute expiry.
package flowstate

import (
	"context"
	"time"
)

type State struct {
	SessionID string    `json:"session_id"`
	Method    string    `json:"method"` // "code" or "token"
	CodeHash  string    `json:"code_hash,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store defines how pending-auth state is stored and retrieved.
type Store interface {
	Put(ctx context.Context, s State) error
	Get(ctx context.Context, sessionID string) (*State, error)
	Delete(ctx context.Context, sessionID string) error
}
