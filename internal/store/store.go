package store

import (
	"context"
	"time"
)

// Record is the persisted form of one Telegram session. The session
// string is the opaque credential blob exported by a connected
// transport; it is the only way to revive a session without
// re-authenticating.
type Record struct {
	SessionID     string
	SessionString string
	APIID         int
	APIHash       string
	Phone         string
	WebhookURL    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store defines durable persistence for session credentials.
// Implementations must treat Save as an upsert keyed on SessionID.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, sessionID string) (*Record, error)
	LoadAll(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, sessionID string) error
}
