// Package transport defines the contract between the session core and
// the underlying Telegram client. The core never talks to the protocol
// library directly; it drives a Handle and reacts to its results.
package transport

import (
	"context"
	"time"
)

// Config carries everything needed to construct one Handle. Credentials
// is the previously exported session string; empty for new sessions.
type Config struct {
	SessionID   string
	APIID       int
	APIHash     string
	Phone       string
	Credentials string
}

// Factory constructs an unconnected Handle for one session.
type Factory func(cfg Config) (Handle, error)

// SentCode is the result of requesting a one-time login code.
type SentCode struct {
	// PhoneCodeHash correlates the later sign-in call with this code
	// request. Sign-in is impossible without it.
	PhoneCodeHash string

	// NextType names the delivery channel a resend would use.
	NextType string

	// Timeout is the protocol-specified wait before a resend.
	Timeout time.Duration
}

// LoginToken is a short-lived QR login token.
type LoginToken struct {
	// URL is the tg://login?token=... deep link to encode as a QR code.
	URL string

	Expires time.Time
}

// TokenState is one poll outcome while waiting for a QR scan.
type TokenState int

const (
	// TokenPending means the token has not been scanned yet.
	TokenPending TokenState = iota

	// TokenAccepted means the scan was confirmed and the session is
	// now authorized.
	TokenAccepted

	// TokenMigrate means the account lives on another datacenter and
	// the connection must move there before polling can continue.
	TokenMigrate
)

// TokenUpdate is the result of one login-token status check.
type TokenUpdate struct {
	State TokenState

	// DC is the target datacenter when State is TokenMigrate.
	DC int
}

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
	Premium   bool
}

type Chat struct {
	ID    int64
	Type  string
	Title string
}

type Message struct {
	ID       int
	ChatID   int64
	From     *User
	Text     string
	Date     time.Time
	Outgoing bool
	Service  bool
}

type Dialog struct {
	Chat        Chat
	Username    string
	UnreadCount int
	LastMessage *Message
}

// MessageHandler receives live inbound messages. It must return
// quickly; slow work belongs on another goroutine.
type MessageHandler func(msg Message)

// Handle is one live connection to a Telegram account. A Handle is
// owned by exactly one session record and is never shared.
type Handle interface {
	// Connect establishes the wire connection without authorizing.
	Connect(ctx context.Context) error

	// Start begins delivering live updates to the registered handler.
	// It requires an authorized connection.
	Start(ctx context.Context) error

	// Stop tears the connection down. Stopping a handle that never
	// started is allowed.
	Stop(ctx context.Context) error

	Connected() bool

	// SendCode requests a one-time login code for the phone number
	// the handle was configured with.
	SendCode(ctx context.Context) (*SentCode, error)

	// SignIn submits the one-time code. Returns ErrCodeInvalid or
	// ErrPasswordNeeded for the two recoverable outcomes.
	SignIn(ctx context.Context, phoneCodeHash, code string) error

	// CheckPassword submits the 2FA password after SignIn returned
	// ErrPasswordNeeded.
	CheckPassword(ctx context.Context, password string) error

	// ExportLoginToken issues a fresh QR login token.
	ExportLoginToken(ctx context.Context) (*LoginToken, error)

	// CheckLoginToken re-checks the outstanding token's status.
	CheckLoginToken(ctx context.Context) (*TokenUpdate, error)

	// Reconnect re-establishes the wire connection, used after a
	// datacenter migration was signalled.
	Reconnect(ctx context.Context) error

	Me(ctx context.Context) (*User, error)
	Dialogs(ctx context.Context, limit int) ([]Dialog, error)
	History(ctx context.Context, chatID string, limit, offsetID int) ([]Message, error)
	SendMessage(ctx context.Context, chatID, text string) (*Message, error)
	ResolvePhone(ctx context.Context, phone string) (*User, error)
	ImportContact(ctx context.Context, phone, firstName, lastName string) (*User, error)

	// OnMessage registers the inbound message handler. At most one
	// handler is active; registering again replaces it.
	OnMessage(h MessageHandler)

	// ExportCredentials serializes the authorization state so the
	// session can be revived after a restart.
	ExportCredentials(ctx context.Context) (string, error)
}
