package session

import (
	"context"
	"sync"
	"time"

	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/transport"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusAwaitingCode  Status = "awaiting_code"
	StatusAwaitingToken Status = "awaiting_token"
	StatusConnected     Status = "connected"
	StatusError         Status = "error"
	StatusDisconnected  Status = "disconnected"
)

type AuthMethod string

const (
	AuthCode  AuthMethod = "code"
	AuthToken AuthMethod = "token"
)

// Session ties one session id to its transport handle and auth state.
// The handle is exclusively owned: one per session, never shared.
type Session struct {
	ID         string
	AuthMethod AuthMethod
	Phone      string
	APIID      int
	APIHash    string

	transport transport.Handle

	mu          sync.Mutex
	status      Status
	user        *transport.User
	createdAt   time.Time
	connectedAt time.Time
	webhookURL  string
	pollCancel  context.CancelFunc
	subscribed  bool
}

func newSession(id string, method AuthMethod, phone string, apiID int, apiHash string, h transport.Handle) *Session {
	return &Session{
		ID:         id,
		AuthMethod: method,
		Phone:      phone,
		APIID:      apiID,
		APIHash:    apiHash,
		transport:  h,
		status:     StatusPending,
		createdAt:  time.Now().UTC(),
	}
}

func (s *Session) Transport() transport.Handle {
	return s.transport
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus records the transition and stamps connectedAt exactly once,
// on the first move into connected.
func (s *Session) setStatus(status Status, user *transport.User) {
	s.mu.Lock()
	old := s.status
	s.status = status
	if user != nil {
		s.user = user
	}
	if status == StatusConnected && s.connectedAt.IsZero() {
		s.connectedAt = time.Now().UTC()
	}
	s.mu.Unlock()

	logger.Info("session status", map[string]any{
		"session_id": s.ID,
		"old":        string(old),
		"new":        string(status),
	})
}

// WebhookURL is read by the dispatcher at send time, so a URL change
// takes effect without re-registering the message handler.
func (s *Session) WebhookURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookURL
}

func (s *Session) SetWebhookURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
}

// setPollCancel stores the cancel handle of the token-flow poll loop,
// cancelling any previous loop first.
func (s *Session) setPollCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	prev := s.pollCancel
	s.pollCancel = cancel
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
}

func (s *Session) cancelPoll() {
	s.mu.Lock()
	cancel := s.pollCancel
	s.pollCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// markSubscribed reports whether this call installed the subscription,
// i.e. it returns false once a handler is already registered.
func (s *Session) markSubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return false
	}
	s.subscribed = true
	return true
}

// UserInfo is the account snapshot exposed over the API.
type UserInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Premium   bool   `json:"is_premium"`
}

// Info is a point-in-time snapshot of the session's public state.
type Info struct {
	SessionID   string     `json:"session_id"`
	Status      Status     `json:"status"`
	AuthMethod  AuthMethod `json:"auth_method"`
	User        *UserInfo  `json:"user,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		SessionID:  s.ID,
		Status:     s.status,
		AuthMethod: s.AuthMethod,
		CreatedAt:  s.createdAt,
	}

	if s.user != nil {
		info.User = &UserInfo{
			ID:        s.user.ID,
			Username:  s.user.Username,
			FirstName: s.user.FirstName,
			LastName:  s.user.LastName,
			Phone:     s.user.Phone,
			Premium:   s.user.Premium,
		}
	}

	if !s.connectedAt.IsZero() {
		t := s.connectedAt
		info.ConnectedAt = &t
	}

	return info
}
