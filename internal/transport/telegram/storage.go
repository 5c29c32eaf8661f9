package telegram

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/gotd/td/session"
)

// memorySession keeps the gotd session bytes in memory so the handle
// can export them as the credential blob after authorization.
type memorySession struct {
	mu   sync.Mutex
	data []byte
}

func newMemorySession(credentials string) (*memorySession, error) {
	s := &memorySession{}
	if credentials != "" {
		data, err := base64.StdEncoding.DecodeString(credentials)
		if err != nil {
			return nil, err
		}
		s.data = data
	}
	return s, nil
}

func (s *memorySession) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}

	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *memorySession) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

func (s *memorySession) export() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(s.data), true
}
