package session

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-bridge/internal/transport"
)

type webhookSink struct {
	mu       sync.Mutex
	requests []webhookPayload
	headers  []http.Header
}

func (s *webhookSink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var payload webhookPayload
		_ = json.Unmarshal(body, &payload)

		s.mu.Lock()
		s.requests = append(s.requests, payload)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}
}

func (s *webhookSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *webhookSink) last() (webhookPayload, http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1], s.headers[len(s.headers)-1]
}

func inboundMessage() transport.Message {
	return transport.Message{
		ID:     101,
		ChatID: 987654321012,
		From: &transport.User{
			ID:       445566,
			Username: "sender",
			Phone:    "+15557654321",
		},
		Text: "hello",
		Date: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhook_DeliversInboundMessage(t *testing.T) {
	sink := &webhookSink{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	handle := newFakeHandle()
	sess := newSession("alpha", AuthCode, "", 1, "hash", handle)
	sess.SetWebhookURL(server.URL)

	NewWebhookDispatcher().Install(sess)
	handle.emit(inboundMessage())

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 10*time.Millisecond)

	payload, headers := sink.last()
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "alpha", payload.SessionID)

	// Identifiers travel as strings so 64-bit ids survive JSON.
	assert.Equal(t, "101", payload.Message.ID)
	assert.Equal(t, "987654321012", payload.Message.ChatID)
	require.NotNil(t, payload.Message.FromUser)
	assert.Equal(t, "445566", payload.Message.FromUser.ID)
	assert.Equal(t, "sender", payload.Message.FromUser.Username)
	assert.Equal(t, "hello", payload.Message.Text)
}

func TestWebhook_NoURLDropsMessage(t *testing.T) {
	sink := &webhookSink{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	handle := newFakeHandle()
	sess := newSession("alpha", AuthCode, "", 1, "hash", handle)

	NewWebhookDispatcher().Install(sess)
	handle.emit(inboundMessage())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestWebhook_FiltersOutgoingAndService(t *testing.T) {
	sink := &webhookSink{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	handle := newFakeHandle()
	sess := newSession("alpha", AuthCode, "", 1, "hash", handle)
	sess.SetWebhookURL(server.URL)

	NewWebhookDispatcher().Install(sess)

	echo := inboundMessage()
	echo.Outgoing = true
	handle.emit(echo)

	service := inboundMessage()
	service.Service = true
	handle.emit(service)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestWebhook_URLChangeWithoutReinstall(t *testing.T) {
	first := &webhookSink{}
	firstServer := httptest.NewServer(first.handler())
	defer firstServer.Close()

	second := &webhookSink{}
	secondServer := httptest.NewServer(second.handler())
	defer secondServer.Close()

	handle := newFakeHandle()
	sess := newSession("alpha", AuthCode, "", 1, "hash", handle)
	sess.SetWebhookURL(firstServer.URL)

	dispatcher := NewWebhookDispatcher()
	dispatcher.Install(sess)
	// Re-installing is a no-op.
	dispatcher.Install(sess)

	handle.emit(inboundMessage())
	require.Eventually(t, func() bool {
		return first.count() == 1
	}, time.Second, 10*time.Millisecond)

	// The handler picks up the new URL at send time.
	sess.SetWebhookURL(secondServer.URL)
	handle.emit(inboundMessage())

	require.Eventually(t, func() bool {
		return second.count() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, first.count())
}

func TestWebhook_FailureDoesNotTouchSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	handle := newFakeHandle()
	handle.setAuthorized(true)
	sess := newSession("alpha", AuthCode, "", 1, "hash", handle)
	sess.SetWebhookURL(server.URL)

	NewWebhookDispatcher().Install(sess)
	handle.emit(inboundMessage())

	time.Sleep(50 * time.Millisecond)

	// Still connected, transport untouched.
	assert.True(t, handle.Connected())
	assert.Equal(t, 0, handle.stopCount())
}
