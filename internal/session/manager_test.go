package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/transport"
)

func TestCreate_DuplicateConnectedFails(t *testing.T) {
	m, _, factory := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	factory.handle("alpha").setAuthorized(true)

	_, err = m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	assert.ErrorIs(t, err, ErrSessionExists)

	// The original session must be untouched.
	assert.Equal(t, 0, factory.handle("alpha").stopCount())
}

func TestCreate_ReplacesStaleSession(t *testing.T) {
	m, _, factory := newTestManager()
	ctx := context.Background()

	first := newFakeHandle()
	second := newFakeHandle()
	factory.add("alpha", first)
	factory.add("alpha", second)

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	// First never connected, so the id is free to reuse.
	sess, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	assert.Equal(t, 1, first.stopCount())
	assert.Same(t, second, sess.Transport())
}

// Two creates race for the same id: the loser must stop the transport
// it built, the winner's stays untouched.
func TestCreate_LoserStopsItsTransport(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()

	loser := newFakeHandle()
	winner := newFakeHandle()

	var calls int32
	entered := make(chan struct{})
	gate := make(chan struct{})
	m := NewManager(st, flowstate.NewMemoryStore(), func(transport.Config) (transport.Handle, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-gate
			return loser, nil
		}
		return winner, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
		errCh <- err
	}()
	<-entered

	sess, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	close(gate)
	assert.ErrorIs(t, <-errCh, ErrSessionExists)

	assert.Same(t, winner, sess.Transport())
	assert.Same(t, winner, m.Get("alpha").Transport())
	assert.Equal(t, 1, loser.stopCount())
	assert.Equal(t, 0, winner.stopCount())
}

func TestRemove_IdempotentAndTotal(t *testing.T) {
	m, st, factory := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	handle := factory.handle("alpha")
	handle.stopErr = errors.New("already stopped")
	st.deleteErr = errors.New("store down")

	// Neither the stop failure nor the store failure may surface.
	m.Remove(ctx, "alpha")
	m.Remove(ctx, "alpha")

	assert.Nil(t, m.Get("alpha"))

	// The store delete must be attempted even though stop failed.
	assert.Contains(t, st.deleted, "alpha")
}

func TestUpdateStatus_ConnectedAtSetOnce(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	m.UpdateStatus("alpha", StatusConnected, nil)
	first := m.Get("alpha").Info().ConnectedAt
	require.NotNil(t, first)

	time.Sleep(5 * time.Millisecond)

	m.UpdateStatus("alpha", StatusDisconnected, nil)
	m.UpdateStatus("alpha", StatusConnected, nil)

	second := m.Get("alpha").Info().ConnectedAt
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestCleanupAll_StopsEverythingKeepsStore(t *testing.T) {
	m, st, factory := newTestManager()
	ctx := context.Background()

	for _, id := range []string{"alpha", "beta"} {
		_, err := m.Create(ctx, id, AuthCode, "+15551234567", 1, "hash")
		require.NoError(t, err)
	}

	require.NoError(t, st.Save(ctx, recordFor("alpha")))

	m.CleanupAll(ctx)

	assert.Nil(t, m.Get("alpha"))
	assert.Nil(t, m.Get("beta"))
	assert.Equal(t, 1, factory.handle("alpha").stopCount())
	assert.Equal(t, 1, factory.handle("beta").stopCount())

	// Shutdown must stay resumable.
	assert.True(t, st.has("alpha"))
}

func TestHistory_RetriesOnceOnFloodWait(t *testing.T) {
	m, _, factory := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	handle := factory.handle("alpha")
	handle.history = []transport.Message{{ID: 7, Text: "hi"}}
	handle.historyErrs = []error{
		&transport.FloodWaitError{Duration: 10 * time.Millisecond},
	}

	messages, err := m.History(ctx, "alpha", "chat", 50, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, 7, messages[0].ID)
}

func TestHistory_BoundedFloodRetry(t *testing.T) {
	m, _, factory := newTestManager()
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", AuthCode, "+15551234567", 1, "hash")
	require.NoError(t, err)

	handle := factory.handle("alpha")
	handle.historyErrs = []error{
		&transport.FloodWaitError{Duration: time.Millisecond},
		&transport.FloodWaitError{Duration: time.Millisecond},
		&transport.FloodWaitError{Duration: time.Millisecond},
	}

	_, err = m.History(ctx, "alpha", "chat", 50, 0)
	require.Error(t, err)

	_, ok := transport.AsFloodWait(err)
	assert.True(t, ok)
}
