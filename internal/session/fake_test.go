package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/store"
	"telegram-bridge/internal/transport"
)

// fakeHandle is a scriptable transport.Handle. Auth outcomes are
// driven by validCode/needPassword and the tokenUpdates queue.
type fakeHandle struct {
	mu sync.Mutex

	connectErr error
	startErr   error
	stopErr    error

	wireUp     bool
	authorized bool
	started    bool
	stops      int
	reconnects int
	handler    transport.MessageHandler

	validCode    string
	needPassword bool
	password     string
	sentCode     transport.SentCode
	sendCodeErr  error

	loginTokens  int
	tokenUpdates []transport.TokenUpdate
	tokenErr     error

	me         *transport.User
	exportBlob string
	exportErr  error

	historyErrs []error
	history     []transport.Message
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		validCode: "12345",
		sentCode: transport.SentCode{
			PhoneCodeHash: "hash-1",
			Timeout:       60 * time.Second,
		},
		me:         &transport.User{ID: 42, Username: "tester", Phone: "+15551234567"},
		exportBlob: "blob-42",
	}
}

func (f *fakeHandle) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.wireUp = true
	return nil
}

func (f *fakeHandle) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeHandle) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.wireUp = false
	f.authorized = false
	return f.stopErr
}

func (f *fakeHandle) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized
}

func (f *fakeHandle) setAuthorized(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = v
}

func (f *fakeHandle) SendCode(_ context.Context) (*transport.SentCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendCodeErr != nil {
		return nil, f.sendCodeErr
	}
	sent := f.sentCode
	return &sent, nil
}

func (f *fakeHandle) SignIn(_ context.Context, phoneCodeHash, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if phoneCodeHash != f.sentCode.PhoneCodeHash {
		return errors.New("fake: wrong phone code hash")
	}
	if code != f.validCode {
		return transport.ErrCodeInvalid
	}
	if f.needPassword {
		return transport.ErrPasswordNeeded
	}
	f.authorized = true
	return nil
}

func (f *fakeHandle) CheckPassword(_ context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if password != f.password {
		return errors.New("fake: wrong password")
	}
	f.authorized = true
	return nil
}

func (f *fakeHandle) ExportLoginToken(_ context.Context) (*transport.LoginToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginTokens++
	return &transport.LoginToken{
		URL:     fmt.Sprintf("tg://login?token=fake-%d", f.loginTokens),
		Expires: time.Now().Add(30 * time.Second),
	}, nil
}

func (f *fakeHandle) CheckLoginToken(_ context.Context) (*transport.TokenUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	if len(f.tokenUpdates) == 0 {
		return &transport.TokenUpdate{State: transport.TokenPending}, nil
	}

	update := f.tokenUpdates[0]
	f.tokenUpdates = f.tokenUpdates[1:]
	if update.State == transport.TokenAccepted {
		f.authorized = true
	}
	return &update, nil
}

func (f *fakeHandle) Reconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *fakeHandle) Me(_ context.Context) (*transport.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.me == nil {
		return nil, errors.New("fake: no user")
	}
	u := *f.me
	return &u, nil
}

func (f *fakeHandle) Dialogs(_ context.Context, _ int) ([]transport.Dialog, error) {
	return nil, nil
}

func (f *fakeHandle) History(_ context.Context, _ string, _, _ int) ([]transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.historyErrs) > 0 {
		err := f.historyErrs[0]
		f.historyErrs = f.historyErrs[1:]
		return nil, err
	}
	return f.history, nil
}

func (f *fakeHandle) SendMessage(_ context.Context, _, text string) (*transport.Message, error) {
	return &transport.Message{ID: 1, Text: text, Date: time.Now(), Outgoing: true}, nil
}

func (f *fakeHandle) ResolvePhone(_ context.Context, _ string) (*transport.User, error) {
	return f.Me(context.Background())
}

func (f *fakeHandle) ImportContact(_ context.Context, _, _, _ string) (*transport.User, error) {
	return f.Me(context.Background())
}

func (f *fakeHandle) OnMessage(h transport.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeHandle) emit(msg transport.Message) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (f *fakeHandle) hasHandler() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

func (f *fakeHandle) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeHandle) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeHandle) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

func (f *fakeHandle) ExportCredentials(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exportErr != nil {
		return "", f.exportErr
	}
	return f.exportBlob, nil
}

// blockingHandle holds Connect open until released, exposing the
// window between a blocking transport call and the registry insert
// that follows it.
type blockingHandle struct {
	*fakeHandle
	entered chan struct{}
	gate    chan struct{}
}

func newBlockingHandle() *blockingHandle {
	return &blockingHandle{
		fakeHandle: newFakeHandle(),
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
}

func (b *blockingHandle) Connect(ctx context.Context) error {
	close(b.entered)
	<-b.gate
	return b.fakeHandle.Connect(ctx)
}

// fakeStore is an in-memory store.Store with error injection.
type fakeStore struct {
	mu sync.Mutex

	records map[string]store.Record
	deleted []string

	saveErr    error
	deleteErr  error
	loadAllErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]store.Record)}
}

func (s *fakeStore) Save(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[rec.SessionID] = rec
	return nil
}

func (s *fakeStore) Load(_ context.Context, sessionID string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) LoadAll(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadAllErr != nil {
		return nil, s.loadAllErr
	}
	out := make([]store.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, sessionID)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, sessionID)
	return nil
}

func (s *fakeStore) has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[sessionID]
	return ok
}

func (s *fakeStore) get(sessionID string) (store.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	return rec, ok
}

// fixedFactory hands out pre-built handles by session id.
type fixedFactory struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	errs    map[string]error
	queue   map[string][]*fakeHandle
}

func newFixedFactory() *fixedFactory {
	return &fixedFactory{
		handles: make(map[string]*fakeHandle),
		errs:    make(map[string]error),
		queue:   make(map[string][]*fakeHandle),
	}
}

func (f *fixedFactory) add(id string, h *fakeHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[id] = append(f.queue[id], h)
}

func (f *fixedFactory) factory() func(cfg transport.Config) (transport.Handle, error) {
	return func(cfg transport.Config) (transport.Handle, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if err := f.errs[cfg.SessionID]; err != nil {
			return nil, err
		}

		if q := f.queue[cfg.SessionID]; len(q) > 0 {
			h := q[0]
			f.queue[cfg.SessionID] = q[1:]
			f.handles[cfg.SessionID] = h
			return h, nil
		}

		h := newFakeHandle()
		f.handles[cfg.SessionID] = h
		return h, nil
	}
}

func (f *fixedFactory) handle(id string) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[id]
}

func recordFor(id string) store.Record {
	return store.Record{
		SessionID:     id,
		SessionString: "blob-" + id,
		APIID:         1,
		APIHash:       "hash",
	}
}

func newTestManager() (*Manager, *fakeStore, *fixedFactory) {
	st := newFakeStore()
	factory := newFixedFactory()
	m := NewManager(st, flowstate.NewMemoryStore(), factory.factory())
	m.qrTimeout = 200 * time.Millisecond
	m.qrPollInterval = 10 * time.Millisecond
	return m, st, factory
}
