// Package telegram adapts the gotd MTProto client to the transport
// contract the session core is written against.
package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-bridge/internal/transport"
)

// NewFactory returns the transport factory used by the session
// registry in production.
func NewFactory() transport.Factory {
	return func(cfg transport.Config) (transport.Handle, error) {
		return New(cfg)
	}
}

// Handle wraps one gotd client. The client runs on a background
// goroutine between Connect and Stop.
type Handle struct {
	cfg     transport.Config
	client  *telegram.Client
	api     *tg.Client
	storage *memorySession

	// runConnect launches the client run loop; swapped in tests.
	runConnect func(ctx context.Context) (bg.StopFunc, error)

	mu        sync.Mutex
	stop      bg.StopFunc
	runCancel context.CancelFunc
	handler   transport.MessageHandler
	started   bool
}

func New(cfg transport.Config) (*Handle, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("telegram: api credentials required")
	}

	storage, err := newMemorySession(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("telegram: decode credentials: %w", err)
	}

	h := &Handle{
		cfg:     cfg,
		storage: storage,
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(h.onNewMessage)

	h.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})
	h.api = h.client.API()

	h.runConnect = func(ctx context.Context) (bg.StopFunc, error) {
		return bg.Connect(h.client, bg.WithContext(ctx))
	}

	return h, nil
}

// Connect brings the client up on its own lifecycle context. Connect
// is called from request handlers whose contexts end as soon as the
// response is written, while the client must keep running until Stop;
// the caller's context therefore must not bound the run loop.
func (h *Handle) Connect(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	stop, err := h.runConnect(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: connect: %w", err)
	}

	h.stop = stop
	h.runCancel = cancel
	return nil
}

func (h *Handle) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop == nil {
		return fmt.Errorf("telegram: not connected")
	}

	h.started = true
	return nil
}

func (h *Handle) Stop(_ context.Context) error {
	h.mu.Lock()
	stop := h.stop
	cancel := h.runCancel
	h.stop = nil
	h.runCancel = nil
	h.started = false
	h.mu.Unlock()

	if stop == nil {
		return nil
	}
	err := stop()
	if cancel != nil {
		cancel()
	}
	return err
}

func (h *Handle) Connected() bool {
	h.mu.Lock()
	running := h.stop != nil
	h.mu.Unlock()

	if !running {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := h.client.Auth().Status(ctx)
	return err == nil && status.Authorized
}

func (h *Handle) Reconnect(ctx context.Context) error {
	if err := h.Stop(ctx); err != nil {
		return fmt.Errorf("telegram: stop before reconnect: %w", err)
	}
	return h.Connect(ctx)
}

func (h *Handle) SendCode(ctx context.Context) (*transport.SentCode, error) {
	sent, err := h.client.Auth().SendCode(ctx, h.cfg.Phone, auth.SendCodeOptions{})
	if err != nil {
		return nil, wrapErr(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return nil, fmt.Errorf("telegram: unexpected sent code %T", sent)
	}

	result := &transport.SentCode{
		PhoneCodeHash: code.PhoneCodeHash,
		Timeout:       time.Duration(code.Timeout) * time.Second,
	}
	if code.NextType != nil {
		result.NextType = code.NextType.TypeName()
	}

	return result, nil
}

func (h *Handle) SignIn(ctx context.Context, phoneCodeHash, code string) error {
	_, err := h.client.Auth().SignIn(ctx, h.cfg.Phone, code, phoneCodeHash)
	if err == nil {
		return nil
	}

	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return transport.ErrPasswordNeeded
	}
	if tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED") {
		return transport.ErrCodeInvalid
	}

	return wrapErr(err)
}

func (h *Handle) CheckPassword(ctx context.Context, password string) error {
	_, err := h.client.Auth().Password(ctx, password)
	return wrapErr(err)
}

func (h *Handle) ExportLoginToken(ctx context.Context) (*transport.LoginToken, error) {
	result, err := h.exportToken(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}

	token, ok := result.(*tg.AuthLoginToken)
	if !ok {
		return nil, fmt.Errorf("telegram: unexpected login token %T", result)
	}

	return &transport.LoginToken{
		URL:     "tg://login?token=" + base64.RawURLEncoding.EncodeToString(token.Token),
		Expires: time.Unix(int64(token.Expires), 0),
	}, nil
}

func (h *Handle) CheckLoginToken(ctx context.Context) (*transport.TokenUpdate, error) {
	result, err := h.exportToken(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}

	switch r := result.(type) {
	case *tg.AuthLoginToken:
		return &transport.TokenUpdate{State: transport.TokenPending}, nil
	case *tg.AuthLoginTokenSuccess:
		return &transport.TokenUpdate{State: transport.TokenAccepted}, nil
	case *tg.AuthLoginTokenMigrateTo:
		return &transport.TokenUpdate{State: transport.TokenMigrate, DC: r.DCID}, nil
	default:
		return nil, fmt.Errorf("telegram: unexpected login token %T", r)
	}
}

func (h *Handle) exportToken(ctx context.Context) (tg.AuthLoginTokenClass, error) {
	return h.api.AuthExportLoginToken(ctx, &tg.AuthExportLoginTokenRequest{
		APIID:     h.cfg.APIID,
		APIHash:   h.cfg.APIHash,
		ExceptIDs: []int64{},
	})
}

func (h *Handle) Me(ctx context.Context) (*transport.User, error) {
	me, err := h.client.Self(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	return convertUser(me), nil
}

func (h *Handle) OnMessage(handler transport.MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Handle) ExportCredentials(_ context.Context) (string, error) {
	blob, ok := h.storage.export()
	if !ok {
		return "", fmt.Errorf("telegram: no session to export")
	}
	return blob, nil
}

// wrapErr converts a flood-wait demand into the transport error type
// the core knows how to back off from.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &transport.FloodWaitError{Duration: d}
	}
	return err
}
