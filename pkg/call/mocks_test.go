package call

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/conf_call/pkg/token"
	"github.com/arzzra/conf_call/pkg/ua"
)

// mockHandle — управляемое вызывное плечо для тестов ядра.
type mockHandle struct {
	callID string
	from   string
	to     string
	remote string

	hangupErr   error
	reinviteErr error

	mu        sync.Mutex
	hangups   int
	reinvites [][]byte
	onHangup  func()

	reinvited chan struct{}
}

func newMockHandle(from, to string) *mockHandle {
	return &mockHandle{
		callID:    "call-" + from + "-" + to,
		from:      from,
		to:        to,
		remote:    to,
		reinvited: make(chan struct{}, 16),
	}
}

func (h *mockHandle) CallID() string { return h.callID }
func (h *mockHandle) From() string   { return h.from }
func (h *mockHandle) To() string     { return h.to }
func (h *mockHandle) Remote() string { return h.remote }

func (h *mockHandle) Hangup(context.Context) error {
	h.mu.Lock()
	h.hangups++
	h.mu.Unlock()
	return h.hangupErr
}

func (h *mockHandle) Reinvite(_ context.Context, offer []byte) error {
	if h.reinviteErr != nil {
		return h.reinviteErr
	}
	h.mu.Lock()
	h.reinvites = append(h.reinvites, offer)
	h.mu.Unlock()
	select {
	case h.reinvited <- struct{}{}:
	default:
	}
	return nil
}

func (h *mockHandle) OnHangup(handler func()) {
	h.mu.Lock()
	h.onHangup = handler
	h.mu.Unlock()
}

func (h *mockHandle) hangupCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hangups
}

// fireRemoteHangup имитирует завершение плеча удалённой стороной.
func (h *mockHandle) fireRemoteHangup() {
	h.mu.Lock()
	handler := h.onHangup
	h.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// mockAgent — управляемый сигнальный агент для тестов ядра.
type mockAgent struct {
	mu            sync.Mutex
	registered    bool
	cred          *token.Credential
	registerErr   error
	unregisterErr error
	inviteFn      func(ctx context.Context, address string) (ua.DialogHandle, error)
	inviteHandler func(ua.InviteTransaction)
}

func newMockAgent(address string) *mockAgent {
	return &mockAgent{cred: token.NewCredential(address, "AC00000000000000000000000000000000")}
}

func (a *mockAgent) Register(_ context.Context, cred *token.Credential) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	if cred != nil {
		a.cred = cred
	}
	a.registered = true
	return nil
}

func (a *mockAgent) Unregister(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unregisterErr != nil {
		return a.unregisterErr
	}
	a.registered = false
	return nil
}

func (a *mockAgent) Invite(ctx context.Context, address string) (ua.DialogHandle, error) {
	a.mu.Lock()
	fn := a.inviteFn
	a.mu.Unlock()
	return fn(ctx, address)
}

func (a *mockAgent) OnInvite(handler func(ua.InviteTransaction)) {
	a.mu.Lock()
	a.inviteHandler = handler
	a.mu.Unlock()
}

func (a *mockAgent) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

func (a *mockAgent) Credential() *token.Credential {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cred
}

// fireInvite имитирует входящее приглашение от удалённого участника.
func (a *mockAgent) fireInvite(tx ua.InviteTransaction) {
	a.mu.Lock()
	handler := a.inviteHandler
	a.mu.Unlock()
	if handler != nil {
		handler(tx)
	}
}

// mockInviteTx — входящая транзакция приглашения для тестов.
type mockInviteTx struct {
	from         string
	acceptHandle ua.DialogHandle
	acceptErr    error

	mu           sync.Mutex
	rejectStatus int
	rejectReason string
	rejects      int
}

func (t *mockInviteTx) From() string { return t.from }

func (t *mockInviteTx) Accept(context.Context) (ua.DialogHandle, error) {
	if t.acceptErr != nil {
		return nil, t.acceptErr
	}
	return t.acceptHandle, nil
}

func (t *mockInviteTx) Reject(_ context.Context, statusCode int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejects++
	t.rejectStatus = statusCode
	t.rejectReason = reason
	return nil
}

var (
	_ ua.DialogHandle      = (*mockHandle)(nil)
	_ ua.UserAgent         = (*mockAgent)(nil)
	_ ua.InviteTransaction = (*mockInviteTx)(nil)
)

const eventWait = 2 * time.Second
