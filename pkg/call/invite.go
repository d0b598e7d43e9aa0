package call

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/arzzra/conf_call/pkg/ua"
)

// Коды отклонения входящего приглашения.
const rejectStatusBusyHere = 486

// Invite — входящее приглашение, ожидающее решения приложения.
//
// Объект живёт между получением предложения и вызовом Accept или
// Reject. Accept разрешает отложенный результат разговором с одним
// диалогом; владеющий Endpoint подписан на это разрешение и добавляет
// разговор в своё множество без отдельного шага присоединения.
type Invite struct {
	endpoint *Endpoint
	tx       ua.InviteTransaction
	result   *Result

	mu      sync.Mutex
	decided bool
	conv    *Conversation
}

func newInvite(e *Endpoint, tx ua.InviteTransaction) *Invite {
	return &Invite{
		endpoint: e,
		tx:       tx,
		result:   newResult(),
	}
}

// From возвращает адрес пригласившего участника.
func (i *Invite) From() string {
	return i.tx.From()
}

// Accept принимает приглашение и возвращает разговор с одним диалогом.
// Повторное решение по приглашению — ошибка ErrInviteDecided.
func (i *Invite) Accept(ctx context.Context) (*Conversation, error) {
	if err := i.decide(); err != nil {
		return nil, err
	}

	slog.Debug("Invite.Accept", slog.String("from", i.From()))

	handle, err := i.tx.Accept(ctx)
	if err != nil {
		wrapped := errors.Wrap(err, "failed to accept invite")
		i.result.resolve(wrapped)
		return nil, wrapped
	}

	d := newDialog(i.endpoint.agent, handle, i.endpoint.localStream, i.endpoint.iceServers)
	conv := NewConversation()
	conv.AddDialog(d)

	i.mu.Lock()
	i.conv = conv
	i.mu.Unlock()

	i.result.resolve(nil)
	return conv, nil
}

// Reject отклоняет приглашение. Отложенный результат разрешается
// ошибкой ErrInviteRejected; разговор не создаётся.
func (i *Invite) Reject(ctx context.Context) error {
	if err := i.decide(); err != nil {
		return err
	}

	slog.Debug("Invite.Reject", slog.String("from", i.From()))

	err := i.tx.Reject(ctx, rejectStatusBusyHere, "Busy Here")
	i.result.resolve(ErrInviteRejected)
	if err != nil {
		return errors.Wrap(err, "failed to reject invite")
	}
	return nil
}

// Conversation возвращает разговор принятого приглашения, nil до
// принятия.
func (i *Invite) Conversation() *Conversation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conv
}

// Wait блокируется до решения по приглашению и возвращает разговор
// принятого приглашения либо ошибку отклонения или принятия.
func (i *Invite) Wait(ctx context.Context) (*Conversation, error) {
	if err := i.result.Wait(ctx); err != nil {
		return nil, err
	}
	return i.Conversation(), nil
}

func (i *Invite) decide() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.decided {
		return ErrInviteDecided
	}
	i.decided = true
	return nil
}
