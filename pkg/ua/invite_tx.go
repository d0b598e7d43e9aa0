package ua

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"
)

// Проверяем, что sipInviteTransaction реализует интерфейс InviteTransaction
var _ InviteTransaction = (*sipInviteTransaction)(nil)

// sipInviteTransaction — входящий INVITE, ожидающий решения приложения.
type sipInviteTransaction struct {
	agent *SIPUserAgent
	req   *sip.Request
	tx    sip.ServerTransaction
	from  string

	mu      sync.Mutex
	decided bool
}

// From возвращает адрес пригласившего участника.
func (t *sipInviteTransaction) From() string { return t.from }

// Accept принимает приглашение (200 OK) и возвращает установленное плечо.
func (t *sipInviteTransaction) Accept(ctx context.Context) (DialogHandle, error) {
	if err := t.decide(); err != nil {
		return nil, err
	}

	localTag := newTag()
	res := sip.NewResponseFromRequest(t.req, sip.StatusOK, "OK", nil)
	if to := res.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		to.Params.Add("tag", localTag)
	}
	res.AppendHeader(&sip.ContactHeader{Address: t.agent.contact})

	if err := t.tx.Respond(res); err != nil {
		return nil, errors.Wrap(err, "failed to accept invite")
	}

	remoteTag, _ := t.req.From().Params.Get("tag")
	localURI := t.req.To().Address
	remoteURI := t.req.From().Address
	remoteTarget := remoteURI
	if contact := t.req.GetHeader("Contact"); contact != nil {
		if uri := uriFromHeaderValue(contact.Value()); uri != nil {
			remoteTarget = *uri
		}
	}

	h := &sipDialogHandle{
		agent:        t.agent,
		callID:       t.req.CallID().Value(),
		localURI:     localURI,
		remoteURI:    remoteURI,
		localTag:     localTag,
		remoteTag:    remoteTag,
		remoteTarget: remoteTarget,
		from:         remoteURI.User,
		to:           localURI.User,
		remote:       remoteURI.User,
	}
	h.cseq.Store(t.req.CSeq().SeqNo)

	t.agent.mu.Lock()
	t.agent.handles[h.callID] = h
	t.agent.mu.Unlock()

	// ACK подтверждает 200 OK; для установленного плеча он информационный
	go t.awaitAck(ctx, h.callID)

	slog.Debug("sipInviteTransaction.Accept",
		slog.String("callID", h.callID),
		slog.String("from", h.from))
	return h, nil
}

// awaitAck дожидается ACK для принятого приглашения.
func (t *sipInviteTransaction) awaitAck(ctx context.Context, callID string) {
	acks := t.tx.Acks()
	if acks == nil {
		return
	}
	select {
	case <-acks:
		slog.Debug("sipInviteTransaction received ACK", slog.String("callID", callID))
	case <-t.tx.Done():
	case <-ctx.Done():
	}
}

// Reject отклоняет приглашение с указанным кодом и причиной.
func (t *sipInviteTransaction) Reject(ctx context.Context, statusCode int, reason string) error {
	if err := t.decide(); err != nil {
		return err
	}

	res := sip.NewResponseFromRequest(t.req, sip.StatusCode(statusCode), reason, nil)
	if err := t.tx.Respond(res); err != nil {
		return errors.Wrap(err, "failed to reject invite")
	}

	slog.Debug("sipInviteTransaction.Reject",
		slog.String("callID", t.req.CallID().Value()),
		slog.Int("status", statusCode))
	return nil
}

// decide помечает транзакцию решённой. Повторное решение — ошибка.
func (t *sipInviteTransaction) decide() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decided {
		return errors.New("invite transaction already decided")
	}
	t.decided = true
	return nil
}
