package ua

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"
)

// Проверяем, что sipDialogHandle реализует интерфейс DialogHandle
var _ DialogHandle = (*sipDialogHandle)(nil)

// sipDialogHandle — установленное SIP плечо (подтверждённый диалог).
type sipDialogHandle struct {
	agent *SIPUserAgent

	callID       string
	localURI     sip.Uri
	remoteURI    sip.Uri
	localTag     string
	remoteTag    string
	remoteTarget sip.Uri

	from   string
	to     string
	remote string

	cseq atomic.Uint32

	mu       sync.Mutex
	onHangup func()
	ended    bool
}

// CallID возвращает идентификатор сессии плеча.
func (h *sipDialogHandle) CallID() string { return h.callID }

// From возвращает адрес вызывающей стороны.
func (h *sipDialogHandle) From() string { return h.from }

// To возвращает адрес вызываемой стороны.
func (h *sipDialogHandle) To() string { return h.to }

// Remote возвращает адрес удалённого участника плеча.
func (h *sipDialogHandle) Remote() string { return h.remote }

// OnHangup устанавливает обработчик завершения плеча удалённой стороной.
func (h *sipDialogHandle) OnHangup(handler func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onHangup = handler
}

// remoteEnded помечает плечо завершённым удалённой стороной и вызывает
// обработчик. Повторный вызов игнорируется.
func (h *sipDialogHandle) remoteEnded() {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	handler := h.onHangup
	h.mu.Unlock()

	slog.Debug("sipDialogHandle.remoteEnded", slog.String("callID", h.callID))
	if handler != nil {
		handler()
	}
}

// Hangup завершает плечо (BYE). Ошибка сети не отменяет локальное
// завершение: плечо убирается из таблицы активных в любом случае.
func (h *sipDialogHandle) Hangup(ctx context.Context) error {
	h.mu.Lock()
	alreadyEnded := h.ended
	h.ended = true
	h.mu.Unlock()

	h.agent.dropHandle(h.callID)
	if alreadyEnded {
		return nil
	}

	req := h.makeRequest(sip.BYE)
	slog.Debug("sipDialogHandle.Hangup", slog.String("callID", h.callID))

	res, err := h.agent.client.Do(ctx, req)
	if err != nil {
		return errors.Wrap(err, "failed to send BYE")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("BYE rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

// Reinvite запускает пересогласование сессии с новым SDP предложением.
// Блокируется до окончательного ответа удалённой стороны.
func (h *sipDialogHandle) Reinvite(ctx context.Context, offer []byte) error {
	h.mu.Lock()
	ended := h.ended
	h.mu.Unlock()
	if ended {
		return errors.New("dialog handle has ended")
	}

	req := h.makeRequest(sip.INVITE)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.SetBody(offer)

	slog.Debug("sipDialogHandle.Reinvite",
		slog.String("callID", h.callID),
		slog.Int("offerSize", len(offer)))

	tx, err := h.agent.client.TransactionRequest(ctx, req)
	if err != nil {
		return errors.Wrap(err, "failed to send re-INVITE")
	}
	defer tx.Terminate()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return errors.New("re-INVITE transaction closed without final response")
			}
			if res.StatusCode < 200 {
				continue
			}
			if res.StatusCode >= 300 {
				return errors.Errorf("re-INVITE rejected: %d %s", res.StatusCode, res.Reason)
			}
			ack := sip.NewAckRequest(req, res, nil)
			if err := h.agent.client.WriteRequest(ack); err != nil {
				return errors.Wrap(err, "failed to send ACK for re-INVITE")
			}
			return nil

		case <-ctx.Done():
			return ctx.Err()

		case <-tx.Done():
			if err := tx.Err(); err != nil {
				return errors.Wrap(err, "re-INVITE transaction failed")
			}
			return errors.New("re-INVITE transaction terminated")
		}
	}
}

// makeRequest строит запрос в рамках плеча с диалоговыми заголовками.
func (h *sipDialogHandle) makeRequest(method sip.RequestMethod) *sip.Request {
	req := sip.NewRequest(method, h.remoteTarget)

	req.AppendHeader(&sip.FromHeader{
		Address: h.localURI,
		Params:  sip.NewParams().Add("tag", h.localTag),
	})
	to := &sip.ToHeader{Address: h.remoteURI}
	if h.remoteTag != "" {
		to.Params = sip.NewParams().Add("tag", h.remoteTag)
	}
	req.AppendHeader(to)

	callID := sip.CallIDHeader(h.callID)
	req.AppendHeader(&callID)

	seq := h.cseq.Add(1)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})
	req.AppendHeader(&sip.ContactHeader{Address: h.agent.contact})
	req.AppendHeader(sip.NewHeader("User-Agent", h.agent.cfg.UserAgent))

	return req
}

// String возвращает строковое представление плеча для логов.
func (h *sipDialogHandle) String() string {
	return fmt.Sprintf("%s (%s -> %s)", h.callID, h.from, h.to)
}
