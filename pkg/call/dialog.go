package call

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/arzzra/conf_call/pkg/media"
	"github.com/arzzra/conf_call/pkg/ua"
)

// Состояния диалога. Переход единственный и необратимый.
const (
	dialogStateActive = "active"
	dialogStateEnded  = "ended"

	dialogEventEnd = "end"
)

// Dialog — одно вызывное плечо к одному удалённому участнику.
//
// Диалог создаётся вокруг установленного плеча сигнального агента и
// живёт до завершения: локального (End), со стороны Leave, или
// удалённого (hangup плеча). Флаг ended монотонный: после завершения
// End возвращает ErrDialogEnded, пересогласование не запускается.
//
// Пока диалог активен, он подписан на изменения локального потока;
// каждое добавление или удаление дорожки запускает отдельное
// пересогласование сессии. Попытки не сливаются и не упорядочиваются
// между собой. После завершения подписка снимается лениво — при первом
// уведомлении, пришедшем после конца.
type Dialog struct {
	agent  ua.UserAgent
	handle ua.DialogHandle

	sid    string
	remote string
	from   string
	to     string

	local       *media.Stream
	remoteMedia *media.Stream
	iceServers  []ICEServer

	bus       *eventBus
	endResult *Result

	mu           sync.Mutex
	machine      *fsm.FSM
	ended        bool
	conversation *Conversation
	subAdded     int
	subRemoved   int
	subscribed   bool
}

func newDialog(agent ua.UserAgent, handle ua.DialogHandle, local *media.Stream, iceServers []ICEServer) *Dialog {
	d := &Dialog{
		agent:       agent,
		handle:      handle,
		sid:         uuid.NewString(),
		remote:      handle.Remote(),
		from:        handle.From(),
		to:          handle.To(),
		local:       local,
		remoteMedia: media.NewStream(),
		iceServers:  iceServers,
		bus:         newEventBus(),
		endResult:   newResult(),
	}

	d.machine = fsm.NewFSM(
		dialogStateActive,
		fsm.Events{
			{Name: dialogEventEnd, Src: []string{dialogStateActive}, Dst: dialogStateEnded},
		},
		fsm.Callbacks{
			"after_event": d.afterStateChange,
		})

	if d.local != nil {
		d.subAdded = d.local.OnTrackAdded(d.onTrackChange)
		d.subRemoved = d.local.OnTrackRemoved(d.onTrackChange)
		d.subscribed = true
	}

	handle.OnHangup(d.endRemote)

	metricDialogsTotal.Inc()
	metricDialogsActive.Inc()

	slog.Debug("Dialog created",
		slog.String("dialogSID", d.sid),
		slog.String("callID", handle.CallID()),
		slog.String("remote", d.remote))

	return d
}

func (d *Dialog) afterStateChange(_ context.Context, e *fsm.Event) {
	slog.Debug("Dialog state changed",
		slog.String("dialogSID", d.sid),
		slog.String("from", e.Src),
		slog.String("to", e.Dst))
}

// SID возвращает идентификатор сессии диалога.
func (d *Dialog) SID() string { return d.sid }

// Remote возвращает адрес удалённого участника.
func (d *Dialog) Remote() string { return d.remote }

// LocalStream возвращает локальный медиа поток диалога.
func (d *Dialog) LocalStream() *media.Stream { return d.local }

// RemoteStream возвращает удалённый медиа поток диалога.
func (d *Dialog) RemoteStream() *media.Stream { return d.remoteMedia }

// IceServers возвращает снимок списка ICE серверов.
func (d *Dialog) IceServers() []ICEServer {
	out := make([]ICEServer, len(d.iceServers))
	copy(out, d.iceServers)
	return out
}

// UserAgent возвращает сигнального агента, которому принадлежит плечо.
func (d *Dialog) UserAgent() ua.UserAgent { return d.agent }

// Ended возвращает true после завершения диалога.
func (d *Dialog) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}

// State возвращает текущее состояние машины диалога.
func (d *Dialog) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Current()
}

// Done закрывается, когда попытка завершения диалога доведена до конца,
// успешно или нет.
func (d *Dialog) Done() <-chan struct{} {
	return d.endResult.Done()
}

// Wait блокируется до доведения завершения диалога до конца.
func (d *Dialog) Wait(ctx context.Context) error {
	return d.endResult.Wait(ctx)
}

// On подписывает обработчик на уведомления диалога (EventEnded,
// EventReinvite) и возвращает идентификатор подписки.
func (d *Dialog) On(t EventType, h Handler) int {
	return d.bus.Subscribe(t, h)
}

// Off удаляет подписку диалога.
func (d *Dialog) Off(id int) {
	d.bus.Unsubscribe(id)
}

// End завершает диалог со стороны локального участника.
//
// Проверка и установка флага ended выполняются под одной блокировкой:
// конкурирующий End детерминированно получает ErrDialogEnded. Сам
// hangup плеча и уведомление EventEnded выполняются асинхронно после
// возврата; отказ hangup фиксируется в результате завершения и журнале,
// но на флаг ended не влияет.
func (d *Dialog) End(ctx context.Context) error {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return ErrDialogEnded
	}
	d.ended = true
	if err := d.machine.Event(ctx, dialogEventEnd); err != nil {
		slog.Debug("Dialog.End fsm event failed",
			slog.String("dialogSID", d.sid),
			slog.String("error", err.Error()))
	}
	d.mu.Unlock()

	slog.Debug("Dialog.End",
		slog.String("dialogSID", d.sid),
		slog.String("remote", d.remote))

	metricDialogsActive.Dec()

	go func() {
		err := d.handle.Hangup(ctx)
		if err != nil {
			slog.Debug("Dialog.End hangup failed",
				slog.String("dialogSID", d.sid),
				slog.String("error", err.Error()))
		}
		d.endResult.resolve(err)
		d.bus.Post(Event{Type: EventEnded, Payload: d})
	}()

	return nil
}

// endRemote завершает диалог по сигналу удалённой стороны. Семантика
// флага та же, что у End; hangup плеча не отправляется.
func (d *Dialog) endRemote() {
	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return
	}
	d.ended = true
	if err := d.machine.Event(context.Background(), dialogEventEnd); err != nil {
		slog.Debug("Dialog.endRemote fsm event failed",
			slog.String("dialogSID", d.sid),
			slog.String("error", err.Error()))
	}
	d.mu.Unlock()

	slog.Debug("Dialog ended by remote side",
		slog.String("dialogSID", d.sid),
		slog.String("remote", d.remote))

	metricDialogsActive.Dec()

	d.endResult.resolve(nil)
	d.bus.Post(Event{Type: EventEnded, Payload: d})
}

// onTrackChange вызывается потоком при добавлении или удалении дорожки.
// Флаг ended перечитывается на каждом уведомлении: End не снимает
// подписку синхронно, она снимается здесь, при первом уведомлении после
// завершения.
func (d *Dialog) onTrackChange(_ *media.Track) {
	d.mu.Lock()
	if d.ended {
		if d.subscribed {
			d.subscribed = false
			d.local.Unsubscribe(d.subAdded)
			d.local.Unsubscribe(d.subRemoved)
		}
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	go d.renegotiate(context.Background())
}

// renegotiate строит SDP предложение из текущего набора локальных
// дорожек и отправляет его через плечо. Отказ журналируется и не
// влияет на состояние диалога.
func (d *Dialog) renegotiate(ctx context.Context) {
	offer, err := media.BuildOffer(d.local, "conf_call")
	if err != nil {
		slog.Debug("Dialog.renegotiate build offer failed",
			slog.String("dialogSID", d.sid),
			slog.String("error", err.Error()))
		metricRenegotiations.WithLabelValues(outcomeFailed).Inc()
		return
	}

	if err := d.handle.Reinvite(ctx, offer); err != nil {
		slog.Debug("Dialog.renegotiate reinvite failed",
			slog.String("dialogSID", d.sid),
			slog.String("error", err.Error()))
		metricRenegotiations.WithLabelValues(outcomeFailed).Inc()
		return
	}

	metricRenegotiations.WithLabelValues(outcomeOK).Inc()
	d.bus.Post(Event{Type: EventReinvite, Payload: d})
}

// attach связывает диалог с разговором. Возвращает false, если диалог
// уже состоит в другом разговоре.
func (d *Dialog) attach(c *Conversation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conversation != nil && d.conversation != c {
		return false
	}
	d.conversation = c
	return true
}

// ownedBy сообщает, участвует ли адрес в плече как вызывающая или
// вызываемая сторона.
func (d *Dialog) ownedBy(address string) bool {
	return address != "" && (d.from == address || d.to == address)
}
