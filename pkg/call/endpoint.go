package call

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/arzzra/conf_call/pkg/media"
	"github.com/arzzra/conf_call/pkg/sound"
	"github.com/arzzra/conf_call/pkg/token"
	"github.com/arzzra/conf_call/pkg/ua"
)

// ICEServer описывает один ICE сервер для установления медиа сессии.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// RemoteEndpoint — набор возможностей участника, достаточный для
// перечисления его разговоров и выхода из них. Локальный Endpoint
// реализует его композицией, без цепочек наследования.
type RemoteEndpoint interface {
	// Address возвращает адрес участника.
	Address() string

	// Conversations возвращает снимок отслеживаемых разговоров.
	Conversations() []*Conversation

	// Leave завершает свои плечи в указанных разговорах и убирает
	// разговоры из членства.
	Leave(ctx context.Context, convs ...*Conversation) error
}

var _ RemoteEndpoint = (*Endpoint)(nil)

// Option настраивает Endpoint при создании.
type Option func(*Endpoint) error

// WithCredential задаёт учётные данные, используемые первым Listen.
func WithCredential(cred *token.Credential) Option {
	return func(e *Endpoint) error {
		e.cred = cred
		return nil
	}
}

// WithICEServers задаёт список ICE серверов, передаваемый диалогам.
func WithICEServers(servers []ICEServer) Option {
	return func(e *Endpoint) error {
		e.iceServers = servers
		return nil
	}
}

// WithLocalStream задаёт локальный медиа поток вместо пустого.
func WithLocalStream(s *media.Stream) Option {
	return func(e *Endpoint) error {
		if s == nil {
			return errors.New("local stream must not be nil")
		}
		e.localStream = s
		return nil
	}
}

// WithAutoListen управляет автоматической регистрацией при создании.
// По умолчанию включена; результат виден через уведомления
// EventListen и EventListenFailed.
func WithAutoListen(enabled bool) Option {
	return func(e *Endpoint) error {
		e.autoListen = enabled
		return nil
	}
}

// WithOutgoingCue задаёт сигнал исходящего вызова.
func WithOutgoingCue(cue *sound.Cue) Option {
	return func(e *Endpoint) error {
		if cue == nil {
			return errors.New("outgoing cue must not be nil")
		}
		e.outgoing = cue
		return nil
	}
}

// Endpoint — локальный участник: регистрация на rendezvous сервисе,
// приём и рассылка приглашений, членство в разговорах.
//
// Состояние прослушивания не хранится: Listening — чистая проекция
// состояния регистрации сигнального агента. Множество разговоров
// изменяется только методами Endpoint; наружу отдаются снимки.
type Endpoint struct {
	agent ua.UserAgent
	bus   *eventBus

	cred        *token.Credential
	localStream *media.Stream
	iceServers  []ICEServer
	outgoing    *sound.Cue
	autoListen  bool

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewEndpoint создаёт участника поверх сигнального агента и подписывает
// его на входящие приглашения. Если автоматическая регистрация не
// отключена через WithAutoListen(false), первый Listen запускается
// сразу, его исход приходит уведомлением.
func NewEndpoint(agent ua.UserAgent, opts ...Option) (*Endpoint, error) {
	if agent == nil {
		return nil, errors.New("user agent is required")
	}

	e := &Endpoint{
		agent:         agent,
		bus:           newEventBus(),
		autoListen:    true,
		conversations: make(map[string]*Conversation),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, errors.Wrap(err, "invalid endpoint option")
		}
	}

	if e.localStream == nil {
		e.localStream = media.NewStream()
	}
	if e.outgoing == nil {
		e.outgoing = sound.NewCue("outgoing", sound.SilentDevice())
	}

	agent.OnInvite(e.handleInvite)

	if e.autoListen {
		e.Listen(context.Background())
	}

	return e, nil
}

// Address возвращает адрес участника из текущих учётных данных агента.
func (e *Endpoint) Address() string {
	if cred := e.agent.Credential(); cred != nil {
		return cred.Address()
	}
	if e.cred != nil {
		return e.cred.Address()
	}
	return ""
}

// Listening возвращает true, пока агент зарегистрирован.
func (e *Endpoint) Listening() bool {
	return e.agent.Registered()
}

// On подписывает обработчик на уведомления участника и возвращает
// идентификатор подписки. Уведомления EventListen, EventListenFailed и
// EventUnlisten удерживаются шиной: подписчик, пришедший после
// завершения операции, получает последнее из них ровно один раз.
func (e *Endpoint) On(t EventType, h Handler) int {
	return e.bus.Subscribe(t, h)
}

// Off удаляет подписку участника.
func (e *Endpoint) Off(id int) {
	e.bus.Unsubscribe(id)
}

// Listen регистрирует участника на rendezvous сервисе. Ненулевой cred
// заменяет учётные данные. Вызов не блокирует: исход приходит через
// возвращённый Result и уведомление EventListen либо EventListenFailed.
func (e *Endpoint) Listen(ctx context.Context, cred ...*token.Credential) *Result {
	c := e.cred
	if len(cred) > 0 && cred[0] != nil {
		c = cred[0]
	}

	r := newResult()
	go func() {
		if err := e.agent.Register(ctx, c); err != nil {
			slog.Debug("Endpoint.Listen register failed",
				slog.String("address", e.Address()),
				slog.String("error", err.Error()))
			metricRegistrations.WithLabelValues(outcomeFailed).Inc()
			e.bus.Post(Event{Type: EventListenFailed, Payload: err})
			r.resolve(errors.Wrap(err, "registration failed"))
			return
		}

		slog.Debug("Endpoint.Listen registered",
			slog.String("address", e.Address()))
		metricRegistrations.WithLabelValues(outcomeOK).Inc()
		e.bus.Post(Event{Type: EventListen, Payload: e})
		r.resolve(nil)
	}()
	return r
}

// Unlisten снимает регистрацию. Отказ коллаборатора проглатывается:
// уведомление EventUnlisten отправляется в обоих случаях, результат
// разрешается успехом. Это осознанная политика best-effort остановки.
func (e *Endpoint) Unlisten(ctx context.Context) *Result {
	r := newResult()
	go func() {
		if err := e.agent.Unregister(ctx); err != nil {
			slog.Debug("Endpoint.Unlisten unregister failed",
				slog.String("address", e.Address()),
				slog.String("error", err.Error()))
		}
		e.bus.Post(Event{Type: EventUnlisten, Payload: e})
		r.resolve(nil)
	}()
	return r
}

// Invite рассылает приглашения и собирает разговор.
//
// На каждый адрес запускается независимая попытка; метод возвращает
// разговор, как только успешна хотя бы одна из них. Попытки,
// завершившиеся позже, не отменяются: их диалоги добавляются в тот же
// разговор. Если не удалась ни одна попытка, возвращается первая
// зафиксированная ошибка, разговор не отслеживается. Сигнал исходящего
// вызова играет на время ожидания и останавливается ровно один раз.
func (e *Endpoint) Invite(ctx context.Context, addresses ...string) (*Conversation, error) {
	if len(addresses) == 0 {
		return nil, ErrNoAddresses
	}

	slog.Debug("Endpoint.Invite",
		slog.String("address", e.Address()),
		slog.Int("targets", len(addresses)))

	e.outgoing.Play()
	conv := NewConversation()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Bool
		success   = make(chan struct{}, 1)
		errMu     sync.Mutex
		firstErr  error
	)

	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			handle, err := e.agent.Invite(ctx, addr)
			if err != nil {
				slog.Debug("Endpoint.Invite attempt failed",
					slog.String("target", addr),
					slog.String("error", err.Error()))
				metricInviteAttempts.WithLabelValues(outcomeFailed).Inc()
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}

			metricInviteAttempts.WithLabelValues(outcomeOK).Inc()
			d := newDialog(e.agent, handle, e.localStream, e.iceServers)
			conv.AddDialog(d)
			succeeded.Store(true)
			select {
			case success <- struct{}{}:
			default:
			}
		}(addr)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-success:
	case <-allDone:
		if !succeeded.Load() {
			e.outgoing.Stop()
			errMu.Lock()
			err := firstErr
			errMu.Unlock()
			return nil, errors.Wrap(err, "all invite attempts failed")
		}
	case <-ctx.Done():
		e.outgoing.Stop()
		return nil, ctx.Err()
	}

	e.outgoing.Stop()
	e.addConversation(conv)
	return conv, nil
}

// Leave завершает свои плечи в указанных разговорах, либо во всех
// отслеживаемых, если разговоры не указаны.
//
// Плечо завершается, только если локальный адрес — одна из его сторон.
// Попытки завершения идут параллельно; метод ждёт доведения каждой до
// конца, успех или отказ равнозначны. Разговоры убираются из членства
// безусловно: отказ завершения отдельного плеча не блокирует очистку.
func (e *Endpoint) Leave(ctx context.Context, convs ...*Conversation) error {
	targets := convs
	if len(targets) == 0 {
		targets = e.Conversations()
	}
	identity := e.Address()

	slog.Debug("Endpoint.Leave",
		slog.String("address", identity),
		slog.Int("conversations", len(targets)))

	var wg sync.WaitGroup
	for _, c := range targets {
		if c == nil {
			continue
		}
		for _, d := range c.Dialogs() {
			if !d.ownedBy(identity) {
				continue
			}
			wg.Add(1)
			go func(d *Dialog) {
				defer wg.Done()

				if err := d.End(ctx); err != nil && !errors.Is(err, ErrDialogEnded) {
					slog.Debug("Endpoint.Leave end failed",
						slog.String("dialogSID", d.SID()),
						slog.String("error", err.Error()))
				}
				if err := d.Wait(ctx); err != nil {
					slog.Debug("Endpoint.Leave teardown error",
						slog.String("dialogSID", d.SID()),
						slog.String("error", err.Error()))
				}
			}(d)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	for _, c := range targets {
		if c != nil {
			e.removeConversation(c)
		}
	}
	return err
}

// MuteAudio не реализован и всегда возвращает ErrNotImplemented.
func (e *Endpoint) MuteAudio() error {
	return ErrNotImplemented
}

// PauseVideo не реализован и всегда возвращает ErrNotImplemented.
func (e *Endpoint) PauseVideo() error {
	return ErrNotImplemented
}

// Conversations возвращает снимок отслеживаемых разговоров.
func (e *Endpoint) Conversations() []*Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Conversation, 0, len(e.conversations))
	for _, c := range e.conversations {
		out = append(out, c)
	}
	return out
}

// Close снимает регистрацию и дожидается уведомления об этом.
func (e *Endpoint) Close(ctx context.Context) error {
	return e.Unlisten(ctx).Wait(ctx)
}

// handleInvite оборачивает входящее предложение в Invite и публикует
// его приложению. Разрешение приглашения отслеживается независимо от
// реакции приложения: принятый разговор попадает в членство без
// отдельного шага присоединения.
func (e *Endpoint) handleInvite(tx ua.InviteTransaction) {
	inv := newInvite(e, tx)

	go func() {
		<-inv.result.Done()
		if c := inv.Conversation(); c != nil {
			e.addConversation(c)
		}
	}()

	slog.Debug("Endpoint inbound invite",
		slog.String("address", e.Address()),
		slog.String("from", inv.From()))

	e.bus.Post(Event{Type: EventInvite, Payload: inv})
}

func (e *Endpoint) addConversation(c *Conversation) {
	e.mu.Lock()
	e.conversations[c.SID()] = c
	e.mu.Unlock()
}

func (e *Endpoint) removeConversation(c *Conversation) {
	e.mu.Lock()
	delete(e.conversations, c.SID())
	e.mu.Unlock()
}
