package call

import (
	"log/slog"
	"sort"
	"sync"
)

// EventType — тип уведомления жизненного цикла.
type EventType string

// Типы уведомлений ядра.
const (
	// EventListen — регистрация прошла успешно. Payload: *Endpoint.
	EventListen EventType = "listen"
	// EventListenFailed — регистрация не удалась. Payload: error.
	EventListenFailed EventType = "listenFailed"
	// EventUnlisten — регистрация снята. Payload: *Endpoint.
	EventUnlisten EventType = "unlisten"
	// EventInvite — входящее приглашение. Payload: *Invite.
	EventInvite EventType = "invite"
	// EventEnded — диалог завершён. Payload: *Dialog.
	EventEnded EventType = "ended"
	// EventReinvite — пересогласование сессии диалога выполнено.
	// Payload: *Dialog.
	EventReinvite EventType = "reinvite"
	// EventDialogAdded — диалог добавлен в разговор. Payload: *Dialog.
	EventDialogAdded EventType = "dialogAdded"
)

// Event — уведомление с полезной нагрузкой.
type Event struct {
	Type    EventType
	Payload any
}

// Handler обрабатывает уведомление. Обработчики вызываются
// последовательно на отдельной горутине-доставщике шины, никогда —
// внутри вызова, породившего уведомление.
type Handler func(Event)

// Уведомления о завершении операций удерживаются шиной и доигрываются
// подписчикам, пришедшим после эмиссии. Это и есть гарантия порядка:
// слушатель, подписавшийся сразу после вызова операции, всё равно
// получает её уведомление, причём ровно один раз.
var stickyEvents = map[EventType]bool{
	EventListen:       true,
	EventListenFailed: true,
	EventUnlisten:     true,
	EventEnded:        true,
}

type subscription struct {
	typ     EventType
	handler Handler
}

// eventBus — последовательная шина уведомлений.
//
// Доставка всегда отложенная: Post ставит задачу в очередь, очередь
// опустошает одна горутина за раз. Для sticky типов шина запоминает
// последнее уведомление и доигрывает его новым подписчикам ровно один
// раз: снимок обработчиков и запись sticky происходят под одной
// блокировкой, поэтому подписчик попадает либо в снимок, либо в доигрыш,
// но не в оба.
type eventBus struct {
	mu       sync.Mutex
	nextID   int
	subs     map[int]subscription
	sticky   map[EventType]Event
	queue    []func()
	draining bool
}

func newEventBus() *eventBus {
	return &eventBus{
		subs:   make(map[int]subscription),
		sticky: make(map[EventType]Event),
	}
}

// Subscribe регистрирует обработчик для типа уведомления и возвращает
// идентификатор подписки. Удержанное sticky уведомление доигрывается
// новому обработчику асинхронно.
func (b *eventBus) Subscribe(t EventType, h Handler) int {
	if h == nil {
		return -1
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{typ: t, handler: h}
	e, replay := b.sticky[t]
	if replay {
		b.queue = append(b.queue, func() { h(e) })
		b.startDrainLocked()
	}
	b.mu.Unlock()

	return id
}

// Unsubscribe удаляет подписку. Неизвестный идентификатор игнорируется.
func (b *eventBus) Unsubscribe(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Post ставит уведомление в очередь доставки и возвращает управление,
// не дожидаясь обработчиков.
func (b *eventBus) Post(e Event) {
	b.mu.Lock()
	if stickyEvents[e.Type] {
		b.sticky[e.Type] = e
	}
	ids := make([]int, 0, len(b.subs))
	for id, s := range b.subs {
		if s.typ == e.Type {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, b.subs[id].handler)
	}
	if len(hs) > 0 {
		b.queue = append(b.queue, func() {
			for _, h := range hs {
				h(e)
			}
		})
		b.startDrainLocked()
	}
	b.mu.Unlock()

	slog.Debug("eventBus.Post",
		slog.String("type", string(e.Type)),
		slog.Int("handlers", len(hs)))
}

func (b *eventBus) startDrainLocked() {
	if b.draining {
		return
	}
	b.draining = true
	go b.drain()
}

func (b *eventBus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		task := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		task()
	}
}
