package call

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Conversation — многосторонний сеанс вызова: изменяемое множество
// активных диалогов. Сама по себе несёт только членство; регистрация и
// сигнализация остаются на Endpoint и Dialog.
type Conversation struct {
	sid string
	bus *eventBus

	mu      sync.Mutex
	dialogs map[string]*Dialog
	order   []string
}

// NewConversation создаёт пустой разговор.
func NewConversation() *Conversation {
	return &Conversation{
		sid:     uuid.NewString(),
		bus:     newEventBus(),
		dialogs: make(map[string]*Dialog),
	}
}

// SID возвращает идентификатор разговора.
func (c *Conversation) SID() string {
	return c.sid
}

// AddDialog добавляет диалог в разговор. Повторное добавление того же
// диалога игнорируется (семантика множества). Диалог принадлежит не
// более чем одному разговору: попытка добавить диалог, уже состоящий в
// другом разговоре, игнорируется с записью в журнал.
func (c *Conversation) AddDialog(d *Dialog) {
	if d == nil {
		return
	}

	if !d.attach(c) {
		slog.Debug("Conversation.AddDialog rejected",
			slog.String("conversationSID", c.sid),
			slog.String("dialogSID", d.SID()))
		return
	}

	c.mu.Lock()
	if _, ok := c.dialogs[d.SID()]; ok {
		c.mu.Unlock()
		return
	}
	c.dialogs[d.SID()] = d
	c.order = append(c.order, d.SID())
	c.mu.Unlock()

	slog.Debug("Conversation.AddDialog",
		slog.String("conversationSID", c.sid),
		slog.String("dialogSID", d.SID()),
		slog.String("remote", d.Remote()))

	c.bus.Post(Event{Type: EventDialogAdded, Payload: d})
}

// Dialogs возвращает снимок диалогов в порядке добавления.
func (c *Conversation) Dialogs() []*Dialog {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Dialog, 0, len(c.order))
	for _, sid := range c.order {
		out = append(out, c.dialogs[sid])
	}
	return out
}

// Size возвращает число диалогов в разговоре.
func (c *Conversation) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dialogs)
}

// OnDialogAdded подписывает обработчик на добавление диалогов и
// возвращает идентификатор подписки.
func (c *Conversation) OnDialogAdded(h func(*Dialog)) int {
	if h == nil {
		return -1
	}
	return c.bus.Subscribe(EventDialogAdded, func(e Event) {
		if d, ok := e.Payload.(*Dialog); ok {
			h(d)
		}
	})
}

// Off удаляет подписку разговора.
func (c *Conversation) Off(id int) {
	c.bus.Unsubscribe(id)
}

// sortedRemotes — адреса удалённых участников в лексикографическом
// порядке, для журналирования и тестов.
func (c *Conversation) sortedRemotes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.dialogs))
	for _, d := range c.dialogs {
		out = append(out, d.Remote())
	}
	sort.Strings(out)
	return out
}
