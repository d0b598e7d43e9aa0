package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToSubscriber(t *testing.T) {
	bus := newEventBus()

	got := make(chan Event, 1)
	bus.Subscribe(EventInvite, func(e Event) { got <- e })

	bus.Post(Event{Type: EventInvite, Payload: "payload"})

	select {
	case e := <-got:
		assert.Equal(t, EventInvite, e.Type)
		assert.Equal(t, "payload", e.Payload)
	case <-time.After(eventWait):
		t.Fatal("event not delivered")
	}
}

func TestEventBusStickyReplayAfterPost(t *testing.T) {
	bus := newEventBus()

	// Уведомление уходит до появления подписчиков.
	bus.Post(Event{Type: EventListen, Payload: "first"})

	got := make(chan Event, 4)
	bus.Subscribe(EventListen, func(e Event) { got <- e })

	select {
	case e := <-got:
		assert.Equal(t, "first", e.Payload)
	case <-time.After(eventWait):
		t.Fatal("sticky event not replayed to late subscriber")
	}

	// Доигрыш однократный.
	select {
	case e := <-got:
		t.Fatalf("unexpected second delivery: %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBusExactlyOnceForEarlySubscriber(t *testing.T) {
	bus := newEventBus()

	got := make(chan Event, 4)
	bus.Subscribe(EventUnlisten, func(e Event) { got <- e })

	bus.Post(Event{Type: EventUnlisten, Payload: nil})

	select {
	case <-got:
	case <-time.After(eventWait):
		t.Fatal("event not delivered")
	}
	select {
	case <-got:
		t.Fatal("early subscriber received sticky replay on top of delivery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBusEdgeEventsNotRetained(t *testing.T) {
	bus := newEventBus()

	bus.Post(Event{Type: EventInvite, Payload: "gone"})

	got := make(chan Event, 1)
	bus.Subscribe(EventInvite, func(e Event) { got <- e })

	select {
	case e := <-got:
		t.Fatalf("edge event replayed: %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := newEventBus()

	got := make(chan Event, 1)
	id := bus.Subscribe(EventEnded, func(e Event) { got <- e })
	bus.Unsubscribe(id)

	bus.Post(Event{Type: EventDialogAdded, Payload: nil})
	bus.Post(Event{Type: EventEnded, Payload: nil})

	select {
	case <-got:
		t.Fatal("unsubscribed handler invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResultResolveOnce(t *testing.T) {
	r := newResult()

	errBoom := assert.AnError
	r.resolve(errBoom)
	r.resolve(nil)

	require.ErrorIs(t, r.Wait(context.Background()), errBoom)
	assert.ErrorIs(t, r.Err(), errBoom)
}

func TestResultWaitRespectsContext(t *testing.T) {
	r := newResult()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}
