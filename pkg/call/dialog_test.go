package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/conf_call/pkg/media"
)

func TestDialogEndTwice(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	d := newDialog(agent, handle, media.NewStream(), nil)

	require.NoError(t, d.End(context.Background()))
	require.ErrorIs(t, d.End(context.Background()), ErrDialogEnded)
	assert.True(t, d.Ended())

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 1, handle.hangupCount())
	assert.Equal(t, dialogStateEnded, d.State())
}

func TestDialogEndedEvent(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	d := newDialog(agent, handle, media.NewStream(), nil)

	got := make(chan Event, 1)
	d.On(EventEnded, func(e Event) { got <- e })

	require.NoError(t, d.End(context.Background()))

	select {
	case e := <-got:
		assert.Same(t, d, e.Payload)
	case <-time.After(eventWait):
		t.Fatal("ended event not delivered")
	}
}

func TestDialogEndedEventReplayedToLateSubscriber(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	d := newDialog(agent, handle, media.NewStream(), nil)

	require.NoError(t, d.End(context.Background()))
	require.NoError(t, d.Wait(context.Background()))

	got := make(chan Event, 1)
	d.On(EventEnded, func(e Event) { got <- e })

	select {
	case <-got:
	case <-time.After(eventWait):
		t.Fatal("ended event not replayed after completion")
	}
}

func TestDialogRemoteHangup(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	d := newDialog(agent, handle, media.NewStream(), nil)

	handle.fireRemoteHangup()

	assert.True(t, d.Ended())
	require.NoError(t, d.Wait(context.Background()))
	// BYE удалённой стороне не отправляется.
	assert.Equal(t, 0, handle.hangupCount())

	require.ErrorIs(t, d.End(context.Background()), ErrDialogEnded)
}

func TestDialogRenegotiatesOnTrackChange(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	local := media.NewStream()
	d := newDialog(agent, handle, local, nil)

	reinvited := make(chan Event, 4)
	d.On(EventReinvite, func(e Event) { reinvited <- e })

	local.AddTrack(media.NewTrack(media.TrackKindAudio, "PCMU", 0, 8000))

	select {
	case <-handle.reinvited:
	case <-time.After(eventWait):
		t.Fatal("track change did not trigger renegotiation")
	}
	select {
	case e := <-reinvited:
		assert.Same(t, d, e.Payload)
	case <-time.After(eventWait):
		t.Fatal("reinvite event not delivered")
	}
}

func TestDialogNoRenegotiationAfterEnd(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	local := media.NewStream()
	d := newDialog(agent, handle, local, nil)

	require.NoError(t, d.End(context.Background()))
	require.NoError(t, d.Wait(context.Background()))

	local.AddTrack(media.NewTrack(media.TrackKindAudio, "PCMU", 0, 8000))

	select {
	case <-handle.reinvited:
		t.Fatal("renegotiation triggered after dialog end")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDialogUnsubscribesLazily(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	local := media.NewStream()
	d := newDialog(agent, handle, local, nil)

	require.NoError(t, d.End(context.Background()))

	// Первое уведомление после завершения снимает подписку.
	local.AddTrack(media.NewTrack(media.TrackKindAudio, "PCMU", 0, 8000))

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return !d.subscribed
	}, eventWait, 10*time.Millisecond)
}

func TestDialogAccessors(t *testing.T) {
	agent := newMockAgent("alice")
	handle := newMockHandle("alice", "bob")
	local := media.NewStream()
	ice := []ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	d := newDialog(agent, handle, local, ice)

	assert.Equal(t, "bob", d.Remote())
	assert.NotEmpty(t, d.SID())
	assert.Same(t, local, d.LocalStream())
	assert.NotNil(t, d.RemoteStream())
	assert.Equal(t, ice, d.IceServers())
	assert.Equal(t, agent, d.UserAgent())
	assert.False(t, d.Ended())
	assert.Equal(t, dialogStateActive, d.State())

	assert.True(t, d.ownedBy("alice"))
	assert.True(t, d.ownedBy("bob"))
	assert.False(t, d.ownedBy("carol"))
	assert.False(t, d.ownedBy(""))
}
