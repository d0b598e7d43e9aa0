package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arzzra/conf_call/pkg/media"
)

func TestConversationAddDialogSetSemantics(t *testing.T) {
	agent := newMockAgent("alice")
	d := newDialog(agent, newMockHandle("alice", "bob"), media.NewStream(), nil)

	c := NewConversation()
	added := make(chan *Dialog, 4)
	c.OnDialogAdded(func(d *Dialog) { added <- d })

	c.AddDialog(d)
	c.AddDialog(d)

	assert.Equal(t, 1, c.Size())

	select {
	case got := <-added:
		assert.Same(t, d, got)
	case <-time.After(eventWait):
		t.Fatal("dialogAdded not delivered")
	}
	select {
	case <-added:
		t.Fatal("duplicate add notified subscriber")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConversationDialogOwnership(t *testing.T) {
	agent := newMockAgent("alice")
	d := newDialog(agent, newMockHandle("alice", "bob"), media.NewStream(), nil)

	first := NewConversation()
	second := NewConversation()

	first.AddDialog(d)
	second.AddDialog(d)

	assert.Equal(t, 1, first.Size())
	assert.Equal(t, 0, second.Size(), "dialog must belong to at most one conversation")
}

func TestConversationDialogsOrder(t *testing.T) {
	agent := newMockAgent("alice")
	c := NewConversation()

	var dialogs []*Dialog
	for _, remote := range []string{"bob", "carol", "dave"} {
		d := newDialog(agent, newMockHandle("alice", remote), media.NewStream(), nil)
		dialogs = append(dialogs, d)
		c.AddDialog(d)
	}

	got := c.Dialogs()
	assert.Len(t, got, 3)
	for i, d := range dialogs {
		assert.Same(t, d, got[i])
	}
	assert.Equal(t, []string{"bob", "carol", "dave"}, c.sortedRemotes())
}

func TestConversationAddNilDialog(t *testing.T) {
	c := NewConversation()
	c.AddDialog(nil)
	assert.Equal(t, 0, c.Size())
	assert.NotEmpty(t, c.SID())
}
