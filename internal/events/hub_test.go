package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/oh-queue/internal/domain"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	require.Equal(t, 2, h.Len())

	msg := Message{Channel: ChannelEvent, Change: &TicketChange{Type: domain.TicketEventCreate, Ticket: domain.Ticket{ID: 7}}}
	require.NoError(t, h.Publish(context.Background(), msg))

	for _, sub := range []*Subscription{a, b} {
		got := <-sub.C
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, int64(7), got.Change.Ticket.ID)
	}
}

func TestHubSlowSubscriberIsFlagged(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("slow")
	ctx := context.Background()

	require.NoError(t, h.Publish(ctx, Message{Channel: ChannelPresence}))
	require.NoError(t, h.Publish(ctx, Message{Channel: ChannelPresence}))

	assert.True(t, sub.NeedsResync())
	assert.False(t, sub.NeedsResync(), "flag is cleared once read")
	assert.Len(t, sub.C, 1)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(0)
	sub := h.Subscribe("a")
	h.Unsubscribe("a")
	h.Unsubscribe("a")

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	require.NoError(t, h.Publish(context.Background(), Message{Channel: ChannelPresence}))
}

func TestHubMarkAllResync(t *testing.T) {
	h := NewHub(1)
	idle := h.Subscribe("idle")
	full := h.Subscribe("full")
	require.NoError(t, h.Publish(context.Background(), Message{Channel: ChannelPresence}))
	<-idle.C

	h.MarkAllResync()

	got := <-idle.C
	assert.Equal(t, ChannelResync, got.Channel)
	assert.True(t, idle.NeedsResync())
	assert.True(t, full.NeedsResync(), "a full buffer still keeps the flag")
	assert.Equal(t, ChannelPresence, (<-full.C).Channel)
}
