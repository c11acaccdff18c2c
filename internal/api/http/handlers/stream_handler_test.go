package handlers

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/calendar"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/presence"
	"github.com/spec-kit/oh-queue/internal/repository/memstore"
	"github.com/spec-kit/oh-queue/internal/service"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newStreamHandler(t *testing.T) (*StreamHandler, *events.Hub) {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New(nil)
	hub := events.NewHub(4)
	appointments := service.NewAppointmentService(service.AppointmentDependencies{
		Transactor: store, TicketRepo: store.Tickets(), UserRepo: store.Users(), EventRepo: store.Events(),
		Calendar: calendar.NewMemoryClient(), Broadcaster: hub, Logger: logger,
	})
	queue := service.NewQueueService(service.QueueDependencies{
		Transactor: store, TicketRepo: store.Tickets(), UserRepo: store.Users(), EventRepo: store.Events(),
		Broadcaster: hub, Slots: appointments, Logger: logger,
	})
	sessions := service.NewSessionService(service.SessionDependencies{
		Presence: presence.NewTracker(), Queue: queue, Appointments: appointments, Broadcaster: hub, Logger: logger,
	})
	return NewStreamHandler(hub, sessions, logger, time.Hour), hub
}

func TestStreamPumpRendersPerViewer(t *testing.T) {
	h, hub := newStreamHandler(t)
	sub := hub.Subscribe("conn-1")
	viewer := &domain.User{ID: 7, Email: "other@example.com"}
	owner := domain.User{ID: 1, Email: "owner@example.com", Name: "Owner"}

	out := &lockedBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(bufio.NewWriter(out), sub, viewer, &service.State{})
	}()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, events.Message{
		Channel: events.ChannelEvent,
		Change:  &events.TicketChange{Type: domain.TicketEventCreate, Ticket: domain.Ticket{ID: 3, Status: domain.TicketStatusPending, User: owner}},
	}))
	require.NoError(t, hub.Publish(ctx, events.Message{
		Channel:  events.ChannelPresence,
		Presence: map[string]int{events.RoleStaff: 1, events.RoleStudents: 2},
	}))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "event: presence")
	}, time.Second, 10*time.Millisecond)
	h.Close()
	<-done

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "event: state\n"))
	assert.Contains(t, text, "event: event\n")
	assert.Contains(t, text, `"type":"create"`)
	assert.Contains(t, text, `"user":{}`)
	assert.NotContains(t, text, "owner@example.com")
	assert.Contains(t, text, `"students":2`)
}

func TestStreamPumpStopsWhenUnsubscribed(t *testing.T) {
	h, hub := newStreamHandler(t)
	sub := hub.Subscribe("conn-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(bufio.NewWriter(&lockedBuffer{}), sub, nil, &service.State{})
	}()
	hub.Unsubscribe("conn-1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestStreamPumpResyncsAfterRelayOutage(t *testing.T) {
	h, hub := newStreamHandler(t)
	sub := hub.Subscribe("conn-1")

	out := &lockedBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(bufio.NewWriter(out), sub, nil, &service.State{})
	}()

	hub.MarkAllResync()
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "event: state\n") == 2
	}, time.Second, 10*time.Millisecond)
	h.Close()
	<-done

	assert.NotContains(t, out.String(), "event: resync")
}
