package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/calendar"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/presence"
	"github.com/spec-kit/oh-queue/internal/repository/memstore"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []events.Message
	err  error
}

func (b *recordingBroadcaster) Publish(_ context.Context, msg events.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return b.err
}

func (b *recordingBroadcaster) changes() []events.TicketChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.TicketChange
	for _, m := range b.msgs {
		if m.Channel == events.ChannelEvent && m.Change != nil {
			out = append(out, *m.Change)
		}
	}
	return out
}

func (b *recordingBroadcaster) presence() []map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]int
	for _, m := range b.msgs {
		if m.Channel == events.ChannelPresence {
			out = append(out, m.Presence)
		}
	}
	return out
}

var testConventions = calendar.Conventions{
	UnclaimedMarker: "#appointment",
	ClaimedSummary:  "CS 61A Appointment",
	DefaultCost:     50,
}

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

var errCommit = errors.New("commit: connection reset")

type fixture struct {
	store        *memstore.Store
	cal          *calendar.MemoryClient
	broadcaster  *recordingBroadcaster
	queue        *QueueService
	appointments *AppointmentService
	sessions     *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New(func() time.Time { return testNow })
	cal := calendar.NewMemoryClient()
	bc := &recordingBroadcaster{}
	logger := zap.NewNop()

	appointments := newAppointmentService(store, cal, bc)
	queue := NewQueueService(QueueDependencies{
		Transactor:  store,
		TicketRepo:  store.Tickets(),
		UserRepo:    store.Users(),
		EventRepo:   store.Events(),
		Broadcaster: bc,
		Slots:       appointments,
		Logger:      logger,
	})
	sessions := NewSessionService(SessionDependencies{
		Presence:     presence.NewTracker(),
		Queue:        queue,
		Appointments: appointments,
		Broadcaster:  bc,
		Logger:       logger,
	})
	return &fixture{
		store:        store,
		cal:          cal,
		broadcaster:  bc,
		queue:        queue,
		appointments: appointments,
		sessions:     sessions,
	}
}

func newAppointmentService(store *memstore.Store, cal calendar.Client, bc *recordingBroadcaster) *AppointmentService {
	return NewAppointmentService(AppointmentDependencies{
		Transactor:  store,
		TicketRepo:  store.Tickets(),
		UserRepo:    store.Users(),
		EventRepo:   store.Events(),
		Calendar:    cal,
		Conventions: testConventions,
		Broadcaster: bc,
		Logger:      zap.NewNop(),
		CompensationBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		},
		Now: func() time.Time { return testNow },
	})
}

func (f *fixture) user(t *testing.T, email string, isStaff bool, credit int) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, Name: email, IsStaff: isStaff, CreditBalance: credit}
	if err := f.store.Users().Upsert(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) openSlot(id string, start time.Time, description string) {
	f.cal.Put(calendar.Slot{
		ID:          id,
		Summary:     testConventions.UnclaimedMarker,
		Description: description,
		Location:    "Soda 341",
		Visibility:  calendar.VisibilityPublic,
		Start:       start,
		End:         start.Add(30 * time.Minute),
	})
}
