// Package memstore is an in-process implementation of the repository
// interfaces, used when no database is configured and in tests.
//
// A transaction holds the store lock for its whole duration, so
// transactions are serialized, and a failed transaction restores the state
// it started from. The uniqueness rules of the SQL schema are enforced on
// insert.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/repository"
)

// Store holds users, tickets and the event log.
type Store struct {
	mu         sync.Mutex
	users      map[int64]domain.User
	tickets    map[int64]domain.Ticket
	events     []domain.TicketEvent
	nextUser   int64
	nextTicket int64
	now        func() time.Time

	commitErr error
}

type txKey struct{}

type snapshot struct {
	users      map[int64]domain.User
	tickets    map[int64]domain.Ticket
	events     []domain.TicketEvent
	nextUser   int64
	nextTicket int64
}

// New returns an empty store. now stamps tickets and events; nil uses
// time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:   make(map[int64]domain.User),
		tickets: make(map[int64]domain.Ticket),
		now:     now,
	}
}

var (
	_ repository.Transactor            = (*Store)(nil)
	_ repository.TicketRepository      = Tickets{}
	_ repository.UserRepository        = Users{}
	_ repository.TicketEventRepository = Events{}
)

// Tickets returns the ticket repository view.
func (s *Store) Tickets() Tickets { return Tickets{s} }

// Users returns the user repository view.
func (s *Store) Users() Users { return Users{s} }

// Events returns the event log view.
func (s *Store) Events() Events { return Events{s} }

// FailNextCommit makes the next top-level transaction whose body succeeds
// roll back and return err instead of committing.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()
	err := fn(context.WithValue(ctx, txKey{}, true))
	if err == nil && s.commitErr != nil {
		err, s.commitErr = s.commitErr, nil
	}
	if err != nil {
		s.restore(snap)
	}
	return err
}

// TicketCount counts a user's tickets, optionally only non-terminal ones.
func (s *Store) TicketCount(userID int64, activeOnly bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tickets {
		if t.User.ID == userID && (!activeOnly || t.Status.Active()) {
			n++
		}
	}
	return n
}

// EventsFor returns the log entries of one ticket in append order.
func (s *Store) EventsFor(ticketID int64) []domain.TicketEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketEvent
	for _, e := range s.events {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out
}

// User returns the stored user, zero if absent.
func (s *Store) User(id int64) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// Ticket returns the stored ticket, zero if absent.
func (s *Store) Ticket(id int64) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}
	}
	return s.hydrate(t)
}

func (s *Store) guard(ctx context.Context, fn func()) {
	if ctx.Value(txKey{}) != nil {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:      make(map[int64]domain.User, len(s.users)),
		tickets:    make(map[int64]domain.Ticket, len(s.tickets)),
		events:     append([]domain.TicketEvent(nil), s.events...),
		nextUser:   s.nextUser,
		nextTicket: s.nextTicket,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.tickets {
		snap.tickets[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.tickets = snap.tickets
	s.events = snap.events
	s.nextUser = snap.nextUser
	s.nextTicket = snap.nextTicket
}

// hydrate joins the current user rows into t.
func (s *Store) hydrate(t domain.Ticket) domain.Ticket {
	t.User = s.users[t.User.ID]
	if t.Helper != nil {
		h := s.users[t.Helper.ID]
		t.Helper = &h
	}
	return t
}

func (s *Store) sorted(keep func(domain.Ticket) bool) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, s.hydrate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tickets implements repository.TicketRepository.
type Tickets struct{ s *Store }

func (r Tickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	var err error
	r.s.guard(ctx, func() {
		if _, ok := r.s.users[ticket.User.ID]; !ok {
			err = repository.ErrNotFound
			return
		}
		for _, existing := range r.s.tickets {
			if ticket.Status.Active() && existing.User.ID == ticket.User.ID && existing.Status.Active() {
				err = repository.ErrActiveTicketExists
				return
			}
			if ticket.CalendarEvent != nil && existing.CalendarEvent != nil &&
				*existing.CalendarEvent == *ticket.CalendarEvent && existing.Status != domain.TicketStatusDeleted {
				err = repository.ErrSlotAlreadyReserved
				return
			}
		}
		r.s.nextTicket++
		ticket.ID = r.s.nextTicket
		ticket.Created = r.s.now().UTC()
		r.s.tickets[ticket.ID] = *ticket
	})
	return err
}

func (r Tickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	var err error
	r.s.guard(ctx, func() {
		stored, ok := r.s.tickets[ticket.ID]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		stored.Status = ticket.Status
		stored.Helper = ticket.Helper
		stored.Description = ticket.Description
		r.s.tickets[ticket.ID] = stored
	})
	return err
}

func (r Tickets) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	var (
		out *domain.Ticket
		err error
	)
	r.s.guard(ctx, func() {
		t, ok := r.s.tickets[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		h := r.s.hydrate(t)
		out = &h
	})
	return out, err
}

func (r Tickets) ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Ticket
	r.s.guard(ctx, func() {
		out = r.s.sorted(func(t domain.Ticket) bool { return want[t.ID] })
	})
	return out, nil
}

// LockByIDs is ListByIDs; the transaction already holds the store lock.
func (r Tickets) LockByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	return r.ListByIDs(ctx, ids)
}

func (r Tickets) FindActiveByUser(ctx context.Context, userID int64) (*domain.Ticket, error) {
	return r.first(ctx, func(t domain.Ticket) bool { return t.User.ID == userID && t.Status.Active() })
}

func (r Tickets) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	r.s.guard(ctx, func() {
		out = r.s.sorted(func(t domain.Ticket) bool { return t.Status.Active() })
	})
	return out, nil
}

func (r Tickets) FirstAssignedTo(ctx context.Context, helperID int64) (*domain.Ticket, error) {
	return r.first(ctx, func(t domain.Ticket) bool {
		return t.Status == domain.TicketStatusAssigned && t.Helper != nil && t.Helper.ID == helperID
	})
}

func (r Tickets) FirstPending(ctx context.Context) (*domain.Ticket, error) {
	return r.first(ctx, func(t domain.Ticket) bool { return t.Status == domain.TicketStatusPending })
}

func (r Tickets) first(ctx context.Context, keep func(domain.Ticket) bool) (*domain.Ticket, error) {
	var out *domain.Ticket
	r.s.guard(ctx, func() {
		if matches := r.s.sorted(keep); len(matches) > 0 {
			out = &matches[0]
		}
	})
	return out, nil
}

// Users implements repository.UserRepository.
type Users struct{ s *Store }

func (r Users) Upsert(ctx context.Context, user *domain.User) error {
	r.s.guard(ctx, func() {
		now := r.s.now().UTC()
		for id, existing := range r.s.users {
			if existing.Email == user.Email {
				existing.Name = user.Name
				existing.IsStaff = user.IsStaff
				existing.UpdatedAt = now
				r.s.users[id] = existing
				*user = existing
				return
			}
		}
		r.s.nextUser++
		user.ID = r.s.nextUser
		user.CreatedAt = now
		user.UpdatedAt = now
		r.s.users[user.ID] = *user
	})
	return nil
}

func (r Users) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var (
		out *domain.User
		err error
	)
	r.s.guard(ctx, func() {
		u, ok := r.s.users[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		out = &u
	})
	return out, err
}

func (r Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var out *domain.User
	r.s.guard(ctx, func() {
		for _, u := range r.s.users {
			if u.Email == email {
				u := u
				out = &u
				return
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

// LockByID is GetByID; the transaction already holds the store lock.
func (r Users) LockByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r Users) AdjustCreditBalance(ctx context.Context, id int64, delta int) (int, error) {
	var (
		balance int
		err     error
	)
	r.s.guard(ctx, func() {
		u, ok := r.s.users[id]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		if u.CreditBalance+delta < 0 {
			err = repository.ErrInsufficientCredit
			return
		}
		u.CreditBalance += delta
		u.UpdatedAt = r.s.now().UTC()
		r.s.users[id] = u
		balance = u.CreditBalance
	})
	return balance, err
}

// Events implements repository.TicketEventRepository.
type Events struct{ s *Store }

func (r Events) Append(ctx context.Context, event *domain.TicketEvent) error {
	r.s.guard(ctx, func() {
		event.ID = int64(len(r.s.events) + 1)
		event.Time = r.s.now().UTC()
		r.s.events = append(r.s.events, *event)
	})
	return nil
}

func (r Events) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketEvent, error) {
	var out []domain.TicketEvent
	r.s.guard(ctx, func() {
		for _, e := range r.s.events {
			if e.TicketID == ticketID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
