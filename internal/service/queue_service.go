package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/repository"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

// SlotReopener makes a booked slot claimable again, and claims it back for
// its owner when the ticket change that released it is rolled back.
type SlotReopener interface {
	Reopen(ctx context.Context, slotID string) error
	Restore(ctx context.Context, slotID string, owner domain.User)
}

// QueueService is the dispatcher for ticket intents. Every mutation runs in
// one store transaction, appends one event per ticket and is broadcast only
// after commit.
type QueueService struct {
	tx          repository.Transactor
	tickets     repository.TicketRepository
	users       repository.UserRepository
	log         repository.TicketEventRepository
	broadcaster events.Broadcaster
	slots       SlotReopener
	logger      *zap.Logger
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	Transactor  repository.Transactor
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	EventRepo   repository.TicketEventRepository
	Broadcaster events.Broadcaster
	Slots       SlotReopener
	Logger      *zap.Logger
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	return &QueueService{
		tx:          deps.Transactor,
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		log:         deps.EventRepo,
		broadcaster: deps.Broadcaster,
		slots:       deps.Slots,
		logger:      deps.Logger,
	}
}

// CreateInput is the student's help request.
type CreateInput struct {
	Assignment string
	Question   string
	Location   string
}

// Result is what a mutating intent hands back to the caller: the affected
// tickets and where the client should go next.
type Result struct {
	Tickets  []domain.Ticket
	Redirect string
}

// Create puts the actor on the queue.
func (s *QueueService) Create(ctx context.Context, actor *domain.User, input CreateInput) (*Result, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	ticket := &domain.Ticket{
		Status:     domain.TicketStatusPending,
		Assignment: strings.TrimSpace(input.Assignment),
		Question:   strings.TrimSpace(input.Question),
		Location:   strings.TrimSpace(input.Location),
	}
	if missing := blankFields(ticket); len(missing) > 0 {
		return nil, apperrors.NewInvalidInput("Please fill out all fields", map[string]any{"missing": missing})
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		owner, err := s.users.LockByID(ctx, actor.ID)
		if err != nil {
			return err
		}
		active, err := s.tickets.FindActiveByUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperrors.NewAlreadyQueued(TicketPath(active.ID))
		}
		ticket.User = *owner
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.TicketEventCreate, ticket.ID, actor)
	})
	if err != nil {
		return nil, s.translate(ctx, actor, err)
	}

	s.broadcast(ctx, domain.TicketEventCreate, *ticket)
	return &Result{Tickets: []domain.Ticket{*ticket}, Redirect: TicketPath(ticket.ID)}, nil
}

// Assign hands the tickets to the staff actor. Reassigning an assigned
// ticket just replaces the helper.
func (s *QueueService) Assign(ctx context.Context, actor *domain.User, ids []int64) (*Result, error) {
	if err := auth.RequireStaff(actor); err != nil {
		return nil, err
	}
	helper := *actor
	return s.apply(ctx, actor, ids, transition{
		event: domain.TicketEventAssign,
		next:  domain.TicketStatusAssigned,
		mutate: func(t *domain.Ticket) {
			t.Helper = &helper
		},
	})
}

// Unassign puts assigned tickets back on the queue.
func (s *QueueService) Unassign(ctx context.Context, actor *domain.User, ids []int64) (*Result, error) {
	if err := auth.RequireStaff(actor); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ids, transition{
		event: domain.TicketEventUnassign,
		next:  domain.TicketStatusPending,
		mutate: func(t *domain.Ticket) {
			t.Helper = nil
		},
	})
}

// Resolve closes the tickets. Appointment credit is not refunded. Staff are
// redirected to their next ticket.
func (s *QueueService) Resolve(ctx context.Context, actor *domain.User, ids []int64) (*Result, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	res, err := s.apply(ctx, actor, ids, transition{
		event:     domain.TicketEventResolve,
		next:      domain.TicketStatusResolved,
		authorize: auth.RequireOwnerOrStaff,
	})
	if err != nil {
		return nil, err
	}
	if actor.IsStaff {
		redirect, err := s.NextRedirect(ctx, actor)
		if err != nil {
			s.logger.Warn("next ticket lookup failed after resolve", zap.Error(err))
		} else {
			res.Redirect = redirect
		}
	}
	return res, nil
}

// Delete withdraws the tickets. Appointment tickets give their slot back to
// the calendar before they are marked deleted.
func (s *QueueService) Delete(ctx context.Context, actor *domain.User, ids []int64) (*Result, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	var reopened []domain.Ticket
	res, err := s.apply(ctx, actor, ids, transition{
		event:     domain.TicketEventDelete,
		next:      domain.TicketStatusDeleted,
		authorize: auth.RequireOwnerOrStaff,
		prepare: func(ctx context.Context, t *domain.Ticket) error {
			if t.Status != domain.TicketStatusAppointment || !t.Appointment() {
				return nil
			}
			if err := s.slots.Reopen(ctx, *t.CalendarEvent); err != nil {
				return err
			}
			reopened = append(reopened, *t)
			return nil
		},
	})
	if err != nil {
		// The tickets still hold their slots.
		for _, t := range reopened {
			s.slots.Restore(ctx, *t.CalendarEvent, t.User)
		}
		return nil, err
	}
	return res, nil
}

// Describe replaces the ticket's free-text description. Any caller may
// describe any ticket; anonymous edits are logged without an actor.
func (s *QueueService) Describe(ctx context.Context, actor *domain.User, id int64, description string) (*Result, error) {
	var ticket domain.Ticket
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.lock(ctx, []int64{id})
		if err != nil {
			return err
		}
		ticket = locked[0]
		ticket.Description = description
		if err := s.tickets.Update(ctx, &ticket); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.TicketEventDescribe, ticket.ID, actor)
	})
	if err != nil {
		return nil, s.translate(ctx, actor, err)
	}

	s.broadcast(ctx, domain.TicketEventDescribe, ticket)
	return &Result{Tickets: []domain.Ticket{ticket}, Redirect: TicketPath(ticket.ID)}, nil
}

// NextFor returns the staff member's own assigned ticket, else the oldest
// pending one, else nil.
func (s *QueueService) NextFor(ctx context.Context, actor *domain.User) (*domain.Ticket, error) {
	if err := auth.RequireStaff(actor); err != nil {
		return nil, err
	}
	mine, err := s.tickets.FirstAssignedTo(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if mine != nil {
		return mine, nil
	}
	pending, err := s.tickets.FirstPending(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return pending, nil
}

// NextRedirect is NextFor expressed as a client route.
func (s *QueueService) NextRedirect(ctx context.Context, actor *domain.User) (string, error) {
	next, err := s.NextFor(ctx, actor)
	if err != nil {
		return "", err
	}
	if next == nil {
		return IndexPath, nil
	}
	return TicketPath(next.ID), nil
}

// Snapshot returns every non-terminal ticket in creation order.
func (s *QueueService) Snapshot(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListActive(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Refresh returns the current state of the requested tickets. Unknown ids
// are skipped.
func (s *QueueService) Refresh(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	if len(ids) == 0 {
		return []domain.Ticket{}, nil
	}
	tickets, err := s.tickets.ListByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// LoadTicket is a staff read of one ticket.
func (s *QueueService) LoadTicket(ctx context.Context, actor *domain.User, id int64) (*domain.Ticket, error) {
	if err := auth.RequireStaff(actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, actor, err)
	}
	return ticket, nil
}

// History is a staff read of a ticket's audit trail, oldest first.
func (s *QueueService) History(ctx context.Context, actor *domain.User, id int64) ([]domain.TicketEvent, error) {
	if _, err := s.LoadTicket(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.log.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

type transition struct {
	event domain.TicketEventType
	next  domain.TicketStatus
	// authorize runs per ticket; nil means the role check already done is
	// enough.
	authorize func(actor *domain.User, t *domain.Ticket) error
	// prepare runs per ticket after every ticket has been validated and
	// before any is written.
	prepare func(ctx context.Context, t *domain.Ticket) error
	mutate  func(t *domain.Ticket)
}

// apply runs one transition over a batch of tickets. The batch is all or
// nothing.
func (s *QueueService) apply(ctx context.Context, actor *domain.User, ids []int64, tr transition) (*Result, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewInvalidInput("No tickets selected", nil)
	}

	var changed []domain.Ticket
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		changed = nil
		locked, err := s.lock(ctx, ids)
		if err != nil {
			return err
		}
		for i := range locked {
			t := &locked[i]
			if tr.authorize != nil {
				if err := tr.authorize(actor, t); err != nil {
					return err
				}
			}
			if !domain.CanTransition(t.Status, tr.next) {
				return apperrors.NewInvalidInput("Ticket cannot be "+string(tr.next)+" from "+string(t.Status),
					map[string]any{"ticket_id": t.ID, "status": t.Status})
			}
		}
		if tr.prepare != nil {
			for i := range locked {
				if err := tr.prepare(ctx, &locked[i]); err != nil {
					return err
				}
			}
		}
		for i := range locked {
			t := &locked[i]
			t.Status = tr.next
			if tr.mutate != nil {
				tr.mutate(t)
			}
			if err := s.tickets.Update(ctx, t); err != nil {
				return err
			}
			if err := s.appendEvent(ctx, tr.event, t.ID, actor); err != nil {
				return err
			}
		}
		changed = locked
		return nil
	})
	if err != nil {
		return nil, s.translate(ctx, actor, err)
	}

	for _, t := range changed {
		s.broadcast(ctx, tr.event, t)
	}
	res := &Result{Tickets: changed, Redirect: IndexPath}
	if len(changed) == 1 {
		res.Redirect = TicketPath(changed[0].ID)
	}
	return res, nil
}

// lock loads and row-locks the tickets, failing with NotFound if any id is
// unknown.
func (s *QueueService) lock(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	ids = uniqueIDs(ids)
	locked, err := s.tickets.LockByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(locked) == len(ids) {
		return locked, nil
	}
	found := make(map[int64]struct{}, len(locked))
	for _, t := range locked {
		found[t.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_ids": missing})
}

func (s *QueueService) appendEvent(ctx context.Context, eventType domain.TicketEventType, ticketID int64, actor *domain.User) error {
	event := &domain.TicketEvent{EventType: eventType, TicketID: ticketID}
	if actor != nil {
		id := actor.ID
		event.UserID = &id
	}
	return s.log.Append(ctx, event)
}

func (s *QueueService) broadcast(ctx context.Context, eventType domain.TicketEventType, ticket domain.Ticket) {
	publishChange(ctx, s.broadcaster, s.logger, eventType, ticket)
}

// translate maps store sentinels onto client-facing rejections.
func (s *QueueService) translate(ctx context.Context, actor *domain.User, err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrActiveTicketExists):
		redirect := IndexPath
		if actor != nil {
			if active, lookupErr := s.tickets.FindActiveByUser(ctx, actor.ID); lookupErr == nil && active != nil {
				redirect = TicketPath(active.ID)
			}
		}
		return apperrors.NewAlreadyQueued(redirect)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func publishChange(ctx context.Context, b events.Broadcaster, logger *zap.Logger, eventType domain.TicketEventType, ticket domain.Ticket) {
	msg := events.Message{
		Channel: events.ChannelEvent,
		Change:  &events.TicketChange{Type: eventType, Ticket: ticket},
	}
	if err := b.Publish(ctx, msg); err != nil {
		logger.Warn("broadcast failed",
			zap.String("event", string(eventType)),
			zap.Int64("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func blankFields(t *domain.Ticket) []string {
	var missing []string
	if t.Assignment == "" {
		missing = append(missing, "assignment")
	}
	if t.Question == "" {
		missing = append(missing, "question")
	}
	if t.Location == "" {
		missing = append(missing, "location")
	}
	return missing
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
