package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/calendar"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/repository"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

// appointmentLabel fills the free-text fields of appointment tickets.
const appointmentLabel = "Appointment"

// Appointment is an open slot as offered to students.
type Appointment struct {
	EventID   string
	StartTime time.Time
	EndTime   time.Time
	Location  string
	Cost      int
}

// AppointmentService books calendar slots against credit and gives them back
// on cancellation.
//
// A claim validates and writes the ticket, the debit and the audit event in
// one transaction, then patches the slot before committing. A failed patch
// rolls everything back. A failed commit after a successful patch is
// compensated by reopening the slot with retries.
type AppointmentService struct {
	tx          repository.Transactor
	tickets     repository.TicketRepository
	users       repository.UserRepository
	log         repository.TicketEventRepository
	calendar    calendar.Client
	conventions calendar.Conventions
	broadcaster events.Broadcaster
	logger      *zap.Logger
	backOff     func() backoff.BackOff
	now         func() time.Time
}

// AppointmentDependencies bundles collaborators for the appointment service.
type AppointmentDependencies struct {
	Transactor  repository.Transactor
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	EventRepo   repository.TicketEventRepository
	Calendar    calendar.Client
	Conventions calendar.Conventions
	Broadcaster events.Broadcaster
	Logger      *zap.Logger
	// CompensationBackOff paces slot-reopen retries. Defaults to an
	// exponential policy capped at one minute.
	CompensationBackOff func() backoff.BackOff
	Now                 func() time.Time
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentDependencies) *AppointmentService {
	s := &AppointmentService{
		tx:          deps.Transactor,
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		log:         deps.EventRepo,
		calendar:    deps.Calendar,
		conventions: deps.Conventions,
		broadcaster: deps.Broadcaster,
		logger:      deps.Logger,
		backOff:     deps.CompensationBackOff,
		now:         deps.Now,
	}
	if s.backOff == nil {
		s.backOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = time.Minute
			return b
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Claim books slotID for the actor.
func (s *AppointmentService) Claim(ctx context.Context, actor *domain.User, slotID string) (*Result, error) {
	if err := auth.RequireUser(actor); err != nil {
		return nil, err
	}
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return nil, apperrors.NewInvalidInput("No appointment selected", nil)
	}

	slot, err := s.calendar.Get(ctx, slotID)
	if err != nil {
		return nil, slotError(slotID, err)
	}
	if !s.conventions.Unclaimed(slot) {
		return nil, apperrors.NewAlreadyClaimed(slotID)
	}
	cost := s.conventions.Cost(slot)

	var (
		ticket   domain.Ticket
		attendee calendar.Attendee
		// written is set once the claim patch may have reached the
		// calendar, including when its outcome is unknown.
		written bool
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
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
		if owner.CreditBalance < cost {
			return apperrors.NewInsufficientBalance(owner.CreditBalance, cost)
		}

		start := slot.Start.UTC()
		event := slot.ID
		ticket = domain.Ticket{
			Status:               domain.TicketStatusAppointment,
			User:                 *owner,
			Assignment:           appointmentLabel,
			Question:             appointmentLabel,
			Location:             slot.Location,
			CalendarEvent:        &event,
			AppointmentStartTime: &start,
		}
		if err := s.tickets.Create(ctx, &ticket); err != nil {
			return err
		}
		balance, err := s.users.AdjustCreditBalance(ctx, owner.ID, -cost)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientCredit) {
				return apperrors.NewInsufficientBalance(owner.CreditBalance, cost)
			}
			return err
		}
		ticket.User.CreditBalance = balance
		if err := s.log.Append(ctx, &domain.TicketEvent{
			EventType: domain.TicketEventCreate,
			TicketID:  ticket.ID,
			UserID:    &owner.ID,
		}); err != nil {
			return err
		}

		attendee = calendar.Attendee{Name: owner.Name, Email: owner.Email}
		if _, err := s.calendar.Patch(ctx, slotID, s.conventions.ClaimPatch(slot, attendee), true); err != nil {
			written = !errors.Is(err, calendar.ErrSlotNotFound)
			return slotError(slotID, err)
		}
		written = true
		return nil
	})
	if err != nil {
		if written {
			s.compensate(ctx, slotID, attendee, err)
		}
		return nil, s.translate(slotID, err)
	}

	s.logger.Info("appointment claimed",
		zap.String("slot_id", slotID),
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("cost", cost))
	publishChange(ctx, s.broadcaster, s.logger, domain.TicketEventCreate, ticket)
	return &Result{Tickets: []domain.Ticket{ticket}, Redirect: TicketPath(ticket.ID)}, nil
}

// Reopen makes slotID claimable again: attendees are removed with
// notification, then the marker and public visibility are restored. A slot
// that no longer exists is a no-op. Credit is not refunded.
func (s *AppointmentService) Reopen(ctx context.Context, slotID string) error {
	err := s.reopen(ctx, slotID)
	if err == nil || errors.Is(err, calendar.ErrSlotNotFound) {
		return nil
	}
	return apperrors.NewCalendarUnavailable(err)
}

func (s *AppointmentService) reopen(ctx context.Context, slotID string) error {
	if _, err := s.calendar.Get(ctx, slotID); err != nil {
		return err
	}
	return s.reset(ctx, slotID)
}

// reset clears the guest list with notification, then restores the marker
// and public visibility silently.
func (s *AppointmentService) reset(ctx context.Context, slotID string) error {
	if _, err := s.calendar.Patch(ctx, slotID, s.conventions.ClearAttendeesPatch(), true); err != nil {
		return err
	}
	_, err := s.calendar.Patch(ctx, slotID, s.conventions.ResetPatch(), false)
	return err
}

// compensate undoes a claim patch whose ticket was never committed. The
// slot is reopened only while it still carries the claimant, so a patch
// that never landed is left alone.
func (s *AppointmentService) compensate(ctx context.Context, slotID string, claimant calendar.Attendee, cause error) {
	s.logger.Warn("claim failed after slot patch; reopening slot",
		zap.String("slot_id", slotID), zap.Error(cause))

	s.retry(ctx, slotID, "slot left claimed without a ticket", func(ctx context.Context) error {
		slot, err := s.calendar.Get(ctx, slotID)
		if err != nil {
			return err
		}
		if s.conventions.Unclaimed(slot) || !hasAttendee(slot, claimant.Email) {
			return nil
		}
		return s.reset(ctx, slotID)
	})
}

// Restore claims slotID again for owner after a reopen whose ticket change
// was rolled back. A slot that is already claimed or gone is left alone.
func (s *AppointmentService) Restore(ctx context.Context, slotID string, owner domain.User) {
	s.logger.Warn("ticket change rolled back after slot reopen; claiming slot again",
		zap.String("slot_id", slotID), zap.Int64("user_id", owner.ID))

	attendee := calendar.Attendee{Name: owner.Name, Email: owner.Email}
	s.retry(ctx, slotID, "slot left open under a live ticket", func(ctx context.Context) error {
		slot, err := s.calendar.Get(ctx, slotID)
		if err != nil {
			return err
		}
		if !s.conventions.Unclaimed(slot) {
			return nil
		}
		_, err = s.calendar.Patch(ctx, slotID, s.conventions.ClaimPatch(slot, attendee), true)
		return err
	})
}

// retry runs a calendar repair with the compensation backoff on a context
// that outlives the request. A vanished slot ends the repair.
func (s *AppointmentService) retry(ctx context.Context, slotID, exhausted string, repair func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := repair(ctx)
		if errors.Is(err, calendar.ErrSlotNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warn("slot repair attempt failed",
				zap.String("slot_id", slotID), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(s.backOff(), ctx)); err != nil && !errors.Is(err, calendar.ErrSlotNotFound) {
		s.logger.Error(exhausted,
			zap.String("slot_id", slotID), zap.Int("attempts", attempt), zap.Error(err))
	}
}

func hasAttendee(slot *calendar.Slot, email string) bool {
	for _, a := range slot.Attendees {
		if strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

// Available lists upcoming unclaimed slots in start order. An unreachable
// calendar yields an empty list.
func (s *AppointmentService) Available(ctx context.Context) []Appointment {
	slots, err := s.calendar.List(ctx, s.now())
	if err != nil {
		s.logger.Warn("listing appointments failed", zap.Error(err))
		return []Appointment{}
	}
	out := make([]Appointment, 0, len(slots))
	for i := range slots {
		slot := &slots[i]
		if !s.conventions.Unclaimed(slot) {
			continue
		}
		out = append(out, Appointment{
			EventID:   slot.ID,
			StartTime: slot.Start.UTC(),
			EndTime:   slot.End.UTC(),
			Location:  slot.Location,
			Cost:      s.conventions.Cost(slot),
		})
	}
	return out
}

func (s *AppointmentService) translate(slotID string, err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrSlotAlreadyReserved):
		return apperrors.NewAlreadyClaimed(slotID)
	case errors.Is(err, repository.ErrActiveTicketExists):
		return apperrors.NewAlreadyQueued(IndexPath)
	default:
		return apperrors.NewInternalError(err)
	}
}

func slotError(slotID string, err error) error {
	if errors.Is(err, calendar.ErrSlotNotFound) {
		return apperrors.NewSlotNotFound(slotID)
	}
	return apperrors.NewCalendarUnavailable(err)
}
