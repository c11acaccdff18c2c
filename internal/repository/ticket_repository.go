package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/oh-queue/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error)
	// LockByIDs loads the tickets and holds row locks until the enclosing
	// transaction ends.
	LockByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error)
	FindActiveByUser(ctx context.Context, userID int64) (*domain.Ticket, error)
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	FirstAssignedTo(ctx context.Context, helperID int64) (*domain.Ticket, error)
	FirstPending(ctx context.Context) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        SELECT t.id, t.status, t.assignment, t.question, t.location, t.description, t.created,
               t.calendar_event, t.appointment_start_time,
               u.id, u.email, u.name, u.is_staff, u.credit_balance, u.created_at, u.updated_at,
               h.id, h.email, h.name, h.is_staff, h.credit_balance
        FROM tickets t
        JOIN users u ON u.id = t.user_id
        LEFT JOIN users h ON h.id = t.helper_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (status, user_id, helper_id, assignment, question, location, description,
                             calendar_event, appointment_start_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Status,
		ticket.User.ID,
		helperID(ticket),
		ticket.Assignment,
		ticket.Question,
		ticket.Location,
		ticket.Description,
		ticket.CalendarEvent,
		ticket.AppointmentStartTime,
	).Scan(&ticket.ID, &ticket.Created)
	if err != nil {
		if mapped := mapConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, helper_id=$2, description=$3
        WHERE id=$4`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.Status,
		helperID(ticket),
		ticket.Description,
		ticket.ID,
	)
	if err != nil {
		if mapped := mapConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update ticket %d: %w", ticket.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, ticketColumns+` WHERE t.id=$1`, id)
}

func (r *ticketRepository) ListByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	return r.fetchMany(ctx, ticketColumns+` WHERE t.id = ANY($1) ORDER BY t.id`, ids)
}

func (r *ticketRepository) LockByIDs(ctx context.Context, ids []int64) ([]domain.Ticket, error) {
	// Locking in id order keeps concurrent multi-ticket intents deadlock free.
	return r.fetchMany(ctx, ticketColumns+` WHERE t.id = ANY($1) ORDER BY t.id FOR UPDATE OF t`, ids)
}

func (r *ticketRepository) FindActiveByUser(ctx context.Context, userID int64) (*domain.Ticket, error) {
	ticket, err := r.fetchSingle(ctx,
		ticketColumns+` WHERE t.user_id=$1 AND t.status IN ('pending','assigned','appointment') ORDER BY t.id LIMIT 1`,
		userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	return r.fetchMany(ctx,
		ticketColumns+` WHERE t.status IN ('pending','assigned','appointment') ORDER BY t.id`)
}

func (r *ticketRepository) FirstAssignedTo(ctx context.Context, helperID int64) (*domain.Ticket, error) {
	ticket, err := r.fetchSingle(ctx,
		ticketColumns+` WHERE t.helper_id=$1 AND t.status='assigned' ORDER BY t.id LIMIT 1`, helperID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) FirstPending(ctx context.Context) (*domain.Ticket, error) {
	ticket, err := r.fetchSingle(ctx, ticketColumns+` WHERE t.status='pending' ORDER BY t.id LIMIT 1`)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch ticket: %w", err)
	}
	return ticket, nil
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket       domain.Ticket
		helperID     *int64
		helperEmail  *string
		helperName   *string
		helperStaff  *bool
		helperCredit *int
		startTime    *time.Time
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Status,
		&ticket.Assignment,
		&ticket.Question,
		&ticket.Location,
		&ticket.Description,
		&ticket.Created,
		&ticket.CalendarEvent,
		&startTime,
		&ticket.User.ID,
		&ticket.User.Email,
		&ticket.User.Name,
		&ticket.User.IsStaff,
		&ticket.User.CreditBalance,
		&ticket.User.CreatedAt,
		&ticket.User.UpdatedAt,
		&helperID,
		&helperEmail,
		&helperName,
		&helperStaff,
		&helperCredit,
	); err != nil {
		return nil, err
	}
	if startTime != nil {
		utc := startTime.UTC()
		ticket.AppointmentStartTime = &utc
	}
	if helperID != nil {
		ticket.Helper = &domain.User{
			ID:            *helperID,
			Email:         deref(helperEmail),
			Name:          deref(helperName),
			IsStaff:       helperStaff != nil && *helperStaff,
			CreditBalance: derefInt(helperCredit),
		}
	}
	return &ticket, nil
}

func helperID(ticket *domain.Ticket) *int64 {
	if ticket.Helper == nil {
		return nil
	}
	return &ticket.Helper.ID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
