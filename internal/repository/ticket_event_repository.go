package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/oh-queue/internal/domain"
)

// TicketEventRepository is the append-only audit log. Entries are never
// updated or deleted.
type TicketEventRepository interface {
	Append(ctx context.Context, event *domain.TicketEvent) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketEvent, error)
}

type ticketEventRepository struct {
	pool *pgxpool.Pool
}

// NewTicketEventRepository builds repository.
func NewTicketEventRepository(pool *pgxpool.Pool) TicketEventRepository {
	return &ticketEventRepository{pool: pool}
}

func (r *ticketEventRepository) Append(ctx context.Context, event *domain.TicketEvent) error {
	const query = `
        INSERT INTO ticket_events (event_type, ticket_id, user_id)
        VALUES ($1,$2,$3)
        RETURNING id, time`
	if err := conn(ctx, r.pool).QueryRow(ctx, query,
		event.EventType,
		event.TicketID,
		event.UserID,
	).Scan(&event.ID, &event.Time); err != nil {
		return fmt.Errorf("append %s event for ticket %d: %w", event.EventType, event.TicketID, err)
	}
	return nil
}

func (r *ticketEventRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketEvent, error) {
	const query = `
        SELECT id, event_type, ticket_id, user_id, time
        FROM ticket_events WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list events for ticket %d: %w", ticketID, err)
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var event domain.TicketEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.TicketID,
			&event.UserID,
			&event.Time,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
