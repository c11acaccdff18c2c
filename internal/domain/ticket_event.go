package domain

import "time"

// TicketEventType mirrors the cause of an accepted ticket mutation.
type TicketEventType string

const (
	TicketEventCreate   TicketEventType = "create"
	TicketEventAssign   TicketEventType = "assign"
	TicketEventUnassign TicketEventType = "unassign"
	TicketEventResolve  TicketEventType = "resolve"
	TicketEventDelete   TicketEventType = "delete"
	TicketEventDescribe TicketEventType = "describe"
)

// TicketEvent is an immutable audit entry. UserID is nil when the actor was
// not authenticated.
type TicketEvent struct {
	ID        int64
	EventType TicketEventType
	TicketID  int64
	UserID    *int64
	Time      time.Time
}
