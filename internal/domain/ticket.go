package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending     TicketStatus = "pending"
	TicketStatusAssigned    TicketStatus = "assigned"
	TicketStatusResolved    TicketStatus = "resolved"
	TicketStatusDeleted     TicketStatus = "deleted"
	TicketStatusAppointment TicketStatus = "appointment"
)

// ActiveStatuses are the non-terminal statuses. A student owns at most one
// ticket in any of them.
var ActiveStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusAssigned,
	TicketStatusAppointment,
}

// Active reports whether s is non-terminal.
func (s TicketStatus) Active() bool {
	for _, candidate := range ActiveStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Ticket is a single help request.
type Ticket struct {
	ID                   int64
	Status               TicketStatus
	User                 User
	Helper               *User
	Assignment           string
	Question             string
	Location             string
	Description          string
	Created              time.Time
	CalendarEvent        *string
	AppointmentStartTime *time.Time
}

// OwnedBy reports whether u is the ticket's student.
func (t *Ticket) OwnedBy(u *User) bool {
	return u != nil && t.User.ID == u.ID
}

// Appointment reports whether the ticket originated from a slot claim.
func (t *Ticket) Appointment() bool {
	return t.CalendarEvent != nil && *t.CalendarEvent != ""
}

// assigned -> assigned is the idempotent re-assign.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:     {TicketStatusAssigned, TicketStatusDeleted},
	TicketStatusAssigned:    {TicketStatusAssigned, TicketStatusPending, TicketStatusResolved, TicketStatusDeleted},
	TicketStatusAppointment: {TicketStatusResolved, TicketStatusDeleted},
	TicketStatusResolved:    {},
	TicketStatusDeleted:     {},
}

// CanTransition reports whether current -> next is a legal status change.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
