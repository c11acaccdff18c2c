package dto

import (
	"time"

	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Assignment string `json:"assignment"`
	Question   string `json:"question"`
	Location   string `json:"location"`
}

// TicketIDsRequest names the tickets a batch intent applies to.
type TicketIDsRequest struct {
	TicketIDs []int64 `json:"ticketIds"`
}

// DescribeRequest payload.
type DescribeRequest struct {
	Description string `json:"description"`
}

// TicketResponse is the wire form of a ticket. User is an empty object for
// viewers who may not see it.
type TicketResponse struct {
	ID                   int64               `json:"id"`
	Status               domain.TicketStatus `json:"status"`
	User                 any                 `json:"user"`
	Created              string              `json:"created"`
	Location             string              `json:"location"`
	Assignment           string              `json:"assignment"`
	Description          string              `json:"description"`
	Question             string              `json:"question"`
	Helper               *UserResponse       `json:"helper"`
	CalendarEvent        *string             `json:"calendarEvent"`
	AppointmentStartTime *string             `json:"appointmentStartTime"`
}

// NewTicketResponse renders t for viewer.
func NewTicketResponse(t domain.Ticket, viewer *domain.User) TicketResponse {
	resp := TicketResponse{
		ID:            t.ID,
		Status:        t.Status,
		User:          struct{}{},
		Created:       isoTime(t.Created),
		Location:      t.Location,
		Assignment:    t.Assignment,
		Description:   t.Description,
		Question:      t.Question,
		Helper:        NewUserResponse(t.Helper),
		CalendarEvent: t.CalendarEvent,
	}
	if auth.CanSeeDetails(viewer, &t) {
		resp.User = NewUserResponse(&t.User)
	}
	if t.AppointmentStartTime != nil {
		start := isoTime(*t.AppointmentStartTime)
		resp.AppointmentStartTime = &start
	}
	return resp
}

// NewTicketResponses renders a list; never nil.
func NewTicketResponses(tickets []domain.Ticket, viewer *domain.User) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, NewTicketResponse(t, viewer))
	}
	return out
}

// TicketEventResponse is one audit entry.
type TicketEventResponse struct {
	ID       int64                  `json:"id"`
	Type     domain.TicketEventType `json:"type"`
	TicketID int64                  `json:"ticketId"`
	UserID   *int64                 `json:"userId"`
	Time     string                 `json:"time"`
}

func NewTicketEventResponses(entries []domain.TicketEvent) []TicketEventResponse {
	out := make([]TicketEventResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TicketEventResponse{
			ID:       e.ID,
			Type:     e.EventType,
			TicketID: e.TicketID,
			UserID:   e.UserID,
			Time:     isoTime(e.Time),
		})
	}
	return out
}

// TicketChangeResponse is the payload of an event-channel message.
type TicketChangeResponse struct {
	Type   domain.TicketEventType `json:"type"`
	Ticket TicketResponse         `json:"ticket"`
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
