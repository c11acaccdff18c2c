package dto

import (
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/service"
)

// ClaimRequest payload.
type ClaimRequest struct {
	EventID string `json:"eventId"`
}

// AppointmentResponse is an open slot.
type AppointmentResponse struct {
	EventID   string `json:"eventId"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Location  string `json:"location"`
	Cost      int    `json:"cost"`
}

func NewAppointmentResponses(appointments []service.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, AppointmentResponse{
			EventID:   a.EventID,
			StartTime: isoTime(a.StartTime),
			EndTime:   isoTime(a.EndTime),
			Location:  a.Location,
			Cost:      a.Cost,
		})
	}
	return out
}

// StateResponse is the full snapshot sent on connect.
type StateResponse struct {
	Tickets      []TicketResponse      `json:"tickets"`
	Appointments []AppointmentResponse `json:"appointments"`
	CurrentUser  *UserResponse         `json:"currentUser"`
}

func NewStateResponse(state *service.State, viewer *domain.User) StateResponse {
	return StateResponse{
		Tickets:      NewTicketResponses(state.Tickets, viewer),
		Appointments: NewAppointmentResponses(state.Appointments),
		CurrentUser:  NewUserResponse(state.CurrentUser),
	}
}

// ResultResponse wraps the outcome of a mutating intent.
type ResultResponse struct {
	Data     ResultData `json:"data"`
	Redirect string     `json:"redirect"`
}

// ResultData lists the affected tickets.
type ResultData struct {
	Tickets []TicketResponse `json:"tickets"`
}

func NewResultResponse(res *service.Result, viewer *domain.User) ResultResponse {
	return ResultResponse{
		Data:     ResultData{Tickets: NewTicketResponses(res.Tickets, viewer)},
		Redirect: res.Redirect,
	}
}
