package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/oh-queue/internal/api/dto"
	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/service"
)

// AppointmentsHandler exposes slot listing and booking.
type AppointmentsHandler struct {
	appointments *service.AppointmentService
}

// NewAppointmentsHandler constructs handler.
func NewAppointmentsHandler(appointments *service.AppointmentService) *AppointmentsHandler {
	return &AppointmentsHandler{appointments: appointments}
}

// List handles GET /api/appointments.
func (h *AppointmentsHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.NewAppointmentResponses(h.appointments.Available(c.UserContext()))})
}

// Claim handles POST /api/appointments/claim.
func (h *AppointmentsHandler) Claim(c *fiber.Ctx) error {
	var req dto.ClaimRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	res, err := h.appointments.Claim(c.UserContext(), actor, req.EventID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewResultResponse(res, actor))
}
