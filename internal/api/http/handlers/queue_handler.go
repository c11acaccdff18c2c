package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/oh-queue/internal/api/dto"
	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/service"
)

// QueueHandler exposes ticket intents.
type QueueHandler struct {
	queue    *service.QueueService
	sessions *service.SessionService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queue *service.QueueService, sessions *service.SessionService) *QueueHandler {
	return &QueueHandler{queue: queue, sessions: sessions}
}

// Create handles POST /api/tickets.
func (h *QueueHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	res, err := h.queue.Create(c.UserContext(), actor, service.CreateInput{
		Assignment: req.Assignment,
		Question:   req.Question,
		Location:   req.Location,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewResultResponse(res, actor))
}

type batchIntent func(ctx context.Context, actor *domain.User, ids []int64) (*service.Result, error)

func (h *QueueHandler) batch(intent batchIntent) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.TicketIDsRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		actor := auth.ActorFromContext(c)
		res, err := intent(c.UserContext(), actor, req.TicketIDs)
		if err != nil {
			return err
		}
		return c.JSON(dto.NewResultResponse(res, actor))
	}
}

// Assign handles POST /api/tickets/assign.
func (h *QueueHandler) Assign(c *fiber.Ctx) error { return h.batch(h.queue.Assign)(c) }

// Unassign handles POST /api/tickets/unassign.
func (h *QueueHandler) Unassign(c *fiber.Ctx) error { return h.batch(h.queue.Unassign)(c) }

// Resolve handles POST /api/tickets/resolve.
func (h *QueueHandler) Resolve(c *fiber.Ctx) error { return h.batch(h.queue.Resolve)(c) }

// Delete handles POST /api/tickets/delete.
func (h *QueueHandler) Delete(c *fiber.Ctx) error { return h.batch(h.queue.Delete)(c) }

// Refresh handles POST /api/tickets/refresh.
func (h *QueueHandler) Refresh(c *fiber.Ctx) error {
	var req dto.TicketIDsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	state, err := h.sessions.Refresh(c.UserContext(), actor, req.TicketIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStateResponse(state, actor)})
}

// Describe handles PUT /api/tickets/:id/description.
func (h *QueueHandler) Describe(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.DescribeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	res, err := h.queue.Describe(c.UserContext(), actor, id, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewResultResponse(res, actor))
}

// Get handles GET /api/tickets/:id.
func (h *QueueHandler) Get(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	ticket, err := h.queue.LoadTicket(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket, actor)})
}

// History handles GET /api/tickets/:id/history.
func (h *QueueHandler) History(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	entries, err := h.queue.History(c.UserContext(), auth.ActorFromContext(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketEventResponses(entries)})
}

// Next handles GET /api/next.
func (h *QueueHandler) Next(c *fiber.Ctx) error {
	redirect, err := h.queue.NextRedirect(c.UserContext(), auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"redirect": redirect})
}
