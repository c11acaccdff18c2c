package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/api/dto"
	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/service"
)

// DefaultHeartbeat is how often an idle stream is pinged.
const DefaultHeartbeat = 30 * time.Second

// Server-sent event names.
const (
	sseState    = "state"
	sseEvent    = string(events.ChannelEvent)
	ssePresence = string(events.ChannelPresence)
)

// StreamHandler serves the broadcast stream over server-sent events. Each
// connection gets the full state first, then every broadcast rendered for
// its own viewer.
type StreamHandler struct {
	hub       *events.Hub
	sessions  *service.SessionService
	logger    *zap.Logger
	heartbeat time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewStreamHandler constructs handler. heartbeat <= 0 selects
// DefaultHeartbeat.
func NewStreamHandler(hub *events.Hub, sessions *service.SessionService, logger *zap.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		hub:       hub,
		sessions:  sessions,
		logger:    logger,
		heartbeat: heartbeat,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream so the server can shut down.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Stream handles GET /api/stream.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	actor := auth.ActorFromContext(c)
	connID := uuid.NewString()
	sub := h.hub.Subscribe(connID)

	state, err := h.sessions.Connect(c.UserContext(), connID, actor)
	if err != nil {
		h.release(connID)
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.release(connID)
		h.pump(w, sub, actor, state)
	})
	return nil
}

func (h *StreamHandler) release(connID string) {
	h.hub.Unsubscribe(connID)
	h.sessions.Disconnect(context.Background(), connID)
}

// pump writes until the subscription closes, the client goes away or the
// handler is closed.
func (h *StreamHandler) pump(w *bufio.Writer, sub *events.Subscription, actor *domain.User, state *service.State) {
	if err := h.send(w, sseState, dto.NewStateResponse(state, actor)); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-h.done:
			return
		case <-ticker.C:
			_, err = w.WriteString(": heartbeat\n\n")
			if err == nil {
				err = w.Flush()
			}
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if sub.NeedsResync() {
				err = h.resync(w, actor)
			}
			if err == nil {
				err = h.deliver(w, msg, actor)
			}
		}
		if err != nil {
			h.logger.Debug("stream closed", zap.String("conn_id", sub.ID), zap.Error(err))
			return
		}
	}
}

func (h *StreamHandler) resync(w *bufio.Writer, actor *domain.User) error {
	state, err := h.sessions.State(context.Background(), actor)
	if err != nil {
		h.logger.Warn("resync snapshot failed", zap.Error(err))
		return nil
	}
	return h.send(w, sseState, dto.NewStateResponse(state, actor))
}

func (h *StreamHandler) deliver(w *bufio.Writer, msg events.Message, actor *domain.User) error {
	switch msg.Channel {
	case events.ChannelEvent:
		if msg.Change == nil {
			return nil
		}
		return h.send(w, sseEvent, dto.TicketChangeResponse{
			Type:   msg.Change.Type,
			Ticket: dto.NewTicketResponse(msg.Change.Ticket, actor),
		})
	case events.ChannelPresence:
		return h.send(w, ssePresence, msg.Presence)
	default:
		return nil
	}
}

func (h *StreamHandler) send(w *bufio.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
