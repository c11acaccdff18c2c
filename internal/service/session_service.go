package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
	"github.com/spec-kit/oh-queue/internal/presence"
)

// State is the full view pushed to a client when it connects or resyncs.
type State struct {
	Tickets      []domain.Ticket
	Appointments []Appointment
	CurrentUser  *domain.User
}

// SessionService tracks live connections. Presence bookkeeping never fails
// the caller.
type SessionService struct {
	presence     *presence.Tracker
	queue        *QueueService
	appointments *AppointmentService
	broadcaster  events.Broadcaster
	logger       *zap.Logger
}

// SessionDependencies bundles collaborators for the session service.
type SessionDependencies struct {
	Presence     *presence.Tracker
	Queue        *QueueService
	Appointments *AppointmentService
	Broadcaster  events.Broadcaster
	Logger       *zap.Logger
}

func NewSessionService(deps SessionDependencies) *SessionService {
	return &SessionService{
		presence:     deps.Presence,
		queue:        deps.Queue,
		appointments: deps.Appointments,
		broadcaster:  deps.Broadcaster,
		logger:       deps.Logger,
	}
}

// Connect registers the connection, announces the new counts and returns the
// state to send to the connecting client. actor may be nil.
func (s *SessionService) Connect(ctx context.Context, connID string, actor *domain.User) (*State, error) {
	s.presence.Connect(connID, actor)
	s.publishPresence(ctx)
	return s.State(ctx, actor)
}

// Disconnect forgets the connection and announces the new counts.
func (s *SessionService) Disconnect(ctx context.Context, connID string) {
	s.presence.Disconnect(connID)
	s.publishPresence(ctx)
}

// State assembles the non-terminal tickets and open appointments.
func (s *SessionService) State(ctx context.Context, actor *domain.User) (*State, error) {
	tickets, err := s.queue.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &State{
		Tickets:      tickets,
		Appointments: s.appointments.Available(ctx),
		CurrentUser:  actor,
	}, nil
}

// Refresh returns the requested tickets with the current appointment
// availability. Unknown ids are skipped.
func (s *SessionService) Refresh(ctx context.Context, actor *domain.User, ids []int64) (*State, error) {
	tickets, err := s.queue.Refresh(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &State{
		Tickets:      tickets,
		Appointments: s.appointments.Available(ctx),
		CurrentUser:  actor,
	}, nil
}

// Counts exposes the current presence aggregate.
func (s *SessionService) Counts() map[string]int {
	return s.presence.Counts()
}

func (s *SessionService) publishPresence(ctx context.Context) {
	msg := events.Message{Channel: events.ChannelPresence, Presence: s.presence.Counts()}
	if err := s.broadcaster.Publish(ctx, msg); err != nil {
		s.logger.Warn("presence broadcast failed", zap.Error(err))
	}
}
