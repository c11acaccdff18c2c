package events

import (
	"context"

	"github.com/spec-kit/oh-queue/internal/domain"
)

// Channel is the logical stream a message is delivered on.
type Channel string

const (
	// ChannelEvent carries committed ticket mutations.
	ChannelEvent Channel = "event"
	// ChannelPresence carries aggregate connection counts per role.
	ChannelPresence Channel = "presence"
	// ChannelResync is local only: it wakes subscribers flagged for resync.
	ChannelResync Channel = "resync"
)

// Presence roles.
const (
	RoleStaff    = "staff"
	RoleStudents = "students"
)

// TicketChange is the payload of an event-channel message.
type TicketChange struct {
	Type   domain.TicketEventType `json:"type"`
	Ticket domain.Ticket          `json:"ticket"`
}

// Message is one broadcast delivered to every connected client.
type Message struct {
	ID       string         `json:"id"`
	Channel  Channel        `json:"channel"`
	Change   *TicketChange  `json:"change,omitempty"`
	Presence map[string]int `json:"presence,omitempty"`
}

// Broadcaster publishes messages to all connected clients.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
}
