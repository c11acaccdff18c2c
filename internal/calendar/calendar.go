// Package calendar is the boundary to the remote scheduling backend that
// owns appointment slots.
//
// A slot is unclaimed while its summary equals the course's marker token.
// Its description may carry a line of the form COST=<int> giving the credit
// price (non-negative); slots without a parseable line cost the configured fallback.
package calendar

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSlotNotFound is returned by Get and Patch when the slot is absent.
	ErrSlotNotFound = errors.New("calendar slot not found")
	// ErrUnavailable wraps transport failures and an open circuit.
	ErrUnavailable = errors.New("calendar unavailable")
)

// Visibility values used by the claim protocol.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Attendee is a guest on a slot.
type Attendee struct {
	Name  string
	Email string
}

// Slot is a bookable time window owned by the calendar backend.
type Slot struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Visibility  string
	Start       time.Time
	End         time.Time
	Attendees   []Attendee
}

// Patch lists the fields to change on a slot. Nil fields are left untouched;
// a non-nil empty Attendees clears the guest list.
type Patch struct {
	Summary    *string
	Visibility *string
	Attendees  *[]Attendee
}

// Client is the calendar collaborator contract.
type Client interface {
	Get(ctx context.Context, slotID string) (*Slot, error)
	// List returns slots starting at or after timeMin ordered by start time.
	List(ctx context.Context, timeMin time.Time) ([]Slot, error)
	// Patch applies p and returns the updated slot. notify asks the backend
	// to email attendees about the change.
	Patch(ctx context.Context, slotID string, p Patch, notify bool) (*Slot, error)
}

// FindCost parses the first COST=<int> line in description. Negative
// costs count as malformed.
func FindCost(description string, fallback int) int {
	for _, line := range strings.Split(description, "\n") {
		if !strings.HasPrefix(line, "COST=") {
			continue
		}
		cost, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "COST=")))
		if err != nil || cost < 0 {
			continue
		}
		return cost
	}
	return fallback
}

// Conventions binds the course-specific slot encoding.
type Conventions struct {
	UnclaimedMarker string
	ClaimedSummary  string
	DefaultCost     int
}

// Unclaimed reports whether s can still be booked.
func (c Conventions) Unclaimed(s *Slot) bool {
	return s != nil && s.Summary == c.UnclaimedMarker
}

// Cost returns the credit price of s.
func (c Conventions) Cost(s *Slot) int {
	return FindCost(s.Description, c.DefaultCost)
}

// ClaimPatch marks a slot as booked by attendee.
func (c Conventions) ClaimPatch(s *Slot, attendee Attendee) Patch {
	summary := c.ClaimedSummary
	visibility := VisibilityPrivate
	attendees := append(append([]Attendee{}, s.Attendees...), attendee)
	return Patch{Summary: &summary, Visibility: &visibility, Attendees: &attendees}
}

// ClearAttendeesPatch removes every guest from a slot.
func (c Conventions) ClearAttendeesPatch() Patch {
	attendees := []Attendee{}
	return Patch{Attendees: &attendees}
}

// ResetPatch makes a slot claimable again.
func (c Conventions) ResetPatch() Patch {
	summary := c.UnclaimedMarker
	visibility := VisibilityPublic
	return Patch{Summary: &summary, Visibility: &visibility}
}
