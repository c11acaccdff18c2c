package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var conventions = Conventions{
	UnclaimedMarker: "#appointment",
	ClaimedSummary:  "CS 61A Appointment",
	DefaultCost:     50,
}

func TestFindCost(t *testing.T) {
	cases := []struct {
		name        string
		description string
		want        int
	}{
		{"explicit", "Bring your laptop.\n\nCOST=30", 30},
		{"first valid line wins", "COST=abc\nCOST=12\nCOST=99", 12},
		{"missing", "no price here", 50},
		{"empty", "", 50},
		{"malformed only", "COST=", 50},
		{"negative is malformed", "COST=-10", 50},
		{"negative skipped for a later line", "COST=-10\nCOST=15", 15},
		{"zero", "COST=0", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FindCost(tc.description, 50))
		})
	}
}

func TestConventions(t *testing.T) {
	slot := &Slot{ID: "evt-1", Summary: "#appointment", Description: "COST=20", Attendees: []Attendee{{Name: "TA", Email: "ta@example.com"}}}
	assert.True(t, conventions.Unclaimed(slot))
	assert.Equal(t, 20, conventions.Cost(slot))

	p := conventions.ClaimPatch(slot, Attendee{Name: "Stu", Email: "stu@example.com"})
	require.NotNil(t, p.Attendees)
	assert.Len(t, *p.Attendees, 2)
	assert.Len(t, slot.Attendees, 1, "claim patch must not alias the slot's attendees")
	assert.Equal(t, VisibilityPrivate, *p.Visibility)
	assert.Equal(t, "CS 61A Appointment", *p.Summary)

	reset := conventions.ResetPatch()
	assert.Equal(t, "#appointment", *reset.Summary)
	assert.Equal(t, VisibilityPublic, *reset.Visibility)
	assert.Nil(t, reset.Attendees)

	cleared := conventions.ClearAttendeesPatch()
	require.NotNil(t, cleared.Attendees)
	assert.Empty(t, *cleared.Attendees)
}

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	m := NewMemoryClient(
		Slot{ID: "late", Summary: "#appointment", Start: now.Add(2 * time.Hour)},
		Slot{ID: "early", Summary: "#appointment", Start: now.Add(time.Hour)},
		Slot{ID: "past", Summary: "#appointment", Start: now.Add(-time.Hour)},
	)

	slots, err := m.List(ctx, now)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "early", slots[0].ID)
	assert.Equal(t, "late", slots[1].ID)

	_, err = m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSlotNotFound)

	updated, err := m.Patch(ctx, "early", conventions.ClaimPatch(&slots[0], Attendee{Email: "stu@example.com"}), true)
	require.NoError(t, err)
	assert.False(t, conventions.Unclaimed(updated))

	got, err := m.Get(ctx, "early")
	require.NoError(t, err)
	assert.Len(t, got.Attendees, 1)
}

func TestBreakerClient(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	m := NewMemoryClient(Slot{ID: "evt-1", Summary: "#appointment"})
	failing := true
	m.Fail = func(op, slotID string) error {
		if failing {
			return boom
		}
		return nil
	}

	b := NewBreakerClient(m, BreakerSettings{ConsecutiveFailures: 2, OpenFor: time.Hour, CallTimeout: time.Second}, zap.NewNop())

	_, err := b.Get(ctx, "evt-1")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = b.Get(ctx, "evt-1")
	require.ErrorIs(t, err, ErrUnavailable)

	// Open: the backend is not consulted even though it recovered.
	failing = false
	_, err = b.Get(ctx, "evt-1")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerClientNotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(Slot{ID: "evt-1", Summary: "#appointment"})
	b := NewBreakerClient(m, BreakerSettings{ConsecutiveFailures: 1, OpenFor: time.Hour}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := b.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrSlotNotFound)
	}
	s, err := b.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", s.ID)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.List(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrUnavailable)
}
