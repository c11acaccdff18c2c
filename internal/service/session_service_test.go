package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/oh-queue/internal/events"
)

func TestSessionConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)
	f.openSlot("evt-1", testNow.Add(time.Hour), "")
	_, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)

	state, err := f.sessions.Connect(ctx, "c1", ta)
	require.NoError(t, err)
	assert.Len(t, state.Tickets, 1)
	assert.Len(t, state.Appointments, 1)
	assert.Equal(t, ta.Email, state.CurrentUser.Email)

	_, err = f.sessions.Connect(ctx, "c2", nil)
	require.NoError(t, err)
	_, err = f.sessions.Connect(ctx, "c3", x)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{events.RoleStaff: 1, events.RoleStudents: 1}, f.sessions.Counts())

	f.sessions.Disconnect(ctx, "c3")
	f.sessions.Disconnect(ctx, "c3")

	counts := f.broadcaster.presence()
	require.Len(t, counts, 5)
	assert.Equal(t, 1, counts[0][events.RoleStaff])
	assert.Equal(t, 0, counts[4][events.RoleStudents])
}

func TestSessionPresenceFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.broadcaster.err = assert.AnError

	state, err := f.sessions.Connect(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, state.Tickets)
	f.sessions.Disconnect(context.Background(), "c1")
}

func TestSessionRefreshIncludesAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	f.openSlot("evt-1", testNow.Add(time.Hour), "COST=20")
	res, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)

	state, err := f.sessions.Refresh(ctx, x, []int64{res.Tickets[0].ID, 404})
	require.NoError(t, err)
	require.Len(t, state.Tickets, 1)
	assert.Equal(t, res.Tickets[0].ID, state.Tickets[0].ID)
	require.Len(t, state.Appointments, 1)
	assert.Equal(t, "evt-1", state.Appointments[0].EventID)
	assert.Equal(t, 20, state.Appointments[0].Cost)
	assert.Equal(t, x.Email, state.CurrentUser.Email)
}
