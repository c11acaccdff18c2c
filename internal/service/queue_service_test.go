package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/oh-queue/internal/domain"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

var hw1 = CreateInput{Assignment: "HW1", Question: "loop bug", Location: "lab"}

func TestQueueCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("second create is rejected while the first is open", func(t *testing.T) {
		f := newFixture(t)
		x := f.user(t, "x@example.com", false, 100)

		res, err := f.queue.Create(ctx, x, hw1)
		require.NoError(t, err)
		require.Len(t, res.Tickets, 1)
		ticket := res.Tickets[0]
		assert.Equal(t, domain.TicketStatusPending, ticket.Status)
		assert.Equal(t, TicketPath(ticket.ID), res.Redirect)

		_, err = f.queue.Create(ctx, x, hw1)
		require.Error(t, err)
		de := apperrors.ToDomainError(err)
		assert.Equal(t, apperrors.CodeAlreadyQueued, de.Code)
		assert.Equal(t, TicketPath(ticket.ID), de.Redirect)

		assert.Len(t, f.store.EventsFor(ticket.ID), 1)
		changes := f.broadcaster.changes()
		require.Len(t, changes, 1)
		assert.Equal(t, domain.TicketEventCreate, changes[0].Type)
	})

	t.Run("blank fields", func(t *testing.T) {
		f := newFixture(t)
		x := f.user(t, "x@example.com", false, 100)

		_, err := f.queue.Create(ctx, x, CreateInput{Assignment: "HW1", Question: "  ", Location: "lab"})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
		assert.Equal(t, 0, f.store.TicketCount(x.ID, false))
		assert.Empty(t, f.broadcaster.changes())
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.queue.Create(ctx, nil, hw1)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	})

	t.Run("resolved ticket frees the user", func(t *testing.T) {
		f := newFixture(t)
		x := f.user(t, "x@example.com", false, 100)
		res, err := f.queue.Create(ctx, x, hw1)
		require.NoError(t, err)
		_, err = f.queue.Resolve(ctx, x, []int64{res.Tickets[0].ID})
		require.NoError(t, err)

		_, err = f.queue.Create(ctx, x, hw1)
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.TicketCount(x.ID, true))
	})
}

func TestQueueCreateRace(t *testing.T) {
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		queued    int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.queue.Create(context.Background(), x, hw1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.IsCode(err, apperrors.CodeAlreadyQueued):
				queued++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, queued)
	assert.Equal(t, 1, f.store.TicketCount(x.ID, false))
}

func TestQueueAssign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)
	res, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	id := res.Tickets[0].ID

	_, err = f.queue.Assign(ctx, x, []int64{id})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))

	first, err := f.queue.Assign(ctx, ta, []int64{id})
	require.NoError(t, err)
	second, err := f.queue.Assign(ctx, ta, []int64{id})
	require.NoError(t, err)

	assert.Equal(t, first.Tickets[0].Status, second.Tickets[0].Status)
	require.NotNil(t, second.Tickets[0].Helper)
	assert.Equal(t, ta.ID, second.Tickets[0].Helper.ID)

	stored := f.store.Ticket(id)
	assert.Equal(t, domain.TicketStatusAssigned, stored.Status)

	var assigns int
	for _, e := range f.store.EventsFor(id) {
		if e.EventType == domain.TicketEventAssign {
			assigns++
		}
	}
	assert.Equal(t, 2, assigns, "each assign call appends one event")
}

func TestQueueBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "a@example.com", false, 100)
	b := f.user(t, "b@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)

	ra, err := f.queue.Create(ctx, a, hw1)
	require.NoError(t, err)
	rb, err := f.queue.Create(ctx, b, hw1)
	require.NoError(t, err)
	_, err = f.queue.Resolve(ctx, b, []int64{rb.Tickets[0].ID})
	require.NoError(t, err)
	before := len(f.broadcaster.changes())

	t.Run("illegal transition", func(t *testing.T) {
		_, err := f.queue.Assign(ctx, ta, []int64{ra.Tickets[0].ID, rb.Tickets[0].ID})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
		assert.Equal(t, domain.TicketStatusPending, f.store.Ticket(ra.Tickets[0].ID).Status)
		assert.Len(t, f.store.EventsFor(ra.Tickets[0].ID), 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.queue.Assign(ctx, ta, []int64{ra.Tickets[0].ID, 999})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
		assert.Equal(t, domain.TicketStatusPending, f.store.Ticket(ra.Tickets[0].ID).Status)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := f.queue.Assign(ctx, ta, nil)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	})

	assert.Len(t, f.broadcaster.changes(), before, "rejected intents broadcast nothing")
}

func TestQueueUnassign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)
	res, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	id := res.Tickets[0].ID

	_, err = f.queue.Unassign(ctx, ta, []int64{id})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), "pending tickets cannot be unassigned")

	_, err = f.queue.Assign(ctx, ta, []int64{id})
	require.NoError(t, err)
	out, err := f.queue.Unassign(ctx, ta, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, out.Tickets[0].Status)
	assert.Nil(t, f.store.Ticket(id).Helper)
}

func TestQueueResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	y := f.user(t, "y@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)

	rx, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	ry, err := f.queue.Create(ctx, y, hw1)
	require.NoError(t, err)

	_, err = f.queue.Resolve(ctx, y, []int64{rx.Tickets[0].ID})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))

	_, err = f.queue.Assign(ctx, ta, []int64{rx.Tickets[0].ID})
	require.NoError(t, err)
	out, err := f.queue.Resolve(ctx, ta, []int64{rx.Tickets[0].ID})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, out.Tickets[0].Status)
	assert.Equal(t, TicketPath(ry.Tickets[0].ID), out.Redirect, "staff move on to the next ticket")

	_, err = f.queue.Resolve(ctx, ta, []int64{rx.Tickets[0].ID})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), "terminal tickets stay terminal")
}

func TestQueueDeleteByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	y := f.user(t, "y@example.com", false, 100)
	res, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	id := res.Tickets[0].ID

	_, err = f.queue.Delete(ctx, y, []int64{id})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))

	_, err = f.queue.Delete(ctx, x, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDeleted, f.store.Ticket(id).Status)
}

func TestQueueNextFor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ta := f.user(t, "ta@example.com", true, 0)

	next, err := f.queue.NextFor(ctx, ta)
	require.NoError(t, err)
	assert.Nil(t, next)
	redirect, err := f.queue.NextRedirect(ctx, ta)
	require.NoError(t, err)
	assert.Equal(t, IndexPath, redirect)

	var ids []int64
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		res, err := f.queue.Create(ctx, f.user(t, email, false, 100), hw1)
		require.NoError(t, err)
		ids = append(ids, res.Tickets[0].ID)
	}

	next, err = f.queue.NextFor(ctx, ta)
	require.NoError(t, err)
	assert.Equal(t, ids[0], next.ID, "oldest pending first")

	_, err = f.queue.Assign(ctx, ta, []int64{ids[2]})
	require.NoError(t, err)
	next, err = f.queue.NextFor(ctx, ta)
	require.NoError(t, err)
	assert.Equal(t, ids[2], next.ID, "own assigned ticket beats older pending ones")

	_, err = f.queue.NextFor(ctx, f.user(t, "s@example.com", false, 0))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
}

func TestQueueDescribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	res, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	id := res.Tickets[0].ID

	out, err := f.queue.Describe(ctx, nil, id, "segfault on line 3")
	require.NoError(t, err)
	assert.Equal(t, "segfault on line 3", out.Tickets[0].Description)

	entries := f.store.EventsFor(id)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TicketEventDescribe, entries[1].EventType)
	assert.Nil(t, entries[1].UserID)

	_, err = f.queue.Describe(ctx, x, 404, "x")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestQueueReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := f.user(t, "x@example.com", false, 100)
	y := f.user(t, "y@example.com", false, 100)
	ta := f.user(t, "ta@example.com", true, 0)

	rx, err := f.queue.Create(ctx, x, hw1)
	require.NoError(t, err)
	ry, err := f.queue.Create(ctx, y, hw1)
	require.NoError(t, err)
	_, err = f.queue.Delete(ctx, y, []int64{ry.Tickets[0].ID})
	require.NoError(t, err)

	snapshot, err := f.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, rx.Tickets[0].ID, snapshot[0].ID)

	refreshed, err := f.queue.Refresh(ctx, []int64{ry.Tickets[0].ID, rx.Tickets[0].ID, 999, rx.Tickets[0].ID})
	require.NoError(t, err)
	require.Len(t, refreshed, 2)
	assert.Equal(t, domain.TicketStatusDeleted, refreshed[1].Status)

	_, err = f.queue.LoadTicket(ctx, x, rx.Tickets[0].ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	loaded, err := f.queue.LoadTicket(ctx, ta, rx.Tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", loaded.User.Email)

	history, err := f.queue.History(ctx, ta, ry.Tickets[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TicketEventCreate, history[0].EventType)
	assert.Equal(t, domain.TicketEventDelete, history[1].EventType)

	_, err = f.queue.History(ctx, ta, 999)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
