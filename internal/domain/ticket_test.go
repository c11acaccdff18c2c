package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketStatusPending, TicketStatusAssigned, true},
		{TicketStatusAssigned, TicketStatusAssigned, true},
		{TicketStatusAssigned, TicketStatusPending, true},
		{TicketStatusAssigned, TicketStatusResolved, true},
		{TicketStatusPending, TicketStatusDeleted, true},
		{TicketStatusAppointment, TicketStatusResolved, true},
		{TicketStatusAppointment, TicketStatusDeleted, true},
		{TicketStatusPending, TicketStatusResolved, false},
		{TicketStatusAppointment, TicketStatusAssigned, false},
		{TicketStatusResolved, TicketStatusPending, false},
		{TicketStatusDeleted, TicketStatusAssigned, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTicketStatusActive(t *testing.T) {
	assert.True(t, TicketStatusPending.Active())
	assert.True(t, TicketStatusAssigned.Active())
	assert.True(t, TicketStatusAppointment.Active())
	assert.False(t, TicketStatusResolved.Active())
	assert.False(t, TicketStatusDeleted.Active())
}

func TestShortName(t *testing.T) {
	u := &User{Name: "Ada Lovelace"}
	assert.Equal(t, "Ada", u.ShortName())
	u.Name = "Plato"
	assert.Equal(t, "Plato", u.ShortName())
}
