package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/oh-queue/internal/domain"
)

func TestTicketResponsePrivacy(t *testing.T) {
	owner := domain.User{ID: 1, Email: "s@example.com", Name: "Stu Dent"}
	ta := &domain.User{ID: 2, Email: "ta@example.com", Name: "Tee Ay", IsStaff: true}
	stranger := &domain.User{ID: 3, Email: "x@example.com"}
	ticket := domain.Ticket{ID: 9, Status: domain.TicketStatusAssigned, User: owner, Helper: ta,
		Created: time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("PST", -8*3600))}

	render := func(viewer *domain.User) map[string]any {
		raw, err := json.Marshal(NewTicketResponse(ticket, viewer))
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	}

	assert.Empty(t, render(nil)["user"])
	assert.Empty(t, render(stranger)["user"])
	assert.Equal(t, "s@example.com", render(&owner)["user"].(map[string]any)["email"])
	assert.Equal(t, "Stu", render(ta)["user"].(map[string]any)["shortName"])

	anon := render(nil)
	assert.Equal(t, "ta@example.com", anon["helper"].(map[string]any)["email"], "helper is always visible")
	assert.Equal(t, "2026-03-02T17:30:00Z", anon["created"])
	assert.Nil(t, anon["calendarEvent"])
	assert.Nil(t, anon["appointmentStartTime"])
	for _, key := range []string{"id", "status", "location", "assignment", "description", "question"} {
		assert.Contains(t, anon, key)
	}
}
