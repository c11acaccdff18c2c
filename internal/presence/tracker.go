// Package presence counts the distinct people currently connected, split by
// role. Counts are per process.
package presence

import (
	"sync"

	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
)

type entry struct {
	email   string
	isStaff bool
}

// Tracker maps connection ids to the identified user behind them. Anonymous
// connections are never recorded.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]entry
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]entry)}
}

// Connect records connID for user. A nil user is a no-op. Reconnecting with
// the same id replaces the previous entry.
func (t *Tracker) Connect(connID string, user *domain.User) {
	if user == nil {
		return
	}
	t.mu.Lock()
	t.conns[connID] = entry{email: user.Email, isStaff: user.IsStaff}
	t.mu.Unlock()
}

// Disconnect forgets connID. Unknown ids are ignored.
func (t *Tracker) Disconnect(connID string) {
	t.mu.Lock()
	delete(t.conns, connID)
	t.mu.Unlock()
}

// Counts returns the number of distinct emails connected per role. A person
// with several tabs open counts once.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	staff := make(map[string]struct{})
	students := make(map[string]struct{})
	for _, e := range t.conns {
		if e.isStaff {
			staff[e.email] = struct{}{}
		} else {
			students[e.email] = struct{}{}
		}
	}
	return map[string]int{
		events.RoleStaff:    len(staff),
		events.RoleStudents: len(students),
	}
}
