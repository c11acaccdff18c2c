package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/oh-queue/internal/domain"
	"github.com/spec-kit/oh-queue/internal/events"
)

func TestTrackerCountsDistinctPeople(t *testing.T) {
	tr := NewTracker()
	alice := &domain.User{Email: "alice@example.com"}
	ta := &domain.User{Email: "ta@example.com", IsStaff: true}

	tr.Connect("c1", alice)
	tr.Connect("c2", alice)
	tr.Connect("c3", ta)
	tr.Connect("anon", nil)

	assert.Equal(t, map[string]int{events.RoleStaff: 1, events.RoleStudents: 1}, tr.Counts())

	tr.Disconnect("c1")
	assert.Equal(t, 1, tr.Counts()[events.RoleStudents], "second tab keeps alice present")

	tr.Disconnect("c2")
	tr.Disconnect("c2")
	tr.Disconnect("anon")
	assert.Equal(t, map[string]int{events.RoleStaff: 1, events.RoleStudents: 0}, tr.Counts())
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			tr.Connect(id, &domain.User{Email: fmt.Sprintf("u%d@example.com", i%10)})
			_ = tr.Counts()
			if i%2 == 0 {
				tr.Disconnect(id)
			}
		}(i)
	}
	wg.Wait()

	// Odd connections remain: i%10 in {1,3,5,7,9}.
	assert.Equal(t, 5, tr.Counts()[events.RoleStudents])
}
