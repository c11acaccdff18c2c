package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryClient is an in-process calendar used for local development and
// tests. Each call is atomic.
type MemoryClient struct {
	mu    sync.Mutex
	slots map[string]Slot

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned instead of performing the call.
	Fail func(op, slotID string) error
}

// NewMemoryClient seeds a calendar with slots.
func NewMemoryClient(slots ...Slot) *MemoryClient {
	m := &MemoryClient{slots: make(map[string]Slot, len(slots))}
	for _, s := range slots {
		m.slots[s.ID] = cloneSlot(s)
	}
	return m
}

// Put inserts or replaces a slot.
func (m *MemoryClient) Put(s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[s.ID] = cloneSlot(s)
}

// Remove deletes a slot.
func (m *MemoryClient) Remove(slotID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slotID)
}

func (m *MemoryClient) Get(_ context.Context, slotID string) (*Slot, error) {
	if err := m.fail("get", slotID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := cloneSlot(s)
	return &out, nil
}

func (m *MemoryClient) List(_ context.Context, timeMin time.Time) ([]Slot, error) {
	if err := m.fail("list", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Slot, 0, len(m.slots))
	for _, s := range m.slots {
		if s.Start.Before(timeMin) {
			continue
		}
		out = append(out, cloneSlot(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (m *MemoryClient) Patch(_ context.Context, slotID string, p Patch, _ bool) (*Slot, error) {
	if err := m.fail("patch", slotID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if p.Summary != nil {
		s.Summary = *p.Summary
	}
	if p.Visibility != nil {
		s.Visibility = *p.Visibility
	}
	if p.Attendees != nil {
		s.Attendees = append([]Attendee{}, (*p.Attendees)...)
	}
	m.slots[slotID] = s
	out := cloneSlot(s)
	return &out, nil
}

func (m *MemoryClient) fail(op, slotID string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, slotID)
}

func cloneSlot(s Slot) Slot {
	s.Attendees = append([]Attendee(nil), s.Attendees...)
	return s
}
