package session

import (
	"sync"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// Roster accumulates matched students for one session.
//
// It is a set keyed by student id: the server may assert the same match
// many times as a face stays in view, and every repeat after the first
// is a no-op. Insertion order is preserved; display order is the
// caller's choice.
type Roster struct {
	mu    sync.Mutex
	order []int64
	byID  map[int64]types.MatchedStudent
}

// NewRoster creates an empty roster
func NewRoster() *Roster {
	return &Roster{
		byID: make(map[int64]types.MatchedStudent),
	}
}

// Add inserts a student if not already present. Returns true on first
// insert, false for duplicates.
func (r *Roster) Add(s types.MatchedStudent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[s.ID]; exists {
		return false
	}
	r.byID[s.ID] = s
	r.order = append(r.order, s.ID)
	return true
}

// Len returns the number of distinct students matched
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Students returns a snapshot in insertion order
func (r *Roster) Students() []types.MatchedStudent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.MatchedStudent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
