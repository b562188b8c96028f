package camera

import (
	"sync"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// Latest is a single-slot latest-frame mailbox.
//
// Put overwrites any unconsumed frame (counting it as dropped) and
// TryTake consumes the stored frame without blocking. This is the
// CaptureSlot backpressure policy: the scheduler always works on the
// newest frame, and frames that arrive while a capture is in flight
// are lost rather than queued.
type Latest struct {
	mu    sync.Mutex
	frame *types.Frame

	puts  uint64
	drops uint64
}

// Put stores a frame, replacing any unconsumed one.
func (l *Latest) Put(f types.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame != nil {
		l.drops++
	}
	l.puts++
	l.frame = &f
}

// TryTake removes and returns the stored frame, or nil if the mailbox
// is empty. Never blocks.
func (l *Latest) TryTake() *types.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.frame
	l.frame = nil
	return f
}

// Drops returns the number of frames overwritten before being consumed.
func (l *Latest) Drops() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drops
}

// Puts returns the total number of frames stored.
func (l *Latest) Puts() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.puts
}
