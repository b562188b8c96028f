// Package eventbus provides non-blocking distribution of session events
// to multiple subscribers (console feed, MQTT exporter, tests).
//
// Publish never blocks: a subscriber whose channel is full loses the
// event. Session events are advisory — the roster and state machine are
// the source of truth, so a dropped log line must never stall the
// capture loop.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

var (
	ErrBusClosed          = errors.New("eventbus: bus is closed")
	ErrSubscriberExists   = errors.New("eventbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber not found")
	ErrNilChannel         = errors.New("eventbus: nil channel provided")
)

// Kind discriminates session events
type Kind string

const (
	KindState      Kind = "state"      // session state transition
	KindLog        Kind = "log"        // human-readable activity line
	KindMatch      Kind = "match"      // positive identification
	KindDetections Kind = "detections" // overlay boxes replaced
	KindError      Kind = "error"      // session-level failure
)

// Event is one session event. Fields beyond Kind/At/SessionID are
// populated depending on the kind.
type Event struct {
	Kind      Kind
	At        time.Time
	SessionID string

	State   string
	Message string
	Student *types.MatchedStudent
	Boxes   []types.DetectionBox
	Err     string
}

// SubscriberStats tracks event distribution metrics
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	id    string
	ch    chan<- Event
	stats *SubscriberStats
}

// Bus distributes events to subscribers with a drop-new policy
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished uint64
	closed         bool
}

// New creates a new Bus
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a channel. The caller owns the channel's buffer
// size; a full buffer means dropped events, not backpressure.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if ch == nil {
		return ErrNilChannel
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{
		id:    id,
		ch:    ch,
		stats: &SubscriberStats{},
	}
	return nil
}

// Publish distributes an event to all subscribers (non-blocking)
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
			atomic.AddUint64(&sub.stats.Sent, 1)
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
		}
	}
}

// Unsubscribe removes a subscriber
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns statistics for a subscriber
func (b *Bus) Stats(id string) (*SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return nil, ErrSubscriberNotFound
	}
	return &SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// TotalPublished returns the lifetime publish count
func (b *Bus) TotalPublished() uint64 {
	return atomic.LoadUint64(&b.totalPublished)
}

// Close shuts down the bus. Subsequent Publish calls are no-ops.
// Subscriber channels are not closed; their owners decide when to stop
// reading.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[string]*subscriber)
}
