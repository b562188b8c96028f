package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// scheduler drives the capture-encode-send sequence at a fixed period.
//
// Invariants:
//   - Single flight: a tick that fires while the previous sequence is
//     still running is skipped outright. Ticks are lossy, not buffered;
//     this is backpressure, not retry.
//   - Disarm is idempotent and suppresses every future tick, including
//     one already scheduled. The per-arm context is handed to the tick
//     function so work in flight at disarm time can detect it is stale
//     and discard its result instead of applying it.
type scheduler struct {
	interval time.Duration
	tick     func(ctx context.Context) error

	mu     sync.Mutex
	armed  bool
	gen    uint64
	cancel context.CancelFunc

	// loopWG tracks the tick loop; tickWG tracks in-flight sequences.
	// Disarm waits only for the loop: an in-flight capture may finish in
	// the background, its result discarded via the cancelled context.
	loopWG sync.WaitGroup
	tickWG sync.WaitGroup

	inFlight atomic.Bool

	ticksFired   atomic.Uint64
	ticksSkipped atomic.Uint64
	tickFailures atomic.Uint64
}

func newScheduler(interval time.Duration, tick func(ctx context.Context) error) *scheduler {
	return &scheduler{
		interval: interval,
		tick:     tick,
	}
}

// Arm starts the tick loop. No-op if already armed.
func (s *scheduler) Arm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return
	}
	s.armed = true
	s.gen++

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loopWG.Add(1)
	go s.loop(tickCtx, s.gen)

	slog.Debug("capture scheduler armed", "interval", s.interval)
}

// Disarm stops the tick loop. Idempotent. Work already in flight runs
// to completion but sees a cancelled context.
func (s *scheduler) Disarm() {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loopWG.Wait()

	slog.Debug("capture scheduler disarmed",
		"ticks_fired", s.ticksFired.Load(),
		"ticks_skipped", s.ticksSkipped.Load(),
		"tick_failures", s.tickFailures.Load(),
	)
}

// WaitInFlight blocks until any in-flight tick sequence has finished
func (s *scheduler) WaitInFlight() {
	s.tickWG.Wait()
}

// Armed reports whether the scheduler is currently running
func (s *scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// loop fires ticks until the arm context is cancelled
func (s *scheduler) loop(ctx context.Context, gen uint64) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Single-flight guard: skip, never queue
			if !s.inFlight.CompareAndSwap(false, true) {
				s.ticksSkipped.Add(1)
				continue
			}

			s.ticksFired.Add(1)
			s.tickWG.Add(1)
			go func() {
				defer s.tickWG.Done()
				defer s.inFlight.Store(false)

				if err := s.tick(ctx); err != nil {
					// per-tick failures are recoverable; next tick retries
					s.tickFailures.Add(1)
					slog.Warn("capture tick failed", "gen", gen, "error", err)
				}
			}()
		}
	}
}
