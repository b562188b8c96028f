// Package session implements the live capture-and-recognition loop: an
// explicit state machine that owns the camera, the websocket transport
// and the capture scheduler for exactly one scanning run.
//
// All session state (connection state, detection overlay, match roster)
// is mutated only from the Run loop in response to transport events;
// the capture scheduler never touches it. Resources are constructed and
// torn down as a unit, so the camera and socket can never outlive each
// other.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keshav-25byte/AttendanceApp/internal/camera"
	"github.com/keshav-25byte/AttendanceApp/internal/encode"
	"github.com/keshav-25byte/AttendanceApp/internal/eventbus"
	"github.com/keshav-25byte/AttendanceApp/internal/transport"
	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// Config parameterizes one scan session
type Config struct {
	// ServerURL is the recognition-service websocket endpoint
	ServerURL string
	// GroupIDs is the roster scope sent at connect time. An empty scope
	// is sent as-is; bounding it is the caller's policy.
	GroupIDs []int64

	// CaptureInterval is the scheduler tick period (default 500ms)
	CaptureInterval time.Duration
	// ConnectTimeout bounds the websocket dial (default 10s)
	ConnectTimeout time.Duration
	// FrameAckTimeout errors the session after this long without any
	// inbound message while scanning. 0 disables the check.
	FrameAckTimeout time.Duration

	// Source supplies raw frames; owned by the session once Run starts
	Source camera.Source
	// Encoder turns frames into transport payloads
	Encoder *encode.Encoder
	// Bus receives session events; optional
	Bus *eventbus.Bus
}

// Session is one live attendance-capture run
type Session struct {
	id  string
	cfg Config

	tr     *transport.Transport
	sched  *scheduler
	latest *camera.Latest
	roster *Roster

	mu      sync.Mutex
	state   State
	overlay []types.DetectionBox
	lastErr error

	stopOnce sync.Once
	pumpWG   sync.WaitGroup
}

// New creates a session in the Idle state
func New(cfg Config) (*Session, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("camera source is required")
	}
	if cfg.Encoder == nil {
		cfg.Encoder = encode.New(0, 0)
	}
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = 500 * time.Millisecond
	}

	s := &Session{
		id:     uuid.New().String(),
		cfg:    cfg,
		latest: &camera.Latest{},
		roster: NewRoster(),
		state:  Idle,
	}
	s.sched = newScheduler(cfg.CaptureInterval, s.captureTick)
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the session-terminating error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Roster returns the accumulated match roster
func (s *Session) Roster() *Roster {
	return s.roster
}

// Overlay returns the most recent detection boxes (replaced wholesale
// on every frame_data message)
func (s *Session) Overlay() []types.DetectionBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DetectionBox, len(s.overlay))
	copy(out, s.overlay)
	return out
}

// Run connects, scans and blocks until the session reaches a terminal
// state. Cancelling ctx stops the session cleanly. The returned error
// is non-nil only for session-level failures (permission, transport);
// a user stop returns nil.
func (s *Session) Run(ctx context.Context) error {
	if st := s.State(); st != Idle {
		return fmt.Errorf("session already ran (state %s)", st)
	}

	defer func() {
		s.Stop()
		if s.tr != nil {
			// drain so the transport reader can exit even if messages
			// arrived between the last dispatch and the close
			for range s.tr.Messages() {
			}
		}
		s.pumpWG.Wait()
	}()

	s.setState(Connecting)
	s.logEvent("connecting to recognition service")

	tr, err := transport.Dial(ctx, s.cfg.ServerURL, s.cfg.ConnectTimeout)
	if err != nil {
		return s.fail(fmt.Errorf("connect failed: %w", err))
	}
	s.tr = tr

	s.setState(Connected)
	s.logEvent("socket open, sending roster scope")

	if err := tr.SendConfig(s.cfg.GroupIDs); err != nil {
		return s.fail(fmt.Errorf("config send failed: %w", err))
	}

	if err := s.cfg.Source.Start(ctx); err != nil {
		return s.fail(fmt.Errorf("camera start failed: %w", err))
	}

	s.pumpWG.Add(1)
	go s.pumpFrames()

	return s.messageLoop(ctx)
}

// messageLoop processes inbound messages in strict arrival order until
// the transport ends or ctx is cancelled
func (s *Session) messageLoop(ctx context.Context) error {
	var silence *time.Timer
	var silenceC <-chan time.Time
	if s.cfg.FrameAckTimeout > 0 {
		silence = time.NewTimer(s.cfg.FrameAckTimeout)
		defer silence.Stop()
		silenceC = silence.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logEvent("scan cancelled")
			return nil

		case <-silenceC:
			if s.State() == Scanning {
				return s.fail(fmt.Errorf("no server message for %s", s.cfg.FrameAckTimeout))
			}
			silence.Reset(s.cfg.FrameAckTimeout)

		case msg, ok := <-s.tr.Messages():
			if !ok {
				// transport ended: clean close stops, an error fails
				if err := s.tr.Err(); err != nil && !s.State().Terminal() {
					return s.fail(fmt.Errorf("transport error: %w", err))
				}
				s.logEvent("connection closed")
				return nil
			}
			if silence != nil {
				if !silence.Stop() {
					select {
					case <-silence.C:
					default:
					}
				}
				silence.Reset(s.cfg.FrameAckTimeout)
			}
			s.dispatch(ctx, msg)
		}
	}
}

// dispatch applies one inbound message to session state
func (s *Session) dispatch(ctx context.Context, msg types.ServerMessage) {
	switch msg.Type {
	case types.MsgStatus:
		if msg.Message != types.StatusReady {
			return
		}
		// the sole trigger that arms the capture scheduler: the server
		// has initialized its per-session matching state. The state
		// check and Arm happen under the same lock so a concurrent Stop
		// either sees Scanning and disarms, or wins and suppresses the
		// arm entirely.
		s.mu.Lock()
		if s.state != Connected {
			s.mu.Unlock()
			return
		}
		s.state = Scanning
		s.sched.Arm(ctx)
		s.mu.Unlock()

		slog.Info("session state", "session_id", s.id, "from", Connected.String(), "to", Scanning.String())
		s.publish(eventbus.Event{
			Kind:  eventbus.KindState,
			State: Scanning.String(),
		})
		s.logEvent("server ready, capture loop started")

	case types.MsgFrameData:
		if s.State().Terminal() {
			return
		}
		s.mu.Lock()
		s.overlay = msg.Boxes
		s.mu.Unlock()
		s.publish(eventbus.Event{
			Kind:  eventbus.KindDetections,
			Boxes: msg.Boxes,
		})

	case types.MsgMatch:
		if msg.Student == nil || s.State().Terminal() {
			return
		}
		if s.roster.Add(*msg.Student) {
			s.logEvent(fmt.Sprintf("matched %s (%s)", msg.Student.Name, msg.Student.RollNumber))
			s.publish(eventbus.Event{
				Kind:    eventbus.KindMatch,
				Student: msg.Student,
			})
		}

	default:
		// unrecognized message types are ignored
		slog.Debug("ignoring server message", "type", msg.Type)
	}
}

// captureTick is the scheduler's capture-encode-send sequence. Errors
// are per-tick and recoverable; the scheduler logs them and the next
// tick simply tries again.
func (s *Session) captureTick(ctx context.Context) error {
	frame := s.latest.TryTake()
	if frame == nil {
		// camera has not produced a frame yet; silent no-op
		return nil
	}

	payload, err := s.cfg.Encoder.EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}

	// the session may have stopped while we were encoding; a stale
	// result must be discarded, not sent
	select {
	case <-ctx.Done():
		slog.Debug("discarding stale capture result", "trace_id", frame.TraceID)
		return nil
	default:
	}

	if err := s.tr.SendFrame(payload); err != nil {
		if err == transport.ErrClosed {
			return nil
		}
		return fmt.Errorf("frame send failed: %w", err)
	}

	slog.Debug("frame sent",
		"seq", frame.Seq,
		"payload_bytes", len(payload),
		"trace_id", frame.TraceID,
	)
	return nil
}

// pumpFrames moves camera frames into the latest-frame mailbox
func (s *Session) pumpFrames() {
	defer s.pumpWG.Done()
	for frame := range s.cfg.Source.Frames() {
		s.latest.Put(frame)
	}
}

// Stop ends the session: scheduler disarmed, transport closed, camera
// stopped. Idempotent; calling it twice has no additional effect. An
// in-flight capture may complete in the background but its result is
// discarded.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		// terminal state first: a ready message racing this Stop must
		// see it and decline to arm the scheduler
		s.mu.Lock()
		if !s.state.Terminal() {
			s.state = Stopped
		}
		final := s.state
		s.mu.Unlock()

		s.sched.Disarm()
		if s.tr != nil {
			s.tr.Close()
		}
		s.cfg.Source.Stop()

		s.publish(eventbus.Event{
			Kind:  eventbus.KindState,
			State: final.String(),
		})

		slog.Info("session stopped",
			"session_id", s.id,
			"state", final.String(),
			"matched", s.roster.Len(),
			"frame_drops", s.latest.Drops(),
		)
	})
}

// fail moves the session to Errored: scheduler disarmed and transport
// closed before the error is surfaced
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		// already stopped; keep the first terminal state
		s.mu.Unlock()
		return nil
	}
	s.state = Errored
	s.lastErr = err
	s.mu.Unlock()

	s.sched.Disarm()
	if s.tr != nil {
		s.tr.Close()
	}

	s.publish(eventbus.Event{
		Kind: eventbus.KindError,
		Err:  err.Error(),
	})
	slog.Error("session failed", "session_id", s.id, "error", err)
	return err
}

// setState records a state transition and publishes it
func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	slog.Info("session state", "session_id", s.id, "from", prev.String(), "to", st.String())
	s.publish(eventbus.Event{
		Kind:  eventbus.KindState,
		State: st.String(),
	})
}

// logEvent publishes a human-readable activity line
func (s *Session) logEvent(msg string) {
	s.publish(eventbus.Event{
		Kind:    eventbus.KindLog,
		Message: msg,
	})
}

// publish stamps and sends an event to the bus, if one is attached
func (s *Session) publish(ev eventbus.Event) {
	if s.cfg.Bus == nil {
		return
	}
	ev.At = time.Now()
	ev.SessionID = s.id
	s.cfg.Bus.Publish(ev)
}
