// Package transport owns the websocket connection to the face-recognition
// service for the lifetime of one scanning session.
//
// The connection is bidirectional: the client sends one JSON config
// frame followed by data-URI frame payloads, and receives typed JSON
// messages (status / frame_data / match). A reader goroutine decodes
// inbound messages onto a channel in strict arrival order; malformed
// payloads are logged and skipped. Transport-level errors close the
// message channel, with the cause available from Err.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// ErrClosed is returned by send methods after Close has been called.
var ErrClosed = errors.New("transport: connection closed")

const defaultConnectTimeout = 10 * time.Second

// Transport is one websocket session with the recognition service
type Transport struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex

	messages chan types.ServerMessage

	mu     sync.Mutex
	closed bool
	err    error

	done chan struct{}
}

// Dial opens a websocket connection to the recognition service. The
// handshake is bounded by timeout (0 uses the 10 s default).
func Dial(ctx context.Context, url string, timeout time.Duration) (*Transport, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to recognition service: %w", err)
	}

	t := &Transport{
		conn:     conn,
		messages: make(chan types.ServerMessage, 16),
		done:     make(chan struct{}),
	}

	go t.readLoop()

	return t, nil
}

// SendConfig sends the session configuration frame. Must be the first
// thing sent after the socket opens; the server will not signal ready
// until it has the roster scope.
func (t *Transport) SendConfig(groupIDs []int64) error {
	cfg := types.SessionConfig{GroupIDs: groupIDs}
	if cfg.GroupIDs == nil {
		// an empty scope is still a valid scope on the wire
		cfg.GroupIDs = []int64{}
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal session config: %w", err)
	}
	return t.writeText(payload)
}

// SendFrame sends one encoded frame payload (a data-URI string).
func (t *Transport) SendFrame(dataURI string) error {
	return t.writeText([]byte(dataURI))
}

// Messages returns the inbound message channel. It is closed when the
// connection ends for any reason; Err then reports the cause.
func (t *Transport) Messages() <-chan types.ServerMessage {
	return t.messages
}

// Done is closed when the reader has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the terminal transport error, or nil for a clean close.
// Only meaningful after Done.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close tears the connection down. Idempotent; a best-effort close
// frame is sent so the server can release its session state promptly.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// writeText writes a text frame under the write lock
func (t *Transport) writeText(payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

// readLoop decodes inbound messages until the connection ends
func (t *Transport) readLoop() {
	defer close(t.done)
	defer close(t.messages)

	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.err = err
			}
			t.mu.Unlock()
			return
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// malformed payloads are not fatal to the session
			slog.Debug("ignoring unparseable server message",
				"error", err,
				"size", len(payload),
			)
			continue
		}

		t.messages <- msg
	}
}
