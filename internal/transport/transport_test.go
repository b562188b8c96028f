package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsURL converts an httptest server URL to a ws:// URL
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestDialAndSendConfig verifies the config frame reaches the server as
// the documented JSON shape.
func TestDialAndSendConfig(t *testing.T) {
	received := make(chan types.SessionConfig, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cfg types.SessionConfig
		if err := conn.ReadJSON(&cfg); err == nil {
			received <- cfg
		}
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.SendConfig([]int64{7, 9}); err != nil {
		t.Fatalf("SendConfig failed: %v", err)
	}

	select {
	case cfg := <-received:
		if len(cfg.GroupIDs) != 2 || cfg.GroupIDs[0] != 7 || cfg.GroupIDs[1] != 9 {
			t.Errorf("unexpected group ids: %v", cfg.GroupIDs)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for config frame")
	}
}

// TestSendConfigEmptyScope verifies an empty roster scope is sent as an
// empty array, not null, and the connection still opens.
func TestSendConfigEmptyScope(t *testing.T) {
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, payload, err := conn.ReadMessage()
		if err == nil {
			received <- payload
		}
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.SendConfig(nil); err != nil {
		t.Fatalf("SendConfig failed: %v", err)
	}

	select {
	case payload := <-received:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(payload, &raw); err != nil {
			t.Fatalf("config frame not valid JSON: %v", err)
		}
		if string(raw["group_ids"]) != "[]" {
			t.Errorf("expected empty array, got %s", raw["group_ids"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for config frame")
	}
}

// TestInboundMessageOrder verifies typed messages arrive in strict
// server order.
func TestInboundMessageOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(types.ServerMessage{Type: types.MsgStatus, Message: types.StatusReady})
		conn.WriteJSON(types.ServerMessage{Type: types.MsgFrameData, Boxes: []types.DetectionBox{{Label: "a"}}})
		conn.WriteJSON(types.ServerMessage{Type: types.MsgMatch, Student: &types.MatchedStudent{ID: 1}})
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	wantTypes := []string{types.MsgStatus, types.MsgFrameData, types.MsgMatch}
	for i, want := range wantTypes {
		select {
		case msg := <-tr.Messages():
			if msg.Type != want {
				t.Errorf("message %d: expected type %q, got %q", i, want, msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

// TestMalformedInboundIgnored verifies unparseable payloads are skipped
// without ending the stream.
func TestMalformedInboundIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		conn.WriteJSON(types.ServerMessage{Type: types.MsgStatus, Message: types.StatusReady})
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	select {
	case msg := <-tr.Messages():
		if msg.Type != types.MsgStatus {
			t.Errorf("expected the valid message after the malformed one, got %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("stream ended instead of skipping the malformed payload")
	}
}

// TestCloseIdempotent verifies Close can be called repeatedly and that
// sends afterwards fail with ErrClosed.
func TestCloseIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := tr.SendFrame("data:image/jpeg;base64,AAAA"); err != ErrClosed {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not exit after Close")
	}
	if err := tr.Err(); err != nil {
		t.Errorf("client-initiated close should not record an error, got %v", err)
	}
}

// TestServerDisconnectSurfacesError verifies an abnormal server-side
// close terminates the message stream with a non-nil Err.
func TestServerDisconnectSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// drop the connection without a close handshake
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not exit after server disconnect")
	}

	if tr.Err() == nil {
		t.Error("abnormal disconnect should record a transport error")
	}
}
