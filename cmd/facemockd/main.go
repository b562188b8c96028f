// facemockd is a development stand-in for the face-recognition service.
//
// It speaks the same websocket protocol as the real service: the client
// connects to /ws/start_attendance, sends a JSON config frame with the
// roster scope, receives {"type":"status","message":"ready"}, and then
// streams data-URI frames. The mock answers every frame with a
// frame_data overlay and periodically asserts scripted matches —
// repeating them on purpose so clients can be checked for idempotent
// roster accumulation.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

var upgrader = websocket.Upgrader{
	// development tool: accept any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// scripted students asserted during a session
var roster = []types.MatchedStudent{
	{ID: 1, Name: "Asha Verma", RollNumber: "101"},
	{ID: 2, Name: "Rohan Mehta", RollNumber: "102"},
	{ID: 3, Name: "Priya Nair", RollNumber: "103"},
}

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	readyDelay := flag.Duration("ready-delay", 300*time.Millisecond, "Delay before sending the ready status")
	matchEvery := flag.Int("match-every", 4, "Assert a match every N frames")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.GET("/ws/start_attendance", func(c *gin.Context) {
		handleSession(c, *readyDelay, *matchEvery)
	})

	slog.Info("facemockd listening", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// handleSession runs one mock recognition session
func handleSession(c *gin.Context, readyDelay time.Duration, matchEvery int) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// first frame must be the session config
	var cfg types.SessionConfig
	if err := conn.ReadJSON(&cfg); err != nil {
		slog.Warn("failed to read session config", "error", err)
		return
	}
	slog.Info("session started", "group_ids", cfg.GroupIDs, "remote", c.Request.RemoteAddr)

	// simulate per-session model warmup before signalling ready
	time.Sleep(readyDelay)
	if err := conn.WriteJSON(types.ServerMessage{
		Type:    types.MsgStatus,
		Message: types.StatusReady,
	}); err != nil {
		return
	}

	frames := 0
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("session ended", "frames", frames, "error", err)
			return
		}
		if msgType != websocket.TextMessage || !strings.HasPrefix(string(payload), "data:image/jpeg;base64,") {
			slog.Debug("ignoring non-frame payload", "size", len(payload))
			continue
		}
		frames++

		// every frame gets an overlay; color alternates so clients can
		// exercise both match and unknown box styles
		box := types.DetectionBox{
			Box:   [4]int{120, 80, 260, 240},
			Label: "face",
			Color: "red",
		}
		if frames%2 == 0 {
			box.Color = "green"
			if matchEvery > 0 {
				box.Label = roster[(frames/matchEvery)%len(roster)].Name
			}
		}
		if err := conn.WriteJSON(types.ServerMessage{
			Type:  types.MsgFrameData,
			Boxes: []types.DetectionBox{box},
		}); err != nil {
			return
		}

		// assert a match periodically; deliberately repeat each student
		// at least twice to exercise client-side dedup
		if matchEvery > 0 && frames%matchEvery == 0 {
			student := roster[(frames/matchEvery/2)%len(roster)]
			if err := conn.WriteJSON(types.ServerMessage{
				Type:    types.MsgMatch,
				Student: &student,
			}); err != nil {
				return
			}
			slog.Debug("asserted match", "student", student.Name, "frame", frames)
		}
	}
}
