package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendscan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
instance_id: classroom-a-tablet
server:
  url: wss://ca.avinya.live/ws/start_attendance
  connect_timeout_s: 5
  frame_ack_timeout_s: 15
capture:
  interval_ms: 250
  target_width: 640
  jpeg_quality: 80
camera:
  device: /dev/video0
  resolution: 720p
  fps: 15
store:
  path: /var/lib/attendscan/attendance.db
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.InstanceID != "classroom-a-tablet" {
		t.Errorf("instance_id: got %q", cfg.InstanceID)
	}
	if cfg.ConnectTimeout() != 5*time.Second {
		t.Errorf("connect timeout: got %s", cfg.ConnectTimeout())
	}
	if cfg.FrameAckTimeout() != 15*time.Second {
		t.Errorf("frame ack timeout: got %s", cfg.FrameAckTimeout())
	}
	if cfg.CaptureInterval() != 250*time.Millisecond {
		t.Errorf("capture interval: got %s", cfg.CaptureInterval())
	}
	if cfg.Camera.FPS != 15 {
		t.Errorf("fps: got %d", cfg.Camera.FPS)
	}

	// topic defaults are derived from the instance id when a broker is set
	if cfg.MQTT.Topics.Matches != "attendance/matches/classroom-a-tablet" {
		t.Errorf("matches topic: got %q", cfg.MQTT.Topics.Matches)
	}
	if cfg.MQTT.Topics.Session != "attendance/session/classroom-a-tablet" {
		t.Errorf("session topic: got %q", cfg.MQTT.Topics.Session)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
instance_id: lab-1
server:
  url: ws://localhost:8900/ws/start_attendance
camera:
  mock: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ConnectTimeoutS != 10 {
		t.Errorf("default connect timeout: got %d", cfg.Server.ConnectTimeoutS)
	}
	if cfg.FrameAckTimeout() != 0 {
		t.Errorf("frame ack should default to disabled, got %s", cfg.FrameAckTimeout())
	}
	if cfg.Capture.IntervalMS != 500 {
		t.Errorf("default interval: got %d", cfg.Capture.IntervalMS)
	}
	if cfg.Capture.TargetWidth != 500 {
		t.Errorf("default target width: got %d", cfg.Capture.TargetWidth)
	}
	if cfg.Capture.JPEGQuality != 70 {
		t.Errorf("default quality: got %d", cfg.Capture.JPEGQuality)
	}
	if cfg.Camera.Resolution != "480p" {
		t.Errorf("default resolution: got %q", cfg.Camera.Resolution)
	}
	if cfg.Camera.FPS != 10 {
		t.Errorf("default fps: got %d", cfg.Camera.FPS)
	}
	if cfg.Store.Path != "./attendance.db" {
		t.Errorf("default store path: got %q", cfg.Store.Path)
	}
	if cfg.ShutdownTimeout() != 5*time.Second {
		t.Errorf("default shutdown timeout: got %s", cfg.ShutdownTimeout())
	}

	// no broker, no derived topics
	if cfg.MQTT.Topics.Matches != "" {
		t.Errorf("topics must stay empty without a broker, got %q", cfg.MQTT.Topics.Matches)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing instance id",
			body: "server:\n  url: ws://x/ws\ncamera:\n  mock: true\n",
			want: "instance_id",
		},
		{
			name: "bad instance id",
			body: "instance_id: Room_A\nserver:\n  url: ws://x/ws\ncamera:\n  mock: true\n",
			want: "instance_id",
		},
		{
			name: "missing server url",
			body: "instance_id: lab-1\ncamera:\n  mock: true\n",
			want: "server.url",
		},
		{
			name: "http url",
			body: "instance_id: lab-1\nserver:\n  url: https://x/ws\ncamera:\n  mock: true\n",
			want: "server.url",
		},
		{
			name: "quality out of range",
			body: "instance_id: lab-1\nserver:\n  url: ws://x/ws\ncapture:\n  jpeg_quality: 101\ncamera:\n  mock: true\n",
			want: "jpeg_quality",
		},
		{
			name: "no device and no mock",
			body: "instance_id: lab-1\nserver:\n  url: ws://x/ws\n",
			want: "camera.device",
		},
		{
			name: "fps too high",
			body: "instance_id: lab-1\nserver:\n  url: ws://x/ws\ncamera:\n  mock: true\n  fps: 120\n",
			want: "fps",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestParseResolution(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
	}{
		{"480p", 640, 480},
		{"720p", 1280, 720},
		{"1080p", 1920, 1080},
		{"4k", 640, 480},
		{"", 640, 480},
	}
	for _, tc := range cases {
		w, h := ParseResolution(tc.in)
		if w != tc.w || h != tc.h {
			t.Errorf("ParseResolution(%q) = %dx%d, want %dx%d", tc.in, w, h, tc.w, tc.h)
		}
	}
}
