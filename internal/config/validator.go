package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Server
	if cfg.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if !strings.HasPrefix(cfg.Server.URL, "ws://") && !strings.HasPrefix(cfg.Server.URL, "wss://") {
		return fmt.Errorf("server.url must be a ws:// or wss:// endpoint, got %q", cfg.Server.URL)
	}
	if cfg.Server.ConnectTimeoutS < 0 {
		return fmt.Errorf("server.connect_timeout_s must be >= 0")
	}
	if cfg.Server.ConnectTimeoutS == 0 {
		cfg.Server.ConnectTimeoutS = 10
	}
	if cfg.Server.FrameAckTimeoutS < 0 {
		return fmt.Errorf("server.frame_ack_timeout_s must be >= 0")
	}

	// Capture loop
	if cfg.Capture.IntervalMS < 0 {
		return fmt.Errorf("capture.interval_ms must be >= 0")
	}
	if cfg.Capture.IntervalMS == 0 {
		cfg.Capture.IntervalMS = 500
	}
	if cfg.Capture.TargetWidth == 0 {
		cfg.Capture.TargetWidth = 500
	}
	if cfg.Capture.TargetWidth < 0 {
		return fmt.Errorf("capture.target_width must be > 0")
	}
	if cfg.Capture.JPEGQuality == 0 {
		cfg.Capture.JPEGQuality = 70
	}
	if cfg.Capture.JPEGQuality < 1 || cfg.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be in 1..100")
	}

	// Camera
	if cfg.Camera.Device == "" && !cfg.Camera.Mock {
		return fmt.Errorf("camera.device is required (or set camera.mock: true)")
	}
	if cfg.Camera.Resolution == "" {
		cfg.Camera.Resolution = "480p"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.FPS < 0 || cfg.Camera.FPS > 60 {
		return fmt.Errorf("camera.fps must be in 1..60")
	}

	// Store
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./attendance.db"
	}

	// MQTT (optional; defaults only matter when a broker is set)
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Matches == "" {
			cfg.MQTT.Topics.Matches = fmt.Sprintf("attendance/matches/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Session == "" {
			cfg.MQTT.Topics.Session = fmt.Sprintf("attendance/session/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"match":   1,
				"session": 0,
			}
		}
	}

	return nil
}

// ParseResolution converts a resolution string to width/height.
// Unknown values fall back to 640x480.
func ParseResolution(res string) (width, height int) {
	switch res {
	case "480p":
		return 640, 480
	case "720p":
		return 1280, 720
	case "1080p":
		return 1920, 1080
	default:
		return 640, 480
	}
}
