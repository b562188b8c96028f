package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete attendscan configuration
type Config struct {
	// InstanceID identifies this client (used as MQTT client id and in events)
	InstanceID string `yaml:"instance_id"`

	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Camera  CameraConfig  `yaml:"camera"`
	Store   StoreConfig   `yaml:"store"`
	MQTT    MQTTConfig    `yaml:"mqtt"`

	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
}

// ServerConfig contains recognition-service connection settings
type ServerConfig struct {
	// URL is the websocket endpoint, e.g. wss://ca.avinya.live/ws/start_attendance
	URL string `yaml:"url"`
	// ConnectTimeoutS bounds the websocket dial (default: 10)
	ConnectTimeoutS int `yaml:"connect_timeout_s"`
	// FrameAckTimeoutS errors the session after this many seconds of server
	// silence while scanning. 0 disables the check.
	FrameAckTimeoutS int `yaml:"frame_ack_timeout_s"`
}

// CaptureConfig contains the capture-loop settings
type CaptureConfig struct {
	// IntervalMS is the tick period of the capture scheduler (default: 500)
	IntervalMS int `yaml:"interval_ms"`
	// TargetWidth is the width frames are resized to before sending (default: 500)
	TargetWidth int `yaml:"target_width"`
	// JPEGQuality is the lossy quality factor 1-100 (default: 70)
	JPEGQuality int `yaml:"jpeg_quality"`
}

// CameraConfig contains camera device settings
type CameraConfig struct {
	// Device is the video device, e.g. /dev/video0
	Device string `yaml:"device"`
	// Resolution is 480p, 720p or 1080p
	Resolution string `yaml:"resolution"`
	// FPS is the device frame rate (default: 10)
	FPS int `yaml:"fps"`
	// Mock replaces the device with a synthetic source (testing without hardware)
	Mock bool `yaml:"mock"`
}

// StoreConfig contains the attendance database settings
type StoreConfig struct {
	// Path is the sqlite database file (default: ./attendance.db)
	Path string `yaml:"path"`
}

// MQTTConfig contains optional event-export settings. An empty broker
// disables the exporter.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Matches string `yaml:"matches"`
	Session string `yaml:"session"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConnectTimeout returns the websocket dial timeout
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeoutS) * time.Second
}

// FrameAckTimeout returns the server-silence timeout (0 = disabled)
func (c *Config) FrameAckTimeout() time.Duration {
	return time.Duration(c.Server.FrameAckTimeoutS) * time.Second
}

// CaptureInterval returns the capture scheduler tick period
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutS == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
