// Package emitter optionally publishes session events to an MQTT broker
// so classroom integrations (displays, dashboards) can follow a scan
// live. The exporter is best-effort: publish failures are counted and
// logged, never surfaced to the scan session.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/keshav-25byte/AttendanceApp/internal/config"
	"github.com/keshav-25byte/AttendanceApp/internal/eventbus"
)

// MQTTExporter publishes session events to an MQTT broker
type MQTTExporter struct {
	cfg    *config.Config
	client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// New creates an exporter. Returns nil when no broker is configured;
// callers treat a nil exporter as disabled.
func New(cfg *config.Config) *MQTTExporter {
	if cfg.MQTT.Broker == "" {
		return nil
	}
	return &MQTTExporter{cfg: cfg}
}

// Connect establishes the broker connection
func (e *MQTTExporter) Connect(ctx context.Context) error {
	broker := e.cfg.MQTT.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// Run forwards bus events to the broker until ctx is cancelled or the
// event channel closes. Intended to run in its own goroutine.
func (e *MQTTExporter) Run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case eventbus.KindMatch:
				e.publish(e.cfg.MQTT.Topics.Matches, e.qos("match"), ev)
			case eventbus.KindState, eventbus.KindError:
				e.publish(e.cfg.MQTT.Topics.Session, e.qos("session"), ev)
			}
		}
	}
}

// matchPayload is the wire shape for published match events
type matchPayload struct {
	SessionID  string `json:"session_id"`
	InstanceID string `json:"instance_id"`
	At         string `json:"at"`
	StudentID  int64  `json:"student_id,omitempty"`
	Name       string `json:"name,omitempty"`
	RollNumber string `json:"roll_number,omitempty"`
	State      string `json:"state,omitempty"`
	Error      string `json:"error,omitempty"`
}

// publish sends one event, best-effort
func (e *MQTTExporter) publish(topic string, qos byte, ev eventbus.Event) {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return
	}

	p := matchPayload{
		SessionID:  ev.SessionID,
		InstanceID: e.cfg.InstanceID,
		At:         ev.At.UTC().Format(time.RFC3339),
		State:      ev.State,
		Error:      ev.Err,
	}
	if ev.Student != nil {
		p.StudentID = ev.Student.ID
		p.Name = ev.Student.Name
		p.RollNumber = ev.Student.RollNumber
	}

	payload, err := json.Marshal(p)
	if err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return
	}

	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		slog.Warn("mqtt publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		slog.Warn("mqtt publish failed", "topic", topic, "error", err)
		return
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
}

// Disconnect closes the broker connection
func (e *MQTTExporter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats returns exporter statistics
func (e *MQTTExporter) Stats() (published, errors uint64, connected bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors, e.connected
}

func (e *MQTTExporter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTExporter) qos(eventType string) byte {
	if q, ok := e.cfg.MQTT.QoS[eventType]; ok {
		return q
	}
	return 0
}
