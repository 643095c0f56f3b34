// Package emitter publishes pipeline telemetry over MQTT. Telemetry is a
// side channel: a broker outage never blocks or fails the frame pipeline,
// it only drops stats messages.
package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hetk987/Dynamic-Event-Capture/internal/config"
	"github.com/hetk987/Dynamic-Event-Capture/internal/pipeline"
)

// MQTTEmitter publishes pipeline stats and health messages to an MQTT broker.
type MQTTEmitter struct {
	cfg    *config.Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter for the given configuration.
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect establishes the broker connection with auto-reconnect enabled.
// A failed first connect is returned as an error; later drops are handled
// by the paho reconnect loop and only logged.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
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
			"client_id", e.cfg.InstanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// telemetryMessage is the stats payload published on the telemetry topic.
type telemetryMessage struct {
	InstanceID string         `json:"instance_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Pipeline   pipeline.Stats `json:"pipeline"`
}

// PublishStats publishes one pipeline stats snapshot.
func (e *MQTTEmitter) PublishStats(stats pipeline.Stats) error {
	payload, err := json.Marshal(telemetryMessage{
		InstanceID: e.cfg.InstanceID,
		Timestamp:  time.Now().UTC(),
		Pipeline:   stats,
	})
	if err != nil {
		return fmt.Errorf("emitter: marshal stats: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Telemetry, payload)
}

// healthMessage is the liveness payload published on the health topic.
type healthMessage struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

// PublishHealth publishes a liveness message ("running", "stopping").
func (e *MQTTEmitter) PublishHealth(status string) error {
	payload, err := json.Marshal(healthMessage{
		InstanceID: e.cfg.InstanceID,
		Timestamp:  time.Now().UTC(),
		Status:     status,
	})
	if err != nil {
		return fmt.Errorf("emitter: marshal health: %w", err)
	}
	return e.publish(e.cfg.MQTT.Topics.Health, payload)
}

func (e *MQTTEmitter) publish(topic string, payload []byte) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	token := e.client.Publish(topic, e.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("emitter: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("emitter: publish on %s failed: %w", topic, err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("telemetry published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection with a short grace period.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats returns emitter counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}
