// Package emitter publishes finished frame analyses to an MQTT broker.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kiranshivaraju/bovinoia/internal/config"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 2 * time.Second
)

// client is the subset of mqtt.Client the emitter uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTEmitter publishes terminal frames to <topic>/<status>.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter. Call Connect before publishing.
func NewMQTTEmitter(cfg config.MQTTConfig) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client reconnects on its own
// after a connection loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.Disconnect(0)
		return ctx.Err()
	case <-time.After(5 * time.Second):
		c.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.client = c
	return nil
}

// FrameUpdated publishes terminal frames. Failures are logged and counted.
func (e *MQTTEmitter) FrameUpdated(_ context.Context, frame models.Frame) {
	if !frame.IsTerminal() {
		return
	}
	if err := e.Publish(frame); err != nil {
		slog.Warn("failed to publish frame", "frame_id", frame.ID, "error", err)
	}
}

// Publish sends the frame to <topic>/<status> with QoS 1.
func (e *MQTTEmitter) Publish(frame models.Frame) error {
	if e.client == nil || !e.client.IsConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := Encode(frame, e.cfg.Encoding)
	if err != nil {
		e.countError()
		return err
	}

	topic := fmt.Sprintf("%s/%s", strings.TrimSuffix(e.cfg.Topic, "/"), frame.Status)
	token := e.client.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("frame published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.client != nil && e.client.IsConnected(),
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Encode serializes the frame as JSON or MessagePack. MessagePack keys follow
// the JSON field names.
func Encode(frame models.Frame, encoding string) ([]byte, error) {
	switch encoding {
	case "", "json":
		return json.Marshal(frame)
	case "msgpack":
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		enc.UseCompactInts(true)
		if err := enc.Encode(frame); err != nil {
			return nil, fmt.Errorf("failed to marshal msgpack frame: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
