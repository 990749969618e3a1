// Package mqttapi bridges an MQTT broker to the engine: command messages
// are applied in arrival order and answered on the ack topic, and status
// snapshots are published periodically.
package mqttapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/roverscan/rovermap/internal/config"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
)

const (
	inboxSize      = 256
	publishTimeout = 5 * time.Second
	submitTimeout  = 10 * time.Second
	statusInterval = time.Second
)

// Engine is the part of the engine the bridge drives.
type Engine interface {
	transport.Commander
	Subscribe(buffer int) (<-chan session.Snapshot, func())
}

// AckMessage is published on the ack topic for every command message.
type AckMessage struct {
	session.Ack
	Command string `json:"command,omitempty"`
}

// StatusMessage is published on the status topic.
type StatusMessage struct {
	SessionID string  `json:"session_id"`
	MapName   string  `json:"map_name,omitempty"`
	Frame     uint64  `json:"frame"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
	Mast      float64 `json:"mast"`
	Odometer  float64 `json:"odometer"`
	Coverage  float64 `json:"coverage"`
	Scanning  bool    `json:"scanning"`
	Status    string  `json:"status"`
}

// NewStatusMessage summarizes a snapshot.
func NewStatusMessage(s session.Snapshot) StatusMessage {
	return StatusMessage{
		SessionID: s.SessionID,
		MapName:   s.MapName,
		Frame:     s.Frame,
		X:         s.Pose.Position.X,
		Y:         s.Pose.Position.Y,
		Heading:   s.Pose.Heading,
		Mast:      s.Pose.MastHeading,
		Odometer:  s.Pose.Odometer,
		Coverage:  s.Coverage,
		Scanning:  s.Scanning,
		Status:    s.Status,
	}
}

// Connect opens a broker connection with automatic reconnects.
func Connect(cfg config.MQTTConfig, log *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("MQTT client connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Error("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Bridge routes broker messages to the engine.
type Bridge struct {
	client mqtt.Client
	engine Engine
	cfg    config.MQTTConfig
	log    *slog.Logger
	inbox  chan []byte
}

// New creates a bridge over a connected client.
func New(client mqtt.Client, e Engine, cfg config.MQTTConfig, log *slog.Logger) *Bridge {
	return &Bridge{
		client: client,
		engine: e,
		cfg:    cfg,
		log:    log.With("transport", "mqtt"),
		inbox:  make(chan []byte, inboxSize),
	}
}

// Run subscribes to the command topic and serves until ctx is done. The
// paho callback only queues payloads; a single worker applies them in
// order so acknowledgements never block the client's router.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Subscribe(b.cfg.CommandTopic, b.cfg.QoS, b.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", b.cfg.CommandTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.cfg.CommandTopic, err)
	}
	b.log.Info("Listening for commands", "topic", b.cfg.CommandTopic)

	go b.publishStatus(ctx)

	for {
		select {
		case <-ctx.Done():
			b.client.Unsubscribe(b.cfg.CommandTopic).WaitTimeout(publishTimeout)
			return nil
		case payload := <-b.inbox:
			b.publish(b.cfg.AckTopic, b.handleMessage(ctx, payload))
		}
	}
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	select {
	case b.inbox <- msg.Payload():
	default:
		b.log.Warn("Command inbox full, dropping message", "topic", msg.Topic())
	}
}

// handleMessage applies one command payload and returns the encoded ack.
func (b *Bridge) handleMessage(ctx context.Context, payload []byte) []byte {
	msg := b.apply(ctx, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("Failed to encode ack", "error", err)
		return nil
	}
	return data
}

func (b *Bridge) apply(ctx context.Context, payload []byte) AckMessage {
	req, err := transport.Decode(payload)
	if err != nil {
		return AckMessage{Ack: transport.FailedAck(err)}
	}
	cmd, err := req.Command(b.engine.Defaults())
	if err != nil {
		return AckMessage{Ack: transport.FailedAck(err)}
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	ack, err := b.engine.Submit(ctx, cmd)
	if err != nil {
		b.log.Warn("Command not applied", "command", cmd.String(), "error", err)
		ack = transport.FailedAck(err)
	}
	return AckMessage{Ack: ack, Command: cmd.String()}
}

// publishStatus publishes the newest snapshot once per interval.
func (b *Bridge) publishStatus(ctx context.Context) {
	if b.cfg.StatusTopic == "" {
		return
	}
	ch, unsubscribe := b.engine.Subscribe(1)
	defer unsubscribe()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var latest *session.Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			latest = &snap
		case <-ticker.C:
			if latest == nil {
				continue
			}
			data, err := json.Marshal(NewStatusMessage(*latest))
			if err != nil {
				b.log.Error("Failed to encode status", "error", err)
				continue
			}
			b.publish(b.cfg.StatusTopic, data)
			latest = nil
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte) {
	if topic == "" || payload == nil {
		return
	}
	token := b.client.Publish(topic, b.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.log.Warn("MQTT publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.log.Error("MQTT publish failed", "topic", topic, "error", err)
	}
}
