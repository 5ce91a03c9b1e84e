// Package telemetry exports decode metrics to Prometheus and publishes
// decoded game events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/util"
)

// MQTT topic suffixes, published under the configured prefix.
const (
	TopicStatus      = "status"
	TopicKill        = "kill"
	TopicDeath       = "death"
	TopicKing        = "king"
	TopicLeaderboard = "leaderboard"
	TopicMap         = "map"
	TopicHeartbeat   = "heartbeat"
)

// MQTTPublisher forwards session, kill feed, king, leaderboard and map
// events from the bus to an MQTT broker.
type MQTTPublisher struct {
	mu sync.Mutex

	cfg    config.MQTTConfig
	bus    *events.EventBus
	client mqtt.Client
	logger zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}

	lastKing uint16
}

// NewMQTTPublisher creates a publisher for the configured broker.
func NewMQTTPublisher(cfg config.MQTTConfig, bus *events.EventBus) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s", util.AppName, sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return newMQTTPublisher(cfg, bus, mqtt.NewClient(opts), sysInfo), nil
}

func newMQTTPublisher(cfg config.MQTTConfig, bus *events.EventBus, client mqtt.Client, sysInfo util.SystemInfo) *MQTTPublisher {
	return &MQTTPublisher{
		cfg:    cfg,
		bus:    bus,
		client: client,
		logger: log.With().Str("component", "mqtt").Logger(),
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"platform": sysInfo.Platform,
			"app":      util.AppName,
		},
	}
}

// Start connects to the broker, subscribes to the bus and blocks until ctx
// is cancelled.
func (h *MQTTPublisher) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTPublisher) subscribeEvents() {
	h.bus.Subscribe(events.EventOpen, "mqtt.open", h.onStatus)
	h.bus.Subscribe(events.EventClose, "mqtt.close", h.onStatus)
	h.bus.Subscribe(events.EventEnterGame, "mqtt.enterGame", h.onStatus)
	h.bus.Subscribe(events.EventKill, "mqtt.kill", h.onKill)
	h.bus.Subscribe(events.EventDeath, "mqtt.death", h.onDeath)
	h.bus.Subscribe(events.EventKing, "mqtt.king", h.onKing)
	h.bus.Subscribe(events.EventLeaderboard, "mqtt.leaderboard", h.onLeaderboard)
	h.bus.Subscribe(events.EventMapConfig, "mqtt.map", h.onMap)
}

func (h *MQTTPublisher) topic(name string) string {
	if h.cfg.TopicPrefix == "" {
		return name
	}
	return h.cfg.TopicPrefix + "/" + name
}

// publish sends a JSON message to an MQTT topic without waiting for the
// broker.
func (h *MQTTPublisher) publish(name string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	topic := h.topic(name)
	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTPublisher) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// Event handlers

func (h *MQTTPublisher) onStatus(ctx context.Context, event events.Event) error {
	h.publish(TopicStatus, map[string]interface{}{
		"event":   string(event.Type),
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTPublisher) onKill(ctx context.Context, event events.Event) error {
	h.publish(TopicKill, event.Payload)
	return nil
}

func (h *MQTTPublisher) onDeath(ctx context.Context, event events.Event) error {
	h.publish(TopicDeath, event.Payload)
	return nil
}

// onKing publishes only when the crown changes hands; the king record
// repeats in every entity frame.
func (h *MQTTPublisher) onKing(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.KingPayload)
	if !ok {
		return fmt.Errorf("unexpected king payload %T", event.Payload)
	}

	h.mu.Lock()
	changed := p.ID != h.lastKing
	h.lastKing = p.ID
	h.mu.Unlock()

	if changed {
		h.publish(TopicKing, p)
	}
	return nil
}

func (h *MQTTPublisher) onLeaderboard(ctx context.Context, event events.Event) error {
	h.publish(TopicLeaderboard, event.Payload)
	return nil
}

func (h *MQTTPublisher) onMap(ctx context.Context, event events.Event) error {
	h.publish(TopicMap, event.Payload)
	return nil
}

// PublishHeartbeat sends a periodic liveness message.
func (h *MQTTPublisher) PublishHeartbeat(payload interface{}) {
	h.publish(TopicHeartbeat, payload)
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTPublisher) PublishShutdown() {
	h.publish(TopicStatus, map[string]interface{}{
		"event": "shutdown",
	})
}
