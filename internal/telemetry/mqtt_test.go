package telemetry

import (
	"encoding/json"
	"sync"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/util"
)

type doneToken struct {
	mqtt.Token
}

func (doneToken) Wait() bool   { return true }
func (doneToken) Error() error { return nil }

type published struct {
	topic string
	body  map[string]interface{}
}

// fakeClient records publishes. Methods the publisher does not call are
// left to the embedded nil interface.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	messages  []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]interface{}
	_ = json.Unmarshal(payload.([]byte), &body)
	c.mu.Lock()
	c.messages = append(c.messages, published{topic: topic, body: body})
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.topic)
	}
	return out
}

func newTestPublisher(connected bool) (*MQTTPublisher, *fakeClient, *events.EventBus) {
	bus := events.NewEventBus()
	client := &fakeClient{connected: connected}
	cfg := config.MQTTConfig{Enabled: true, TopicPrefix: "bots/one"}
	h := newMQTTPublisher(cfg, bus, client, util.SystemInfo{Hostname: "host"})
	h.subscribeEvents()
	return h, client, bus
}

func TestMQTTPublishesDecodedEvents(t *testing.T) {
	_, client, bus := newTestPublisher(true)

	bus.OnOpen()
	bus.OnKill(3, "victim")
	bus.OnDeath(4, "killer")
	bus.OnMapConfig(1, 100, 200)
	bus.OnLeaderboard(events.Leaderboard{Entries: []events.LeaderboardEntry{{ID: 1, Score: 2}}})

	assert.Equal(t, []string{
		"bots/one/status",
		"bots/one/kill",
		"bots/one/death",
		"bots/one/map",
		"bots/one/leaderboard",
	}, client.topics())

	kill := client.messages[1].body
	assert.Equal(t, "host", kill["hostname"])
	assert.Equal(t, "flailbot", kill["app"])
	assert.NotEmpty(t, kill["timestamp"])
	payload, ok := kill["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "victim", payload["nick"])
	assert.Equal(t, 3.0, payload["id"])
}

func TestMQTTKingOnlyOnChange(t *testing.T) {
	_, client, bus := newTestPublisher(true)

	bus.OnKing(7, 1, 1)
	bus.OnKing(7, 2, 2)
	bus.OnKing(8, 2, 2)
	bus.OnKing(7, 0, 0)

	assert.Len(t, client.topics(), 3)
}

func TestMQTTSkipsWhenDisconnected(t *testing.T) {
	h, client, bus := newTestPublisher(false)

	bus.OnKill(1, "a")
	h.PublishShutdown()

	assert.Empty(t, client.topics())
}

func TestNewMQTTPublisherDisabled(t *testing.T) {
	_, err := NewMQTTPublisher(config.MQTTConfig{}, events.NewEventBus())
	assert.Error(t, err)
}

func TestMQTTHeartbeatAndShutdown(t *testing.T) {
	h, client, _ := newTestPublisher(true)

	h.PublishHeartbeat(map[string]interface{}{"frames": 10})
	h.PublishShutdown()

	require.Equal(t, []string{"bots/one/heartbeat", "bots/one/status"}, client.topics())
	payload, ok := client.messages[0].body["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 10.0, payload["frames"])
}
