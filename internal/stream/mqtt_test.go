package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuel-logistics/internal/models"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                       { return t.complete }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                     { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTTClient struct {
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{complete: true}
}

func (c *fakeMQTTClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeMQTTClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "fuel/alice/tracking", Topic("fuel", "alice"))
	assert.Equal(t, "fuel/alice/tracking", Topic("fuel/", "alice"))
}

func TestMQTTPublisher_PublishesSnapshots(t *testing.T) {
	client := &fakeMQTTClient{}
	publisher := NewMQTTPublisher(client, "fuel")

	publisher.Publish("alice", models.TrackingSession{VehicleID: "truck-1", Ticks: 3, FuelLevelLiters: 4990})
	publisher.Close()

	sent := client.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "fuel/alice/tracking", sent[0].topic)
	assert.Equal(t, byte(0), sent[0].qos)

	var session models.TrackingSession
	require.NoError(t, json.Unmarshal(sent[0].payload, &session))
	assert.Equal(t, 3, session.Ticks)
	assert.Equal(t, 4990.0, session.FuelLevelLiters)
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_FailedPublishKeepsRunning(t *testing.T) {
	client := &fakeMQTTClient{token: &fakeToken{complete: true, err: errors.New("not connected")}}
	publisher := NewMQTTPublisher(client, "fuel")

	publisher.Publish("alice", models.TrackingSession{Ticks: 1})
	publisher.Publish("alice", models.TrackingSession{Ticks: 2})
	publisher.Close()

	assert.Len(t, client.sent(), 2)
}

func TestMQTTPublisher_PublishAfterCloseIsDropped(t *testing.T) {
	client := &fakeMQTTClient{}
	publisher := NewMQTTPublisher(client, "fuel")
	publisher.Close()
	publisher.Close()

	assert.NotPanics(t, func() {
		publisher.Publish("alice", models.TrackingSession{Ticks: 1})
	})
	assert.Empty(t, client.sent())
}
