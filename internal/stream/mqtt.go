package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/models"
)

const (
	mqttQoS          = 0
	mqttQueueSize    = 64
	mqttPublishWait  = 5 * time.Second
	mqttConnectWait  = 10 * time.Second
	mqttQuiesceMilli = 250
)

// MQTTClient is the part of mqtt.Client the publisher needs.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// ConnectMQTT connects to broker and waits for the connection to be acknowledged.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectWait).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	log.WithField("broker", broker).Info("Connected to MQTT broker")
	return client, nil
}

// Topic returns the topic snapshots of userID are published on.
func Topic(prefix, userID string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + userID + "/tracking"
}

type mqttMessage struct {
	topic   string
	payload []byte
}

// MQTTPublisher publishes snapshots from a background goroutine so callers never wait on the broker.
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	queue  chan mqttMessage

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewMQTTPublisher starts a publisher writing to client under prefix.
func NewMQTTPublisher(client MQTTClient, prefix string) *MQTTPublisher {
	p := &MQTTPublisher{
		client: client,
		prefix: prefix,
		queue:  make(chan mqttMessage, mqttQueueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues session. When the queue is full the snapshot is dropped.
func (p *MQTTPublisher) Publish(userID string, session models.TrackingSession) {
	payload, err := json.Marshal(session)
	if err != nil {
		log.WithError(err).Error("Failed to encode snapshot")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- mqttMessage{topic: Topic(p.prefix, userID), payload: payload}:
	default:
		log.WithField("user_id", userID).Warn("MQTT queue full, dropped snapshot")
	}
}

func (p *MQTTPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		token := p.client.Publish(msg.topic, mqttQoS, false, msg.payload)
		if !token.WaitTimeout(mqttPublishWait) {
			log.WithField("topic", msg.topic).Warn("MQTT publish timed out")
			continue
		}
		if err := token.Error(); err != nil {
			log.WithError(err).WithField("topic", msg.topic).Warn("MQTT publish failed")
		}
	}
}

// Close drains queued snapshots and disconnects the client.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	p.client.Disconnect(mqttQuiesceMilli)
	log.Info("MQTT publisher closed")
}
