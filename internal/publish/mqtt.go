// Package publish forwards measurements off the device: finished HRV
// results to an MQTT broker and live beats to NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/banshee-data/pulse.monitor/internal/hrv"
)

// DialTimeout bounds the broker connection.
const DialTimeout = 5 * time.Second

// mqttClient is the part of *paho.Client the publisher uses.
type mqttClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(d *paho.Disconnect) error
}

// ResultMessage is the MQTT payload for one analysis.
type ResultMessage struct {
	ID          string     `json:"id"`
	PublishedAt time.Time  `json:"published_at"`
	Result      hrv.Result `json:"result"`
}

// MQTTPublisher publishes HRV results on a topic with QoS 1.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	now    func() time.Time
}

// DialMQTT connects to broker (host:port) with a fresh client ID.
func DialMQTT(ctx context.Context, broker, topic string) (*MQTTPublisher, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dialing mqtt broker %s: %w", broker, err)
	}

	clientID := "pulsemon-" + uuid.NewString()
	c := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})
	ack, err := c.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", broker, err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("mqtt broker %s refused connection: reason %d", broker, ack.ReasonCode)
	}
	return newMQTTPublisher(c, topic), nil
}

func newMQTTPublisher(c mqttClient, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: c, topic: topic, now: time.Now}
}

// PublishResult sends r as JSON.
func (p *MQTTPublisher) PublishResult(ctx context.Context, r hrv.Result) error {
	payload, err := json.Marshal(ResultMessage{
		ID:          uuid.NewString(),
		PublishedAt: p.now().UTC(),
		Result:      r,
	})
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if _, err := p.client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   p.topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
