package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/banshee-data/pulse.monitor/internal/beatbus"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher forwards beats from the bus to a subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// ConnectNATS connects to url, reconnecting forever in the background.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("pulsemon"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// PublishBeat sends b as JSON.
func (p *NATSPublisher) PublishBeat(b beatbus.Beat) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

// Run forwards beats until ctx is done or the bus closes.
func (p *NATSPublisher) Run(ctx context.Context, bus *beatbus.Bus) error {
	id, beats := bus.Subscribe(64)
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-beats:
			if !ok {
				return nil
			}
			if err := p.PublishBeat(b); err != nil {
				monitoring.Logf("nats: publishing beat %d: %v", b.Seq, err)
			}
		}
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
