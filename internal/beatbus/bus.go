// Package beatbus fans detected heartbeats out to the optional publishers
// (NATS, the gRPC stream) without letting a slow consumer hold up the
// measurement loop.
package beatbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode names the session that produced a beat.
type Mode string

const (
	ModeHeartRate Mode = "heart_rate"
	ModeHRV       Mode = "hrv"
)

// Beat is one detected inter-beat interval.
type Beat struct {
	Seq        uint64    `json:"seq"`
	At         time.Time `json:"at"`
	IntervalMs int       `json:"interval_ms"`
	Mode       Mode      `json:"mode"`
}

// Bus delivers beats to subscribers. Publish never blocks; a full subscriber
// misses the beat and the drop is counted.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Beat
	nextID int
	closed bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Beat)}
}

// Publish stamps b with the next sequence number and sends it to every
// subscriber. It returns the stamped beat.
func (b *Bus) Publish(beat Beat) Beat {
	beat.Seq = b.seq.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return beat
	}
	for _, ch := range b.subs {
		select {
		case ch <- beat:
		default:
			b.dropped.Add(1)
		}
	}
	return beat
}

// Subscribe returns a channel receiving beats and an ID for Unsubscribe. The
// channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe(buffer int) (int, <-chan Beat) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Beat, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return -1, ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Close closes every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
