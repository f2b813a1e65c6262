// Package wlan reports whether the cloud analysis service is reachable.
package wlan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// ErrUnreachable is returned when the probe host cannot be reached.
var ErrUnreachable = errors.New("wlan: analysis host unreachable")

// DefaultProbeTimeout bounds one connection attempt.
const DefaultProbeTimeout = 750 * time.Millisecond

// Link is the network uplink.
type Link interface {
	// Connect makes one connection attempt.
	Connect(ctx context.Context) error
	Connected() bool
}

// DialLink treats the uplink as connected when a TCP connection to the
// analysis host succeeds.
type DialLink struct {
	addr    string
	timeout time.Duration
	dial    func(ctx context.Context, network, address string) (net.Conn, error)

	connected atomic.Bool
}

// NewDialLink probes addr (host:port) with the given per-attempt timeout.
func NewDialLink(addr string, timeout time.Duration) *DialLink {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	var d net.Dialer
	return &DialLink{addr: addr, timeout: timeout, dial: d.DialContext}
}

// Addr returns the probed address.
func (l *DialLink) Addr() string { return l.addr }

func (l *DialLink) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conn, err := l.dial(ctx, "tcp", l.addr)
	if err != nil {
		l.connected.Store(false)
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, l.addr, err)
	}
	conn.Close()
	l.connected.Store(true)
	return nil
}

func (l *DialLink) Connected() bool { return l.connected.Load() }

// StaticLink is a Link with a fixed state, for development hosts and tests.
type StaticLink struct {
	Up       bool
	attempts atomic.Int64
}

func (l *StaticLink) Connect(ctx context.Context) error {
	l.attempts.Add(1)
	if !l.Up {
		return ErrUnreachable
	}
	return nil
}

func (l *StaticLink) Connected() bool { return l.Up }

// Attempts returns how many times Connect was called.
func (l *StaticLink) Attempts() int { return int(l.attempts.Load()) }
