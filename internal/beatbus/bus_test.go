package beatbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := New()
	_, a := b.Subscribe(4)
	_, c := b.Subscribe(4)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	first := b.Publish(Beat{At: at, IntervalMs: 812, Mode: ModeHeartRate})
	second := b.Publish(Beat{At: at, IntervalMs: 790, Mode: ModeHeartRate})
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	for _, ch := range []<-chan Beat{a, c} {
		got := <-ch
		assert.Equal(t, first, got)
		got = <-ch
		assert.Equal(t, 790, got.IntervalMs)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Beat{IntervalMs: 800})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Equal(t, uint64(4), b.Dropped())
	got := <-ch
	assert.Equal(t, uint64(1), got.Seq)
}

func TestUnsubscribeAndClose(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(0)
	_, other := b.Subscribe(2)
	require.Equal(t, 2, b.Subscribers())

	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	b.Unsubscribe(id)

	b.Close()
	_, ok = <-other
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	b.Close()
	b.Publish(Beat{})
	_, late := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}
