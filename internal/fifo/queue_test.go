package fifo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 3; i++ {
		require.True(t, q.Put(i))
	}
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Get()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.Get()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestQueueOverflowKeepsUnread(t *testing.T) {
	q := New[uint16](2)
	assert.True(t, q.Put(10))
	assert.True(t, q.Put(20))
	assert.False(t, q.Put(30), "full queue must reject the new value")
	assert.Equal(t, uint64(1), q.Dropped())

	v, _ := q.Get()
	assert.Equal(t, uint16(10), v)
	v, _ = q.Get()
	assert.Equal(t, uint16(20), v)
}

func TestQueueWrapAround(t *testing.T) {
	q := New[int](3)
	for i := 0; i < 10; i++ {
		require.True(t, q.Put(i))
		v, ok := q.Get()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueueDrain(t *testing.T) {
	q := New[int](ADCQueueSize)
	for i := 0; i < 42; i++ {
		q.Put(i)
	}
	assert.Equal(t, 42, q.Drain())
	assert.False(t, q.HasData())
	assert.Equal(t, 0, q.Drain())
}

func TestQueueMinimumCapacity(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, 1, q.Cap())
}

func TestQueueConcurrentProducer(t *testing.T) {
	const n = 10000
	q := New[int](64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if q.Put(i) {
				i++
			}
		}
	}()

	next := 0
	for next < n {
		if v, ok := q.Get(); ok {
			if v != next {
				t.Fatalf("got %d, want %d", v, next)
			}
			next++
		}
	}
	wg.Wait()
}
