package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topicA Topic = "session-a"
const topicB Topic = "session-b"

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Envelope, 1)
	unsub := bus.Subscribe(topicA, func(env Envelope) {
		received <- env
	})
	defer unsub()

	require.NoError(t, bus.Publish(topicA, "payload"))

	select {
	case env := <-received:
		assert.Equal(t, topicA, env.Topic)
		assert.NotEmpty(t, env.UUID)
		var s string
		require.NoError(t, env.Decode(&s))
		assert.Equal(t, "payload", s)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for envelope")
	}
}

func TestBus_PublishWaitsForSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(topicA, func(env Envelope) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	require.NoError(t, bus.Publish(topicA, 1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []int
	unsub := bus.Subscribe(topicA, func(env Envelope) {
		var n int
		if err := env.Decode(&n); err == nil {
			mu.Lock()
			received = append(received, n)
			mu.Unlock()
		}
	})
	defer unsub()

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(topicA, i))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 50)
	for i, v := range received {
		assert.Equal(t, i, v)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(topicA, func(env Envelope) {
		atomic.AddInt32(&count, 1)
	})

	require.NoError(t, bus.Publish(topicA, nil))
	require.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.Equal(t, 1, bus.Subscribers(topicA))

	unsub()
	unsub()

	require.NoError(t, bus.Publish(topicA, nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.Equal(t, 0, bus.Subscribers(topicA))
}

func TestBus_TopicFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var aCount, bCount int32
	defer bus.Subscribe(topicA, func(env Envelope) { atomic.AddInt32(&aCount, 1) })()
	defer bus.Subscribe(topicB, func(env Envelope) { atomic.AddInt32(&bCount, 1) })()

	require.NoError(t, bus.Publish(topicA, nil))
	require.NoError(t, bus.Publish(topicA, nil))
	require.NoError(t, bus.Publish(topicB, nil))

	assert.Equal(t, int32(2), atomic.LoadInt32(&aCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bCount))
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	assert.NoError(t, bus.Publish(topicA, "nobody"))
}

func TestBus_EncodeError(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	assert.Error(t, bus.Publish(topicA, make(chan int)))
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()

	var count int32
	unsubA := bus.Subscribe(topicA, func(env Envelope) { atomic.AddInt32(&count, 1) })

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(topicA, nil), ErrBusClosed)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
	unsubA()

	unsub := bus.Subscribe(topicA, func(env Envelope) {})
	unsub()
	assert.Equal(t, 0, bus.Subscribers(topicA))
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(topicA, func(env Envelope) {})
			defer unsub()

			for j := 0; j < 10; j++ {
				assert.NoError(t, bus.Publish(topicA, j))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Subscribers(topicA))
}
