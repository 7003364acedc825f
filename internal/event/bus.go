package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// Topic addresses a stream of envelopes. Session updates use the session id.
type Topic string

// Envelope is a delivered item: the JSON encoding of a published value.
type Envelope struct {
	Topic   Topic           `json:"topic"`
	UUID    string          `json:"uuid"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Subscriber is a function that receives envelopes. It must not block and
// must not unsubscribe itself.
type Subscriber func(env Envelope)

// Bus fans published values out to subscribers over a watermill GoChannel.
// Publish returns once every subscriber of the topic has handled the
// message, so successive publishes from one goroutine are seen in order.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.Mutex
	counts map[Topic]int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            16,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		counts: make(map[Topic]int),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers a subscriber for a topic. Values published after
// Subscribe returns are delivered. The returned function unsubscribes and
// waits for the delivery goroutine to finish.
func (b *Bus) Subscribe(topic Topic, fn Subscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	ctx, cancel := context.WithCancel(b.ctx)
	msgs, err := b.pubsub.Subscribe(ctx, string(topic))
	if err != nil {
		b.mu.Unlock()
		cancel()
		return func() {}
	}
	b.counts[topic]++
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			fn(Envelope{Topic: topic, UUID: msg.UUID, Payload: json.RawMessage(msg.Payload)})
			msg.Ack()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			b.mu.Lock()
			if b.counts[topic]--; b.counts[topic] <= 0 {
				delete(b.counts, topic)
			}
			b.mu.Unlock()
		})
	}
}

// Publish encodes v as JSON and delivers it to the topic's subscribers,
// blocking until each has handled it.
func (b *Bus) Publish(topic Topic, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(string(topic), msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribers returns the number of subscribers for a topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[topic]
}

// Close ends every subscription and closes the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.counts = make(map[Topic]int)
	b.mu.Unlock()

	b.cancel()
	return b.pubsub.Close()
}
