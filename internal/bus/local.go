package bus

import (
	"context"
	"sync"
)

// Local is an in-process broadcast bus: every subscriber of a topic
// receives every message published to it, best-effort. It backs unit tests
// for the rest of the pipeline and the in-process wiring between the
// producer and consumer loops in integration tests.
//
// Grounded on the teacher's Stream: a mutex-guarded subscriber map plus a
// per-subscriber buffered channel, stripped of the sequence log, ack
// bookkeeping, and retention pruning a durable stream needs.
type Local struct {
	mu     sync.Mutex
	topics map[string]map[*subscriberHandle]chan Message
	buffer int
	closed bool
}

type subscriberHandle struct{}

// NewLocal constructs an in-process bus. buffer sets the per-subscriber
// channel capacity; values <= 0 default to 32.
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 32
	}
	return &Local{topics: make(map[string]map[*subscriberHandle]chan Message), buffer: buffer}
}

// Publish delivers payload to every current subscriber of topic. A
// subscriber whose channel is full is skipped and counts toward the
// aggregate Dropped outcome only if every subscriber was skipped (topics
// with zero subscribers still report Delivered, mirroring "nobody home" not
// being an error).
func (b *Local) Publish(ctx context.Context, topic string, payload []byte) (Outcome, error) {
	if topic == "" {
		return Dropped, ErrNoTopic
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Dropped, ErrClosed
	}
	subs := b.topics[topic]
	chans := make([]chan Message, 0, len(subs))
	for _, ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	if len(chans) == 0 {
		return Delivered, nil
	}

	msg := Message{Topic: topic, Payload: payload}
	delivered := false
	for _, ch := range chans {
		select {
		case ch <- msg:
			delivered = true
		default:
		}
	}
	if !delivered {
		return Dropped, nil
	}
	return Delivered, nil
}

// Subscribe attaches a new subscriber to topic.
func (b *Local) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrNoTopic
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	handle := &subscriberHandle{}
	ch := make(chan Message, b.buffer)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriberHandle]chan Message)
	}
	b.topics[topic][handle] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs := b.topics[topic]; subs != nil {
			if existing, ok := subs[handle]; ok {
				delete(subs, handle)
				close(existing)
			}
		}
		b.mu.Unlock()
	}
	return NewSubscription(topic, ch, cancel), nil
}

// Close shuts down every subscription and rejects further publishes.
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.topics = nil
	return nil
}
