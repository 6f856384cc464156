// Package redisbus implements the bus backend on Redis Streams: Publish is
// XADD, Subscribe reads via XREADGROUP against a per-subscription consumer
// group and XACKs every delivered entry immediately (the bus is
// at-most-once, so there is no redelivery-on-crash semantics to preserve).
//
// Grounded on the go-redis/v9 usage in the pack's video-management-system
// live service (key-per-concern naming, Get/Set/pipeline idioms), adapted
// from key/value storage to the Streams API for a pub/sub topic log.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ivis-core/internal/bus"
)

const (
	payloadField   = "payload"
	maxStreamLen   = 10000
	blockInterval  = 2 * time.Second
	consumerPrefix = "ivis"
)

// Bus adapts a *redis.Client to bus.PubSub using one stream key per topic.
type Bus struct {
	client *redis.Client
	group  string

	mu   sync.Mutex
	subs []*subscription
}

// New constructs a redis-backed bus. group names the consumer group every
// Subscribe call joins. Subscriptions that share a group split the stream's
// entries between them (each entry reaches only one of them); subscriptions
// in different groups each receive every entry.
func New(client *redis.Client, group string) *Bus {
	if group == "" {
		group = consumerPrefix
	}
	return &Bus{client: client, group: group}
}

// Publish appends payload to the stream named topic via XADD, trimming the
// stream to an approximate maximum length so a slow or absent consumer
// group cannot grow it unbounded.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	if topic == "" {
		return bus.Dropped, bus.ErrNoTopic
	}
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
	if err != nil {
		return bus.Dropped, err
	}
	return bus.Delivered, nil
}

type subscription struct {
	bus      *Bus
	topic    string
	consumer string
	ch       chan bus.Message
	cancel   context.CancelFunc
	done     chan struct{}
}

// Subscribe joins the bus's consumer group on topic's stream (creating both
// the stream and the group if they don't yet exist) and starts a goroutine
// that XREADGROUPs new entries, forwards them to the returned
// Subscription's channel, and XACKs them immediately.
func (b *Bus) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	if topic == "" {
		return nil, bus.ErrNoTopic
	}
	err := b.client.XGroupCreateMkStream(ctx, topic, b.group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) && !isBusyGroupErr(err) {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:      b,
		topic:    topic,
		consumer: fmt.Sprintf("%s-%d", consumerPrefix, time.Now().UnixNano()),
		ch:       make(chan bus.Message, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.run(subCtx)

	return bus.NewSubscription(topic, sub.ch, func() {
		cancel()
		<-sub.done
	}), nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		streams, err := s.bus.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.bus.group,
			Consumer: s.consumer,
			Streams:  []string{s.topic, ">"},
			Count:    32,
			Block:    blockInterval,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			continue
		}
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				s.deliver(ctx, entry)
			}
		}
	}
}

func (s *subscription) deliver(ctx context.Context, entry redis.XMessage) {
	raw, ok := entry.Values[payloadField]
	if ok {
		var payload []byte
		switch v := raw.(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		}
		select {
		case s.ch <- bus.Message{Topic: s.topic, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
	s.bus.client.XAck(ctx, s.topic, s.bus.group, entry.ID)
}

// Close releases the underlying *redis.Client.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.cancel()
	}
	return b.client.Close()
}
