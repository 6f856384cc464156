// Package natsbus implements a broadcast bus backend over NATS core
// pub/sub. Like wsbus, redisbus and tcpbus it is selected through busconn
// (BUS_BACKEND=nats) and then carries the frame and result contracts.
package natsbus

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"ivis-core/internal/bus"
)

// Bus adapts a *nats.Conn to bus.PubSub.
type Bus struct {
	conn *nats.Conn
}

// New wraps an already-connected NATS client.
func New(conn *nats.Conn) *Bus {
	return &Bus{conn: conn}
}

// Connect dials a NATS server at url and wraps the resulting connection.
func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Publish sends payload on the NATS subject named topic. NATS core is
// fire-and-forget: Delivered here only means the local client accepted the
// message for delivery, not that a subscriber received it, matching the
// bus's at-most-once contract.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	if topic == "" {
		return bus.Dropped, bus.ErrNoTopic
	}
	if err := b.conn.Publish(topic, payload); err != nil {
		return bus.Dropped, err
	}
	return bus.Delivered, nil
}

// Subscribe opens a NATS core subscription on topic and forwards every
// message to the returned Subscription's channel.
func (b *Bus) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	if topic == "" {
		return nil, bus.ErrNoTopic
	}
	ch := make(chan bus.Message, 64)
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		select {
		case ch <- bus.Message{Topic: topic, Payload: msg.Data}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	return bus.NewSubscription(topic, ch, func() {
		_ = sub.Unsubscribe()
		close(ch)
	}), nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Bus) Close() error {
	if b.conn == nil {
		return errors.New("natsbus: nil connection")
	}
	b.conn.Close()
	return nil
}
