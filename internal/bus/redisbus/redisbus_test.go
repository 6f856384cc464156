package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ivis-core/internal/bus"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "ivis-test")
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscribe(ctx, "frames")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	outcome, err := b.Publish(ctx, "frames", []byte("hello"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != bus.Delivered {
		t.Fatalf("expected Delivered, got %v", outcome)
	}

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != "hello" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSubscribeRejectsEmptyTopic(t *testing.T) {
	b := newTestBus(t)
	if _, err := b.Subscribe(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestPublishRejectsEmptyTopic(t *testing.T) {
	b := newTestBus(t)
	if _, err := b.Publish(context.Background(), "", []byte("x")); err == nil {
		t.Fatal("expected error for empty topic")
	}
}
