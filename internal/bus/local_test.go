package bus

import (
	"context"
	"testing"
	"time"
)

func TestLocalDeliversToSubscriber(t *testing.T) {
	b := NewLocal(4)
	sub, err := b.Subscribe(context.Background(), "frames")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	outcome, err := b.Publish(context.Background(), "frames", []byte("hello"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("expected Delivered, got %v", outcome)
	}

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != "hello" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestLocalPublishWithNoSubscribersDelivers(t *testing.T) {
	b := NewLocal(4)
	outcome, err := b.Publish(context.Background(), "results", []byte("x"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("expected Delivered for topic with no subscribers, got %v", outcome)
	}
}

func TestLocalPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewLocal(1)
	sub, err := b.Subscribe(context.Background(), "frames")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := b.Publish(context.Background(), "frames", []byte("one")); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	outcome, err := b.Publish(context.Background(), "frames", []byte("two"))
	if err != nil {
		t.Fatalf("Publish 2: %v", err)
	}
	if outcome != Dropped {
		t.Fatalf("expected Dropped once buffer is full, got %v", outcome)
	}
}

func TestLocalRejectsEmptyTopic(t *testing.T) {
	b := NewLocal(4)
	if _, err := b.Publish(context.Background(), "", []byte("x")); err != ErrNoTopic {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}
	if _, err := b.Subscribe(context.Background(), ""); err != ErrNoTopic {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}
}

func TestLocalCloseRejectsFurtherUse(t *testing.T) {
	b := NewLocal(4)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Publish(context.Background(), "frames", []byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := b.Subscribe(context.Background(), "frames"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewLocal(4)
	sub, err := b.Subscribe(context.Background(), "frames")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Close()
	sub.Close()
}
