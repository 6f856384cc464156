package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// newTestBus dials the default local NATS server. This backend is exercised
// against a real broker in integration environments; unit test runs without
// one skip rather than fail.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	conn, err := nats.Connect(nats.DefaultURL, nats.Timeout(200*time.Millisecond))
	if err != nil {
		t.Skipf("no local NATS server reachable: %v", err)
	}
	t.Cleanup(conn.Close)
	return New(conn)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)
	sub, err := b.Subscribe(context.Background(), "ivis.feedback.latency")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := b.Publish(context.Background(), "ivis.feedback.latency", []byte("42")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != "42" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSubscribeRejectsEmptyTopic(t *testing.T) {
	b := newTestBus(t)
	if _, err := b.Subscribe(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty topic")
	}
}
