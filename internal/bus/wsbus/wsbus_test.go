package wsbus

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket/websockettest"

	busauth "ivis-core/internal/bus/auth"
)

func makeTestToken(t *testing.T, secret, subject string) string {
	t.Helper()
	expires := time.Now().Add(time.Minute)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := fmt.Sprintf(`{"sub":"%s","exp":%d,"iat":%d}`, subject, expires.Unix(), expires.Add(-time.Minute).Unix())
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	signingInput := header + "." + encodedPayload
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte(signingInput)); err != nil {
		t.Fatalf("mac write: %v", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return hub, wsURL
}

func TestDialPublishBroadcastsToOtherSubscriber(t *testing.T) {
	_, wsURL := newTestHub(t)
	ctx := context.Background()

	reader, err := Dial(ctx, wsURL, "frames")
	if err != nil {
		t.Fatalf("Dial reader: %v", err)
	}
	defer reader.Close()
	sub, err := reader.Subscribe(ctx, "frames")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	writer, err := Dial(ctx, wsURL, "frames")
	if err != nil {
		t.Fatalf("Dial writer: %v", err)
	}
	defer writer.Close()

	// Give the hub a moment to register both clients before publishing.
	time.Sleep(50 * time.Millisecond)

	if _, err := writer.Publish(ctx, "frames", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != "hello" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func TestDialRejectsTopicMismatch(t *testing.T) {
	_, wsURL := newTestHub(t)
	ctx := context.Background()
	conn, err := Dial(ctx, wsURL, "frames")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Publish(ctx, "results", []byte("x")); err == nil {
		t.Fatal("expected error publishing on mismatched topic")
	}
	if _, err := conn.Subscribe(ctx, "results"); err == nil {
		t.Fatal("expected error subscribing on mismatched topic")
	}
}

func TestHubDisconnectsUnresponsivePeer(t *testing.T) {
	hub, wsURL := newTestHub(t)
	original := pongWait
	pongWait = 100 * time.Millisecond
	t.Cleanup(func() { pongWait = original })

	conn, _, err := websockettest.DialIgnoringPongs(wsURL+"?topic=frames", nil)
	if err != nil {
		t.Fatalf("DialIgnoringPongs: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		count := len(hub.topics["frames"])
		hub.mu.Unlock()
		if count == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected hub to disconnect the unresponsive peer")
}

func TestAuthenticatedHubRejectsMissingToken(t *testing.T) {
	authn, err := busauth.NewHMACAuthenticator("top-secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator: %v", err)
	}
	hub := NewAuthenticatedHub(authn)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	if _, err := Dial(context.Background(), wsURL, "frames"); err == nil {
		t.Fatal("expected Dial without a token to fail against an authenticated hub")
	}

	token := makeTestToken(t, "top-secret", "ingestion-0")
	conn, err := Dial(context.Background(), wsURL, "frames", token)
	if err != nil {
		t.Fatalf("expected Dial with a valid token to succeed, got %v", err)
	}
	conn.Close()
}

func TestHubPublishWithNoClientsDelivers(t *testing.T) {
	hub, _ := newTestHub(t)
	outcome, err := hub.Publish(context.Background(), "frames", []byte("x"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if outcome != "delivered" {
		t.Fatalf("expected delivered outcome, got %v", outcome)
	}
}
