package reconnect

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoffGrowsExponentiallyWithinBounds(t *testing.T) {
	b := New(Config{MinDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2, Jitter: 0})
	b.WithRand(rand.New(rand.NewSource(42)))

	first, exhausted := b.Next()
	if exhausted {
		t.Fatal("expected not exhausted")
	}
	if first != 100*time.Millisecond {
		t.Fatalf("expected first delay 100ms with zero jitter, got %v", first)
	}
	second, _ := b.Next()
	if second != 200*time.Millisecond {
		t.Fatalf("expected second delay 200ms, got %v", second)
	}
	third, _ := b.Next()
	if third != 400*time.Millisecond {
		t.Fatalf("expected third delay 400ms, got %v", third)
	}
	// Subsequent delays clamp at MaxDelay.
	for i := 0; i < 5; i++ {
		b.Next()
	}
	clamped, _ := b.Next()
	if clamped != time.Second {
		t.Fatalf("expected clamp to max delay, got %v", clamped)
	}
}

func TestBackoffExhaustsAfterMaxRetries(t *testing.T) {
	b := New(Config{MaxRetries: 2})
	b.Next()
	b.Next()
	if _, exhausted := b.Next(); !exhausted {
		t.Fatal("expected exhausted after exceeding max retries")
	}
}

func TestBackoffResetClearsAttemptCount(t *testing.T) {
	b := New(Config{MaxRetries: 1})
	b.Next()
	b.Reset()
	if _, exhausted := b.Next(); exhausted {
		t.Fatal("expected reset to allow another attempt")
	}
}

func TestBackoffJitterStaysWithinSpan(t *testing.T) {
	b := New(Config{MinDelay: time.Second, MaxDelay: time.Minute, Factor: 1.0 + 1e-9, Jitter: 0.2})
	b.WithRand(rand.New(rand.NewSource(7)))
	delay, _ := b.Next()
	lo := time.Duration(float64(time.Second) * 0.8)
	hi := time.Duration(float64(time.Second) * 1.2)
	if delay < lo || delay > hi {
		t.Fatalf("expected delay within [%v, %v], got %v", lo, hi, delay)
	}
}
