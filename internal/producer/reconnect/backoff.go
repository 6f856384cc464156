// Package reconnect implements the producer's exponential backoff-with-
// jitter policy for re-establishing a live source connection after a
// frozen-stream trip or a source read failure.
package reconnect

import (
	"math/rand"
	"time"
)

// Config bounds the backoff schedule.
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Factor     float64
	Jitter     float64
	MaxRetries int
}

// Backoff computes successive reconnect delays: delay_k = min(max, min*factor^k)
// perturbed by uniform ±jitter·delay_k, aborting once attempts exceed MaxRetries.
type Backoff struct {
	cfg     Config
	attempt int
	rand    *rand.Rand
}

// New constructs a Backoff with sane defaults for any zero-valued field.
// MaxRetries of 0 means unbounded retries.
func New(cfg Config) *Backoff {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 2.0
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{cfg: cfg, rand: rand.New(rand.NewSource(1))}
}

// WithRand overrides the jitter source; used by tests for determinism.
func (b *Backoff) WithRand(r *rand.Rand) {
	if b != nil && r != nil {
		b.rand = r
	}
}

// Next returns the delay for the next reconnect attempt and whether retries
// are exhausted. When exhausted is true, the delay is zero and the caller
// should abort reconnecting entirely.
func (b *Backoff) Next() (delay time.Duration, exhausted bool) {
	b.attempt++
	if b.cfg.MaxRetries > 0 && b.attempt > b.cfg.MaxRetries {
		return 0, true
	}
	base := float64(b.cfg.MinDelay) * pow(b.cfg.Factor, b.attempt-1)
	if base > float64(b.cfg.MaxDelay) {
		base = float64(b.cfg.MaxDelay)
	}
	jitterSpan := base * b.cfg.Jitter
	perturbed := base + (b.rand.Float64()*2-1)*jitterSpan
	if perturbed < 0 {
		perturbed = 0
	}
	return time.Duration(perturbed), false
}

// Reset clears the attempt counter, used after a successful reconnect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt reports the number of Next calls since construction or the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
