// Package ratecontrol adapts the ingestion producer's target frame rate to
// the detection consumer's observed processing latency and queue lag, so a
// slow model degrades frame rate gracefully instead of flooding the ring
// buffer with frames nobody can keep up with.
package ratecontrol

import (
	"math"
	"sync"
	"time"
)

// Config bounds the adaptive controller's behaviour.
type Config struct {
	MinFPS        int
	MaxFPS        int
	Safety        float64
	LagThreshold  int
	LagHysteresis float64
}

// Snapshot reports the controller's current state for logging and metrics.
type Snapshot struct {
	TargetFPS      int
	EMALatency     time.Duration
	LastQueueDepth int
}

// AdaptiveController tracks an exponential moving average of inference
// latency and the consumer's reported queue depth, deriving a target frame
// rate that keeps the pipeline from backing up.
type AdaptiveController struct {
	mu sync.Mutex

	minFPS        int
	maxFPS        int
	safety        float64
	lagThreshold  int
	lagHysteresis float64

	initialFPS int
	targetFPS  int
	emaLatency time.Duration
	queueDepth int
	now        func() time.Time
}

const emaAlpha = 0.2

// New constructs an AdaptiveController seeded at initialFPS, clamped to the
// configured bounds.
func New(cfg Config, initialFPS int) *AdaptiveController {
	//1.- Normalise configuration so a zero-value Config still behaves sanely.
	if cfg.MinFPS <= 0 {
		cfg.MinFPS = 1
	}
	if cfg.MaxFPS <= 0 || cfg.MaxFPS < cfg.MinFPS {
		cfg.MaxFPS = cfg.MinFPS
	}
	if cfg.Safety <= 0 {
		cfg.Safety = 1.3
	}
	if cfg.LagThreshold <= 0 {
		cfg.LagThreshold = 5
	}
	if cfg.LagHysteresis <= 0 {
		cfg.LagHysteresis = 0.3
	}
	target := clamp(initialFPS, cfg.MinFPS, cfg.MaxFPS)
	return &AdaptiveController{
		minFPS:        cfg.MinFPS,
		maxFPS:        cfg.MaxFPS,
		safety:        cfg.Safety,
		lagThreshold:  cfg.LagThreshold,
		lagHysteresis: cfg.LagHysteresis,
		initialFPS:    target,
		targetFPS:     target,
		now:           time.Now,
	}
}

// WithClock overrides the time source; used by tests only, since the
// controller does not currently measure wall-clock intervals directly but
// keeps the hook for future rate-of-change smoothing.
func (c *AdaptiveController) WithClock(clock func() time.Time) {
	if c == nil || clock == nil {
		return
	}
	c.mu.Lock()
	c.now = clock
	c.mu.Unlock()
}

// Observe folds a fresh inference latency sample and the consumer's current
// queue depth into the controller, returning the updated target FPS.
//
// Latency drives a safety-margin target: 1 / (ema_latency * safety). When
// queue depth exceeds lagThreshold, that target is multiplied by
// 1 - min(excess/lagThreshold * lagHysteresis, 0.9). The factor is
// recomputed from each call's depth alone, so the target returns to the
// latency-derived value as soon as a sample reports depth at or below the
// threshold.
func (c *AdaptiveController) Observe(latency time.Duration, queueDepth int) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		if c.emaLatency == 0 {
			c.emaLatency = latency
		} else {
			c.emaLatency = time.Duration(emaAlpha*float64(latency) + (1-emaAlpha)*float64(c.emaLatency))
		}
	}
	c.queueDepth = queueDepth

	latencyTarget := c.maxFPS
	if c.emaLatency > 0 {
		period := float64(c.emaLatency) * c.safety
		if period > 0 {
			latencyTarget = clamp(int(float64(time.Second)/period), c.minFPS, c.maxFPS)
		}
	}

	next := latencyTarget
	if queueDepth > c.lagThreshold {
		//1.- Back off proportionally to how far the backlog exceeds the threshold.
		excess := float64(queueDepth-c.lagThreshold) / float64(c.lagThreshold)
		factor := 1 - math.Min(excess*c.lagHysteresis, 0.9)
		next = clamp(int(float64(latencyTarget)*factor), c.minFPS, c.maxFPS)
	}

	c.targetFPS = next
	return c.targetFPS
}

// Current returns the most recently computed target FPS without taking a
// new sample.
func (c *AdaptiveController) Current() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetFPS
}

// Snapshot reports the controller's internal state for diagnostics.
func (c *AdaptiveController) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{TargetFPS: c.targetFPS, EMALatency: c.emaLatency, LastQueueDepth: c.queueDepth}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
