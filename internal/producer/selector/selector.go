// Package selector implements the two frame-admission policies the
// ingestion loop uses to enforce a target frame rate before a captured
// packet reaches normalization: a monotonic wall-clock gate and a
// presentation-timestamp gate.
package selector

import "sync"

// Selector decides whether a captured packet should be admitted downstream.
type Selector interface {
	// Allow reports whether the packet at the given clock/pts should pass,
	// recording it as the last-emitted sample when it does.
	Allow(nowMonotonicMs, ptsMs int64) bool
	// SetEffectiveFPS updates the target rate, clamped to [1, ∞).
	SetEffectiveFPS(fps float64)
}

// Clock admits a packet once at least 1000/effective_fps monotonic
// milliseconds have elapsed since the last admitted packet.
type Clock struct {
	mu           sync.Mutex
	effectiveFPS float64
	lastEmitMs   int64
	hasEmitted   bool
}

// NewClock constructs a clock-mode selector targeting fps frames per second.
func NewClock(fps float64) *Clock {
	c := &Clock{}
	c.SetEffectiveFPS(fps)
	return c
}

func (c *Clock) SetEffectiveFPS(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fps < 1 {
		fps = 1
	}
	c.effectiveFPS = fps
}

func (c *Clock) Allow(nowMonotonicMs, _ int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	intervalMs := int64(1000 / c.effectiveFPS)
	if !c.hasEmitted || nowMonotonicMs-c.lastEmitMs >= intervalMs {
		c.lastEmitMs = nowMonotonicMs
		c.hasEmitted = true
		return true
	}
	return false
}

// PTS admits a packet once its presentation timestamp has advanced by at
// least 1000/effective_fps milliseconds relative to the last admitted one,
// and is strictly increasing (guards against replayed or out-of-order PTS).
type PTS struct {
	mu           sync.Mutex
	effectiveFPS float64
	lastPTSMs    int64
	hasEmitted   bool
}

// NewPTS constructs a pts-mode selector targeting fps frames per second.
func NewPTS(fps float64) *PTS {
	p := &PTS{}
	p.SetEffectiveFPS(fps)
	return p
}

func (p *PTS) SetEffectiveFPS(fps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fps < 1 {
		fps = 1
	}
	p.effectiveFPS = fps
}

func (p *PTS) Allow(_ int64, ptsMs int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	intervalMs := int64(1000 / p.effectiveFPS)
	if !p.hasEmitted {
		p.lastPTSMs = ptsMs
		p.hasEmitted = true
		return true
	}
	if ptsMs > p.lastPTSMs && ptsMs-p.lastPTSMs >= intervalMs {
		p.lastPTSMs = ptsMs
		return true
	}
	return false
}

// EffectiveFPS clamps base against an optional lag cap, per spec: the
// smaller of the two, floored at 1 fps.
func EffectiveFPS(baseTargetFPS float64, lagCapFPS float64, hasLagCap bool) float64 {
	effective := baseTargetFPS
	if hasLagCap && lagCapFPS < effective {
		effective = lagCapFPS
	}
	if effective < 1 {
		effective = 1
	}
	return effective
}
