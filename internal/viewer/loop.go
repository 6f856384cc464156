package viewer

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"ivis-core/internal/bus"
	"ivis-core/internal/contracts"
	"ivis-core/internal/iviserr"
	"ivis-core/internal/logging"
	"ivis-core/internal/timesync"
	"ivis-core/internal/viewer/cache"
	"ivis-core/internal/viewer/render"
)

// Ring is the subset of *ring.Ring the viewer reads through.
type Ring interface {
	ReadSlotAt(index uint32, wantGen uint32, maxRetries int) (payload []byte, ok bool)
	ReadLatest(maxRetries int) (payload []byte, ok bool)
}

// Config bounds the viewer's correlation and fallback behaviour.
type Config struct {
	MaxResultAgeMs      int64
	RingMaxRetries      int
	FallbackIdleTimeout time.Duration
	FallbackPollEvery   time.Duration
	JPEGQuality         int
}

// Loop owns the three worker goroutines (frame subscriber, result
// subscriber, ring-fallback poller) and the shared State they write to.
// Rendering is performed inline by whichever worker produced the freshest
// pixels, rather than by a fourth dedicated polling goroutine: this avoids
// an extra staleness window between "pixels ready" and "render observed
// them" that a separate poll-driven render step would otherwise introduce.
type Loop struct {
	cfg Config

	frames   *bus.Subscription
	results  *bus.Subscription
	ring     Ring
	cache    *cache.Correlation
	state    *State
	counters *iviserr.Counters
	log      *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Loop.
func New(cfg Config, frames, results *bus.Subscription, r Ring, correlationCache *cache.Correlation, counters *iviserr.Counters, log *logging.Logger) *Loop {
	if log == nil {
		log = logging.L()
	}
	if counters == nil {
		counters = iviserr.NewCounters()
	}
	if correlationCache == nil {
		correlationCache = cache.New(0, 0)
	}
	if cfg.FallbackIdleTimeout <= 0 {
		cfg.FallbackIdleTimeout = 500 * time.Millisecond
	}
	if cfg.FallbackPollEvery <= 0 {
		cfg.FallbackPollEvery = 100 * time.Millisecond
	}
	if cfg.MaxResultAgeMs <= 0 {
		cfg.MaxResultAgeMs = 500
	}
	return &Loop{
		cfg:      cfg,
		frames:   frames,
		results:  results,
		ring:     r,
		cache:    correlationCache,
		state:    NewState(),
		counters: counters,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// State exposes the shared state for an HTTP/MJPEG handler to read from.
func (l *Loop) State() *State { return l.state }

// Stop signals every worker to exit at its next iteration boundary.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run starts the three worker goroutines and blocks until ctx is
// cancelled or Stop is called. A closed subscription ends only its own
// worker; the ring-fallback poller keeps Run blocked.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); l.runResultSubscriber(ctx) }()
	go func() { defer wg.Done(); l.runFrameSubscriber(ctx) }()
	go func() { defer wg.Done(); l.runFallbackPoller(ctx) }()
	wg.Wait()
}

func (l *Loop) runResultSubscriber(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case msg, ok := <-l.results.C():
			if !ok {
				return
			}
			var result contracts.ResultContractV1
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				l.counters.Observe(contracts.ReasonBadJSON)
				continue
			}
			if verr := contracts.ValidateResultContractV1(&result); verr != nil {
				l.counters.Observe(verr.Reason)
				continue
			}
			l.cache.Put(result.FrameID, result)
			l.state.SetResult(result, timesync.Now().MonoMs)
		}
	}
}

func (l *Loop) runFrameSubscriber(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case msg, ok := <-l.frames.C():
			if !ok {
				return
			}
			l.handleFrame(msg)
		}
	}
}

func (l *Loop) handleFrame(msg bus.Message) {
	var frame contracts.FrameContractV1
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		l.counters.Observe(contracts.ReasonBadJSON)
		return
	}
	if verr := contracts.ValidateFrameContractV1(&frame); verr != nil {
		l.counters.Observe(verr.Reason)
		return
	}

	slot, err := strconv.ParseUint(frame.Memory.Key, 10, 32)
	if err != nil {
		l.counters.Observe(contracts.ReasonBadMemoryKey)
		return
	}
	pixels, ok := l.ring.ReadSlotAt(uint32(slot), uint32(frame.Memory.Generation), l.cfg.RingMaxRetries)
	if !ok {
		l.counters.Observe(contracts.ReasonShmMiss)
		return
	}

	nowMono := timesync.Now().MonoMs
	l.state.SetFrame(frame, nowMono)

	detections := l.correlatedDetections(frame)
	l.renderAndStore(pixels, frame.FrameWidth, frame.FrameHeight, detections)
}

// correlatedDetections looks up the cached result for frame's frame_id and
// reports an empty overlay, counting the appropriate reason, when no
// suitably fresh result is available.
//
// Resolution of an ambiguity spec §4.6 leaves open (which of the two named
// counters applies to which branch): an absent cache entry or one whose
// age exceeds max_result_age_ms is counted as result_lag (detection simply
// hasn't caught up yet); a cached result whose timestamp_ms is itself
// non-positive — structurally invalid despite passing contract validation
// at insert time, which only requires it be an int64 — is counted as
// result_malformed_timestamp.
func (l *Loop) correlatedDetections(frame contracts.FrameContractV1) []contracts.Detection {
	result, ok := l.cache.Get(frame.FrameID)
	if !ok {
		l.counters.Observe(contracts.ReasonResultLag)
		return nil
	}
	if result.TimestampMs <= 0 {
		l.counters.Observe(contracts.ReasonResultMalformedTimestamp)
		return nil
	}
	age := frame.TimestampMs - result.TimestampMs
	if age < 0 {
		age = -age
	}
	if age > l.cfg.MaxResultAgeMs {
		l.counters.Observe(contracts.ReasonResultLag)
		return nil
	}
	return result.Detections
}

func (l *Loop) runFallbackPoller(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.FallbackPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			nowMono := timesync.Now().MonoMs
			if l.state.FrameAge(nowMono) <= l.cfg.FallbackIdleTimeout {
				continue
			}
			l.pollRingFallback(nowMono)
		}
	}
}

func (l *Loop) pollRingFallback(nowMono int64) {
	pixels, ok := l.ring.ReadLatest(l.cfg.RingMaxRetries)
	if !ok {
		l.counters.Observe(contracts.ReasonShmMiss)
		return
	}
	frame, _, hasFrame := l.state.Frame()
	width, height := 0, 0
	if hasFrame {
		width, height = frame.FrameWidth, frame.FrameHeight
	}
	if width == 0 || height == 0 {
		return
	}

	var detections []contracts.Detection
	result, resultMono, hasResult := l.state.Result()
	if hasResult && time.Duration(nowMono-resultMono)*time.Millisecond <= l.cfg.FallbackIdleTimeout {
		detections = result.Detections
	}
	l.renderAndStore(pixels, width, height, detections)
}

func (l *Loop) renderAndStore(pixels []byte, width, height int, detections []contracts.Detection) {
	jpeg, err := render.Frame(pixels, width, height, detections, render.Options{JPEGQuality: l.cfg.JPEGQuality})
	if err != nil {
		l.counters.Observe(contracts.ReasonNonFatal)
		return
	}
	l.state.SetRendered(jpeg)
}
