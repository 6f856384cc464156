// Package producer drives the ingestion main loop: capture, select,
// normalize, fingerprint, ring-write, publish — adapted from
// internal/simulation.Loop's fixed-timestep ticking idiom into a
// cooperative, single-threaded capture-decode-publish pipeline.
package producer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"strconv"
	"sync"
	"time"

	"ivis-core/internal/bus"
	"ivis-core/internal/contracts"
	"ivis-core/internal/iviserr"
	"ivis-core/internal/logging"
	"ivis-core/internal/producer/fingerprint"
	"ivis-core/internal/producer/frozen"
	"ivis-core/internal/producer/ratecontrol"
	"ivis-core/internal/producer/reconnect"
	"ivis-core/internal/producer/recordbuffer"
	"ivis-core/internal/producer/roi"
	"ivis-core/internal/producer/selector"
	"ivis-core/internal/timesync"
)

// Packet is one raw capture unit read from a source.
type Packet struct {
	Payload []byte
	PTSMs   int64
	WallMs  int64
	MonoMs  int64
}

// Source abstracts a capture device: a local file, webcam index, or RTSP
// stream. ok=false with a nil error means the source has no packet ready
// right now; io.EOF means the source is exhausted (file sources only).
type Source interface {
	Next(ctx context.Context) (pkt Packet, ok bool, err error)
	IsFile() bool
	Rewind(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

// Ring is the subset of *ring.Ring the loop writes through.
type Ring interface {
	WriteFrame(payload []byte) (slotIndex uint32, err error)
	CurrentGeneration(index uint32) (uint32, bool)
}

// Config bounds one Loop's behaviour.
type Config struct {
	StreamID    string
	CameraID    string
	Width       int
	Height      int
	SourceIsRGB bool

	SelectorMode string // "clock" | "pts"
	TargetFPS    float64

	MemoryBackend string

	ROIRects    string
	ROIPolygons string

	Frozen            frozen.Config
	Reconnect         reconnect.Config
	RecordMaxSeconds  time.Duration
	RecordMaxFrames   int
	RecordJPEGQuality int

	// Loop controls end-of-stream behaviour for a file source: true rewinds
	// and replays from the start, false exits the loop with a fatal error.
	Loop bool
}

// Loop owns every stateful collaborator the main loop steps through once
// per iteration.
type Loop struct {
	cfg Config

	source    Source
	ring      Ring
	publisher bus.Publisher
	counters  *iviserr.Counters
	log       *logging.Logger

	sel     selector.Selector
	mask    *roi.Mask
	frozen  *frozen.Detector
	backoff *reconnect.Backoff
	record  *recordbuffer.Buffer

	adaptive *ratecontrol.AdaptiveController
	lag      *ratecontrol.LagController

	mu        sync.Mutex
	baseFPS   float64
	lagCapFPS int
	lagActive bool
	stopped   bool
}

// New constructs a Loop from its configuration and collaborators. adaptive
// and lagCtl may be nil to disable those optional behaviours; record may be
// nil to disable the rolling JPEG buffer.
func New(cfg Config, source Source, r Ring, publisher bus.Publisher, counters *iviserr.Counters, log *logging.Logger, adaptive *ratecontrol.AdaptiveController, lagCtl *ratecontrol.LagController, record *recordbuffer.Buffer) (*Loop, []error) {
	if log == nil {
		log = logging.L()
	}
	if counters == nil {
		counters = iviserr.NewCounters()
	}
	mask, roiErrs := roi.Build(cfg.Width, cfg.Height, cfg.ROIRects, cfg.ROIPolygons)

	var sel selector.Selector
	if cfg.SelectorMode == "pts" {
		sel = selector.NewPTS(cfg.TargetFPS)
	} else {
		sel = selector.NewClock(cfg.TargetFPS)
	}

	return &Loop{
		cfg:       cfg,
		source:    source,
		ring:      r,
		publisher: publisher,
		counters:  counters,
		log:       log,
		sel:       sel,
		mask:      mask,
		frozen:    frozen.New(cfg.Frozen),
		backoff:   reconnect.New(cfg.Reconnect),
		record:    record,
		adaptive:  adaptive,
		lag:       lagCtl,
		baseFPS:   cfg.TargetFPS,
	}, roiErrs
}

// Stop requests the loop exit at the next iteration boundary.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// ObserveQueueDepth feeds an externally reported publisher backlog into the
// lag-based rate cap. cmd/ingestion does not call it, so in the shipped
// binaries the lag cap stays disengaged.
func (l *Loop) ObserveQueueDepth(depth int) {
	if l.lag == nil {
		return
	}
	capFPS, active := l.lag.Observe(depth)
	l.mu.Lock()
	l.lagActive = active
	l.lagCapFPS = capFPS
	l.mu.Unlock()
}

// ObserveInferenceLatency feeds an adaptive-rate feedback sample into the
// optional adaptive controller. cmd/ingestion does not call it and nothing
// reads latency from the results bus, so the base rate stays at TargetFPS.
func (l *Loop) ObserveInferenceLatency(latency time.Duration, queueDepth int) {
	if l.adaptive == nil {
		return
	}
	target := l.adaptive.Observe(latency, queueDepth)
	l.mu.Lock()
	l.baseFPS = float64(target)
	l.mu.Unlock()
}

func (l *Loop) effectiveFPS() float64 {
	l.mu.Lock()
	base := l.baseFPS
	capActive := l.lagActive
	capFPS := l.lagCapFPS
	l.mu.Unlock()
	return selector.EffectiveFPS(base, float64(capFPS), capActive)
}

// Run drives the loop until ctx is cancelled, Stop is called, or a fatal
// error occurs.
func (l *Loop) Run(ctx context.Context) *iviserr.Error {
	for {
		if l.isStopped() || ctx.Err() != nil {
			return nil
		}
		if ferr := l.step(ctx); ferr != nil {
			if ferr.Kind == iviserr.Fatal {
				return ferr
			}
			// Drop/sideband errors are already counted inside step; continue.
		}
	}
}

// step executes exactly one iteration of the 12-step main loop.
func (l *Loop) step(ctx context.Context) *iviserr.Error {
	l.sel.SetEffectiveFPS(l.effectiveFPS())

	pkt, ok, err := l.source.Next(ctx)
	if err != nil {
		return l.handleSourceError(ctx, err)
	}
	if !ok {
		return l.handleIdle(ctx)
	}

	//2.- pts_ms <= 0 -> drop.
	if pkt.PTSMs <= 0 {
		l.counters.Observe(contracts.ReasonBadPTS)
		return nil
	}

	//3.- Decode: identity for raw captures; empty payload -> drop (dropped_corrupt).
	if len(pkt.Payload) == 0 {
		l.counters.Observe(contracts.DropReason("dropped_corrupt"))
		return nil
	}

	//4.- Selector gate.
	if !l.sel.Allow(timesync.Now().MonoMs, pkt.PTSMs) {
		l.counters.Observe(contracts.ReasonNonFatal)
		return nil
	}

	//5.- Resize to (W,H), convert to BGR8.
	bgr := normalizeToBGR(pkt.Payload, l.cfg.Width, l.cfg.Height, l.cfg.SourceIsRGB, l.cfg.Width, l.cfg.Height)

	//6.- Apply ROI mask.
	if l.mask != nil {
		l.mask.Apply(bgr)
	}

	//7.- Fingerprint + frozen detector update.
	fp := fingerprint.Compute(bgr, l.cfg.Width, l.cfg.Height)
	if reason := l.frozen.Observe(pkt.PTSMs, pkt.WallMs, pkt.MonoMs, fp); reason != frozen.ReasonNone {
		if !l.source.IsFile() {
			return l.enterReconnect(ctx, reason)
		}
	}

	//8.- frame_id = md5(stream_id || pts || fingerprint).
	frameID := frameIdentity(l.cfg.StreamID, pkt.PTSMs, fp)

	//9.- Write into the ring.
	slot, err := l.ring.WriteFrame(bgr)
	if err != nil {
		return iviserr.NewFatal(err)
	}
	gen, _ := l.ring.CurrentGeneration(slot)

	//10.- Optionally stage into the record buffer.
	if l.record != nil {
		l.record.Stage(pkt.WallMs, bgrImage{pix: bgr, w: l.cfg.Width, h: l.cfg.Height})
	}

	//11.- Publish the frame contract.
	frameContract := contracts.FrameContractV1{
		ContractVersion: contracts.ContractVersion{Value: 1},
		FrameID:         frameID,
		StreamID:        l.cfg.StreamID,
		CameraID:        l.cfg.CameraID,
		PTS:             float64Ptr(float64(pkt.PTSMs)),
		TimestampMs:     pkt.WallMs,
		MonoMs:          pkt.MonoMs,
		Memory: contracts.Memory{
			Backend:    l.cfg.MemoryBackend,
			Key:        strconv.FormatUint(uint64(slot), 10),
			Size:       int64(l.cfg.Width) * int64(l.cfg.Height) * 3,
			Generation: int64(gen),
		},
		FrameWidth:      l.cfg.Width,
		FrameHeight:     l.cfg.Height,
		FrameChannels:   3,
		FrameDtype:      "uint8",
		FrameColorSpace: "bgr",
	}
	if verr := contracts.ValidateFrameContractV1(&frameContract); verr != nil {
		return iviserr.NewFatal(verr)
	}
	payload, err := encodeJSON(frameContract)
	if err != nil {
		return iviserr.NewFatal(err)
	}
	outcome, err := l.publisher.Publish(ctx, "frames", payload)
	if err != nil {
		l.counters.Observe(contracts.ReasonNonFatal)
		return nil
	}
	if outcome == bus.Dropped {
		l.counters.Observe(contracts.ReasonLag)
	}

	//12.- Compute end-to-end latency; the value is discarded and no latency
	// is recorded.
	_ = timesync.Since(timesync.Stamp{WallMs: pkt.WallMs})

	l.backoff.Reset()
	return nil
}

func (l *Loop) handleSourceError(ctx context.Context, err error) *iviserr.Error {
	if errors.Is(err, io.EOF) {
		if l.source.IsFile() {
			if !l.cfg.Loop {
				return iviserr.NewFatal(err)
			}
			if rerr := l.source.Rewind(ctx); rerr != nil {
				return iviserr.NewFatal(rerr)
			}
			return nil
		}
		return iviserr.NewFatal(err)
	}
	return iviserr.NewFatal(err)
}

func (l *Loop) handleIdle(ctx context.Context) *iviserr.Error {
	if l.source.IsFile() {
		return iviserr.NewFatal(errors.New("file source exhausted without EOF"))
	}
	if reason := l.frozen.CheckIdle(timesync.Now().MonoMs); reason != frozen.ReasonNone {
		return l.enterReconnect(ctx, reason)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (l *Loop) enterReconnect(ctx context.Context, reason frozen.Reason) *iviserr.Error {
	l.log.Warn("frozen stream detected, entering reconnect", logging.String("reason", string(reason)))
	for {
		delay, exhausted := l.backoff.Next()
		if exhausted {
			return iviserr.NewFatal(errors.New("reconnect retries exhausted after " + string(reason)))
		}
		select {
		case <-ctx.Done():
			return iviserr.NewFatal(ctx.Err())
		case <-time.After(delay):
		}
		if err := l.source.Reconnect(ctx); err == nil {
			l.backoff.Reset()
			l.frozen.Reset()
			return nil
		}
	}
}

func frameIdentity(streamID string, ptsMs int64, fp string) string {
	sum := md5.Sum([]byte(streamID + strconv.FormatInt(ptsMs, 10) + fp))
	return hex.EncodeToString(sum[:])
}

func float64Ptr(v float64) *float64 { return &v }

func encodeJSON(v any) ([]byte, error) { return json.Marshal(v) }

// bgrImage adapts a packed BGR8 byte buffer to image.Image for JPEG staging
// without an intermediate image.RGBA copy.
type bgrImage struct {
	pix  []byte
	w, h int
}

func (b bgrImage) ColorModel() color.Model { return color.RGBAModel }
func (b bgrImage) Bounds() image.Rectangle { return image.Rect(0, 0, b.w, b.h) }
func (b bgrImage) At(x, y int) color.Color {
	off := (y*b.w + x) * 3
	if off < 0 || off+2 >= len(b.pix) {
		return color.RGBA{}
	}
	return color.RGBA{R: b.pix[off+2], G: b.pix[off+1], B: b.pix[off], A: 0xFF}
}
