// Package consumer drives the detection main loop: consume the frame
// contract bus, validate, stale-drop, ring read (into a fresh copy), run inference
// under a watchdog, correlate detections against tracks, publish the
// result contract. Grounded on internal/simulation.Loop's cooperative
// Run/Stop shape, generalized from a fixed-timestep tick to a
// message-driven consume step, the same way internal/producer.Loop was.
package consumer

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"strconv"
	"time"

	"ivis-core/internal/bus"
	"ivis-core/internal/consumer/match"
	"ivis-core/internal/consumer/watchdog"
	"ivis-core/internal/contracts"
	"ivis-core/internal/detector"
	"ivis-core/internal/iviserr"
	"ivis-core/internal/logging"
	"ivis-core/internal/timesync"
	"ivis-core/internal/tracker"
)

// Ring is the subset of *ring.Ring the consumer reads through.
type Ring interface {
	ReadSlotAt(index uint32, wantGen uint32, maxRetries int) (payload []byte, ok bool)
}

// Config bounds one Loop's behaviour.
type Config struct {
	MaxFrameAgeMs    int64
	RingMaxRetries   int
	InferenceTimeout time.Duration

	ModelName      string
	ModelVersion   string
	ModelThreshold float64
	ModelInputSize []int

	MatchIoUThreshold float64
}

// Loop owns every stateful collaborator the detection consumer steps
// through once per received frame contract.
type Loop struct {
	cfg Config

	frames    *bus.Subscription
	publisher bus.Publisher
	ring      Ring
	det       detector.Detector
	trk       tracker.Tracker
	wd        *watchdog.Watchdog
	counters  *iviserr.Counters
	log       *logging.Logger
}

// New constructs a Loop from its configuration and collaborators.
func New(cfg Config, frames *bus.Subscription, publisher bus.Publisher, r Ring, det detector.Detector, trk tracker.Tracker, counters *iviserr.Counters, log *logging.Logger) *Loop {
	if log == nil {
		log = logging.L()
	}
	if counters == nil {
		counters = iviserr.NewCounters()
	}
	if trk == nil {
		trk = tracker.NewFixture(tracker.WithIoUThreshold(cfg.MatchIoUThreshold))
	}
	return &Loop{
		cfg:       cfg,
		frames:    frames,
		publisher: publisher,
		ring:      r,
		det:       det,
		trk:       trk,
		wd:        watchdog.New(cfg.InferenceTimeout),
		counters:  counters,
		log:       log,
	}
}

// Run drives the loop until ctx is cancelled, the frame subscription
// closes, or a fatal error occurs.
func (l *Loop) Run(ctx context.Context) *iviserr.Error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-l.frames.C():
			if !ok {
				return nil
			}
			if ferr := l.step(ctx, msg); ferr != nil {
				if ferr.Kind == iviserr.Fatal {
					return ferr
				}
			}
		}
	}
}

// step executes exactly one iteration of the 10-step main loop.
func (l *Loop) step(ctx context.Context, msg bus.Message) *iviserr.Error {
	//1.- Decode the frame contract; a malformed payload is a fixed non-validator drop.
	var frame contracts.FrameContractV1
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		l.counters.Observe(contracts.ReasonBadJSON)
		return nil
	}

	//2.- Validate against the contract rules.
	if verr := contracts.ValidateFrameContractV1(&frame); verr != nil {
		l.counters.Observe(verr.Reason)
		return nil
	}

	//3.- Stale-drop.
	nowWallMs := timesync.Now().WallMs
	if l.cfg.MaxFrameAgeMs > 0 && nowWallMs-frame.TimestampMs > l.cfg.MaxFrameAgeMs {
		l.counters.Observe(contracts.ReasonStale)
		return nil
	}

	//4.- Read pixels from the ring, keyed by the contract's memory descriptor.
	slot, err := strconv.ParseUint(frame.Memory.Key, 10, 32)
	if err != nil {
		l.counters.Observe(contracts.ReasonBadMemoryKey)
		return nil
	}
	readStart := timesync.Now()
	payload, ok := l.ring.ReadSlotAt(uint32(slot), uint32(frame.Memory.Generation), l.cfg.RingMaxRetries)
	_ = timesync.Since(readStart)
	if !ok {
		l.counters.Observe(contracts.ReasonShmMiss)
		return nil
	}

	//5.- Decode bytes into a (H, W, 3) BGR8 image, zero-copy over the ring payload.
	img := bgrView{pix: payload, w: frame.FrameWidth, h: frame.FrameHeight}

	//6.- Run the detector under the inference watchdog.
	var detections []detector.Detection
	inferStart := timesync.Now()
	runErr := l.wd.Run(ctx, func(ctx context.Context) error {
		var infErr error
		detections, infErr = l.det.Infer(ctx, img)
		return infErr
	})
	inferenceMs := float64(timesync.Since(inferStart)) / float64(time.Millisecond)
	if runErr != nil {
		return iviserr.NewFatal(runErr)
	}

	//7.- Advance the track set with this frame's detections, then keep only
	// confirmed tracks with time_since_update <= 1 as eligible match targets.
	trackDets := make([]tracker.Detection, len(detections))
	for i, d := range detections {
		trackDets[i] = tracker.Detection{
			Label:      d.ClassName,
			Confidence: d.Confidence,
			ClassID:    d.ClassID,
			Box:        match.Box{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]},
		}
	}
	rawTracks, trkErr := l.trk.Update(ctx, trackDets)
	if trkErr != nil {
		l.counters.Observe(contracts.ReasonBadBBox)
		return nil
	}
	confirmed := make([]tracker.Track, 0, len(rawTracks))
	for _, t := range rawTracks {
		if t.Confirmed && t.TimeSinceUpdate <= 1 {
			confirmed = append(confirmed, t)
		}
	}

	//8.- Attach the track_id assigned to each detection this round by
	// running the same one-to-one IoU assignment the tracker uses
	// internally, but gated to only the confirmed, fresh track set.
	trackRefs := make([]match.TrackRef, len(confirmed))
	for i, t := range confirmed {
		trackRefs[i] = match.TrackRef{ID: t.ID, Box: t.Box}
	}
	detRefs := make([]match.DetRef, len(detections))
	for i, d := range detections {
		detRefs[i] = match.DetRef{Index: i, Box: match.Box{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]}}
	}
	assignments := match.Match(detRefs, trackRefs, l.cfg.MatchIoUThreshold)
	trackIDByDetIndex := make(map[int]string, len(assignments))
	for _, a := range assignments {
		trackIDByDetIndex[a.DetIndex] = a.TrackID
	}

	resultDetections := make([]contracts.Detection, len(detections))
	for i, d := range detections {
		classID := d.ClassID
		resultDetections[i] = contracts.Detection{
			BBox:       d.BBox,
			Confidence: d.Confidence,
			ClassID:    &classID,
			ClassName:  d.ClassName,
			TrackID:    trackIDByDetIndex[i],
		}
	}

	//9.- Construct and validate the result contract.
	modelName := l.cfg.ModelName
	if l.det != nil && l.det.ModelName() != "" {
		modelName = l.det.ModelName()
	}
	result := contracts.ResultContractV1{
		ContractVersion: contracts.ContractVersion{Value: 1},
		FrameID:         frame.FrameID,
		StreamID:        frame.StreamID,
		CameraID:        frame.CameraID,
		TimestampMs:     frame.TimestampMs,
		MonoMs:          frame.MonoMs,
		Detections:      resultDetections,
		Model: contracts.Model{
			Name:      modelName,
			Version:   l.cfg.ModelVersion,
			Threshold: l.cfg.ModelThreshold,
			InputSize: l.cfg.ModelInputSize,
		},
		Timing: contracts.Timing{InferenceMs: inferenceMs},
	}
	if verr := contracts.ValidateResultContractV1(&result); verr != nil {
		return iviserr.NewFatal(verr)
	}

	//10.- Publish the result contract; no end-to-end latency is recorded.
	out, err := json.Marshal(result)
	if err != nil {
		return iviserr.NewFatal(err)
	}
	outcome, err := l.publisher.Publish(ctx, "results", out)
	if err != nil {
		l.counters.Observe(contracts.ReasonNonFatal)
		return nil
	}
	if outcome == bus.Dropped {
		l.counters.Observe(contracts.ReasonLag)
	}

	return nil
}

// bgrView adapts a packed BGR8 ring payload to image.Image without copying.
type bgrView struct {
	pix  []byte
	w, h int
}

func (b bgrView) ColorModel() color.Model { return color.RGBAModel }
func (b bgrView) Bounds() image.Rectangle { return image.Rect(0, 0, b.w, b.h) }
func (b bgrView) At(x, y int) color.Color {
	off := (y*b.w + x) * 3
	if off < 0 || off+2 >= len(b.pix) {
		return color.RGBA{}
	}
	return color.RGBA{R: b.pix[off+2], G: b.pix[off+1], B: b.pix[off], A: 0xFF}
}
