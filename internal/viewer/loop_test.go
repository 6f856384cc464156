package viewer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ivis-core/internal/bus"
	"ivis-core/internal/contracts"
	"ivis-core/internal/viewer/cache"
)

type fakeRing struct {
	payload []byte
	gen     uint32
	latest  []byte
}

func (r *fakeRing) ReadSlotAt(index uint32, wantGen uint32, maxRetries int) ([]byte, bool) {
	if wantGen != r.gen {
		return nil, false
	}
	return r.payload, true
}

func (r *fakeRing) ReadLatest(maxRetries int) ([]byte, bool) {
	if r.latest == nil {
		return nil, false
	}
	return r.latest, true
}

func testFrame(frameID string, nowMs int64) contracts.FrameContractV1 {
	return contracts.FrameContractV1{
		ContractVersion: contracts.ContractVersion{Value: 1},
		FrameID:         frameID,
		StreamID:        "stream-0",
		CameraID:        "camera-0",
		TimestampMs:     nowMs,
		MonoMs:          1,
		Memory:          contracts.Memory{Backend: "shm", Key: "0", Size: 768, Generation: 2},
		FrameWidth:      16,
		FrameHeight:     16,
		FrameChannels:   3,
		FrameDtype:      "uint8",
		FrameColorSpace: "bgr",
	}
}

func newTestLoop(ring Ring) (*Loop, *bus.Local, *bus.Local) {
	framesBus := bus.NewLocal(4)
	resultsBus := bus.NewLocal(4)
	framesSub, _ := framesBus.Subscribe(context.Background(), "frames")
	resultsSub, _ := resultsBus.Subscribe(context.Background(), "results")
	loop := New(Config{MaxResultAgeMs: 500, RingMaxRetries: 3}, framesSub, resultsSub, ring, cache.New(10, time.Minute), nil, nil)
	return loop, framesBus, resultsBus
}

func TestHandleFrameRendersWithCorrelatedResult(t *testing.T) {
	ring := &fakeRing{payload: make([]byte, 12), gen: 2}
	loop, _, _ := newTestLoop(ring)

	nowMs := time.Now().UnixMilli()
	classID := 4
	result := contracts.ResultContractV1{
		ContractVersion: contracts.ContractVersion{Value: 1},
		FrameID:         "f1", StreamID: "stream-0", CameraID: "camera-0",
		TimestampMs: nowMs, MonoMs: 1,
		Detections: []contracts.Detection{{BBox: [4]float64{0, 0, 1, 1}, ClassID: &classID}},
		Model:      contracts.Model{Name: "m"},
	}
	loop.cache.Put("f1", result)

	frame := testFrame("f1", nowMs)
	payload, _ := json.Marshal(frame)
	loop.handleFrame(bus.Message{Topic: "frames", Payload: payload})

	if len(loop.state.Rendered()) == 0 {
		t.Fatal("expected a rendered JPEG to be stored")
	}
	if got, _, ok := loop.state.Frame(); !ok || got.FrameID != "f1" {
		t.Fatalf("expected frame f1 recorded in state, got %+v ok=%v", got, ok)
	}
}

func TestCorrelatedDetectionsCountsResultLagWhenAbsent(t *testing.T) {
	ring := &fakeRing{payload: make([]byte, 12), gen: 2}
	loop, _, _ := newTestLoop(ring)

	frame := testFrame("missing", time.Now().UnixMilli())
	dets := loop.correlatedDetections(frame)
	if dets != nil {
		t.Fatalf("expected nil detections for uncorrelated frame, got %v", dets)
	}
	if loop.counters.Snapshot()[contracts.ReasonResultLag] != 1 {
		t.Fatal("expected result_lag to be counted")
	}
}

func TestCorrelatedDetectionsCountsResultLagWhenStale(t *testing.T) {
	ring := &fakeRing{payload: make([]byte, 12), gen: 2}
	loop, _, _ := newTestLoop(ring)

	nowMs := time.Now().UnixMilli()
	loop.cache.Put("f1", contracts.ResultContractV1{FrameID: "f1", TimestampMs: nowMs - 5000})

	frame := testFrame("f1", nowMs)
	dets := loop.correlatedDetections(frame)
	if dets != nil {
		t.Fatal("expected nil detections for a stale correlated result")
	}
	if loop.counters.Snapshot()[contracts.ReasonResultLag] != 1 {
		t.Fatal("expected result_lag to be counted for a stale result")
	}
}

func TestRunRendersViaFrameAndResultSubscribers(t *testing.T) {
	ring := &fakeRing{payload: make([]byte, 12), gen: 2}
	loop, framesBus, resultsBus := newTestLoop(ring)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	nowMs := time.Now().UnixMilli()
	classID := 1
	result := contracts.ResultContractV1{
		ContractVersion: contracts.ContractVersion{Value: 1},
		FrameID:         "f1", StreamID: "stream-0", CameraID: "camera-0",
		TimestampMs: nowMs, MonoMs: 1,
		Detections: []contracts.Detection{{BBox: [4]float64{0, 0, 1, 1}, ClassID: &classID}},
		Model:      contracts.Model{Name: "m"},
	}
	resultPayload, _ := json.Marshal(result)
	resultsBus.Publish(context.Background(), "results", resultPayload)
	time.Sleep(10 * time.Millisecond)

	framePayload, _ := json.Marshal(testFrame("f1", nowMs))
	framesBus.Publish(context.Background(), "frames", framePayload)

	time.Sleep(30 * time.Millisecond)
	if len(loop.State().Rendered()) == 0 {
		t.Fatal("expected a rendered JPEG after frame+result round trip")
	}

	loop.Stop()
	<-done
}
