// Package viewer implements the live-view core: dual frame/result
// subscriptions feeding a small mutex-guarded shared state, a ring-fallback
// poller for when no contract has arrived recently, and a render step
// producing the MJPEG-ready annotated JPEG. Grounded on go-broker's Broker
// type, whose stateMu-guarded fields (startedAt, startupErr, recovering)
// are read/written through small getter/setter methods from multiple
// worker goroutines exactly the way viewer.State is here.
package viewer

import (
	"sync"
	"time"

	"ivis-core/internal/contracts"
)

// State is the small piece of shared state the frame subscriber, result
// subscriber, and ring-fallback poller all write to, and HTTP/MJPEG
// request handlers read from, guarded by one mutex.
type State struct {
	mu sync.RWMutex

	lastFrame            contracts.FrameContractV1
	hasFrame             bool
	lastFrameArrivalMono int64

	lastResult            contracts.ResultContractV1
	hasResult             bool
	lastResultArrivalMono int64

	renderedJPEG []byte
}

// NewState constructs an empty State.
func NewState() *State { return &State{} }

// SetFrame records the most recently received (validated) frame contract
// and the monotonic arrival time used by the ring-fallback poller's
// staleness check.
func (s *State) SetFrame(frame contracts.FrameContractV1, arrivalMono int64) {
	s.mu.Lock()
	s.lastFrame = frame
	s.hasFrame = true
	s.lastFrameArrivalMono = arrivalMono
	s.mu.Unlock()
}

// Frame returns the most recently recorded frame contract and its arrival
// time, or ok=false if none has arrived yet.
func (s *State) Frame() (frame contracts.FrameContractV1, arrivalMono int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame, s.lastFrameArrivalMono, s.hasFrame
}

// SetResult records the most recently received (validated) result contract,
// read only by the ring-fallback poller; a per-frame cache miss in
// handleFrame does not fall back to it.
func (s *State) SetResult(result contracts.ResultContractV1, arrivalMono int64) {
	s.mu.Lock()
	s.lastResult = result
	s.hasResult = true
	s.lastResultArrivalMono = arrivalMono
	s.mu.Unlock()
}

// Result returns the most recently recorded result contract and its
// arrival time, or ok=false if none has arrived yet.
func (s *State) Result() (result contracts.ResultContractV1, arrivalMono int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastResultArrivalMono, s.hasResult
}

// SetRendered stores the latest annotated JPEG for MJPEG streaming.
func (s *State) SetRendered(jpeg []byte) {
	s.mu.Lock()
	s.renderedJPEG = jpeg
	s.mu.Unlock()
}

// Rendered returns the latest annotated JPEG, or nil if nothing has been
// rendered yet.
func (s *State) Rendered() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderedJPEG
}

// FrameAge reports how long it has been since the last frame contract
// arrived, for the ring-fallback poller's 500ms trigger.
func (s *State) FrameAge(nowMono int64) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasFrame {
		return time.Duration(1<<62 - 1)
	}
	return time.Duration(nowMono-s.lastFrameArrivalMono) * time.Millisecond
}
