// Package tracker narrows the real multi-object tracker down to the
// contract the consumer loop actually needs, modeled on
// internal/detector.Detector's narrow external-collaborator pattern: the
// external collaborator (a trained tracking model, or a stateful tracker
// library) is never imported here, only the interface shape a consumer
// depends on, plus a deterministic Fixture standing in for it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"ivis-core/internal/consumer/match"
)

// ErrInvalidBox is returned when a detection carries a degenerate bounding box.
var ErrInvalidBox = errors.New("bounding box must have positive width and height")

// Detection is a single inference result awaiting correlation against the
// existing track set.
type Detection struct {
	Label      string
	Confidence float64
	ClassID    int
	Box        match.Box
}

// Track is a persistent identity assigned to a sequence of correlated
// detections across frames. Confirmed and TimeSinceUpdate gate which tracks
// a caller should treat as usable: a track is fit to carry a track_id only
// once Confirmed is true and TimeSinceUpdate is small.
type Track struct {
	ID              string
	Label           string
	Confidence      float64
	ClassID         int
	Box             match.Box
	FirstSeen       time.Time
	LastSeen        time.Time
	Hits            int
	Confirmed       bool
	TimeSinceUpdate int
}

// Tracker advances the track set by one frame's worth of detections.
type Tracker interface {
	Update(ctx context.Context, detections []Detection) ([]Track, error)
}

// Option configures a Fixture at construction time.
type Option func(*Fixture)

// WithClock overrides the default wall-clock time source.
func WithClock(clock func() time.Time) Option {
	return func(f *Fixture) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithIoUThreshold sets the minimum overlap required to correlate a
// detection with an existing track instead of spawning a new one.
func WithIoUThreshold(threshold float64) Option {
	return func(f *Fixture) {
		if threshold > 0 && threshold <= 1 {
			f.iouThreshold = threshold
		}
	}
}

// WithConfirmHits sets the number of consecutive matched hits a track needs
// before it is reported as Confirmed.
func WithConfirmHits(hits int) Option {
	return func(f *Fixture) {
		if hits > 0 {
			f.confirmHits = hits
		}
	}
}

// WithMaxAge sets how many consecutive unmatched frames a track tolerates
// before it is dropped from the set.
func WithMaxAge(maxAge int) Option {
	return func(f *Fixture) {
		if maxAge > 0 {
			f.maxAge = maxAge
		}
	}
}

// Fixture is a deterministic, in-process Tracker used in place of a real
// tracking model or library: it holds an in-memory track set and correlates
// incoming detections against it with internal/consumer/match.Match, the
// same way internal/detector.Fixture stands in for a real model.
type Fixture struct {
	mu sync.Mutex

	tracks       map[string]Track
	nextID       uint64
	now          func() time.Time
	iouThreshold float64
	confirmHits  int
	maxAge       int
}

// NewFixture constructs a track fixture with the given options applied.
func NewFixture(opts ...Option) *Fixture {
	f := &Fixture{
		tracks:       make(map[string]Track),
		now:          time.Now,
		iouThreshold: 0.3,
		confirmHits:  2,
		maxAge:       1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Update matches detections against the current track set using greedy
// one-to-one IoU assignment, advances every track's hit/age bookkeeping, and
// returns a deterministically ordered snapshot of the full set — including
// tracks not yet confirmed or already stale, which the caller filters.
func (f *Fixture) Update(ctx context.Context, detections []Detection) ([]Track, error) {
	for _, d := range detections {
		if !d.Box.Valid() {
			return nil, fmt.Errorf("%w: label %q", ErrInvalidBox, d.Label)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()

	trackRefs := make([]match.TrackRef, 0, len(f.tracks))
	for id, t := range f.tracks {
		trackRefs = append(trackRefs, match.TrackRef{ID: id, Box: t.Box})
	}
	detRefs := make([]match.DetRef, len(detections))
	for i, d := range detections {
		detRefs[i] = match.DetRef{Index: i, Box: d.Box}
	}

	assignments := match.Match(detRefs, trackRefs, f.iouThreshold)

	matchedTracks := make(map[string]bool, len(assignments))
	matchedDets := make(map[int]bool, len(assignments))
	for _, a := range assignments {
		d := detections[a.DetIndex]
		t := f.tracks[a.TrackID]
		t.Label = d.Label
		t.Confidence = d.Confidence
		t.ClassID = d.ClassID
		t.Box = d.Box
		t.LastSeen = now
		t.Hits++
		t.TimeSinceUpdate = 0
		t.Confirmed = t.Confirmed || t.Hits >= f.confirmHits
		f.tracks[a.TrackID] = t
		matchedTracks[a.TrackID] = true
		matchedDets[a.DetIndex] = true
	}

	//1.- Age every track that found no match this round, dropping it once it
	// exceeds the tolerated gap so the set does not grow without bound.
	for id, t := range f.tracks {
		if matchedTracks[id] {
			continue
		}
		t.TimeSinceUpdate++
		if t.TimeSinceUpdate > f.maxAge {
			delete(f.tracks, id)
			continue
		}
		f.tracks[id] = t
	}

	//2.- Spawn fresh tracks for every detection that found no home.
	for i, d := range detections {
		if matchedDets[i] {
			continue
		}
		id := f.allocateID()
		f.tracks[id] = Track{
			ID:              id,
			Label:           d.Label,
			Confidence:      d.Confidence,
			ClassID:         d.ClassID,
			Box:             d.Box,
			FirstSeen:       now,
			LastSeen:        now,
			Hits:            1,
			Confirmed:       f.confirmHits <= 1,
			TimeSinceUpdate: 0,
		}
	}

	return f.snapshotLocked(), nil
}

func (f *Fixture) snapshotLocked() []Track {
	if len(f.tracks) == 0 {
		return nil
	}
	out := make([]Track, 0, len(f.tracks))
	for _, t := range f.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Fixture) allocateID() string {
	f.nextID++
	return "t" + strconv.FormatUint(f.nextID, 10)
}
