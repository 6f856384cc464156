// Package match performs one-to-one greedy IoU assignment between a frame's
// detections and a set of tracks. It owns no state of its own —
// internal/tracker calls it on every Update against its full track set to
// find frame-to-frame continuity, and internal/consumer.Loop calls it again,
// against only the confirmed, fresh tracks, to stamp the result contract's
// track_id fields.
package match

import "sort"

// Box is an axis-aligned bounding box expressed in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Valid reports whether b has positive width and height.
func (b Box) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// IoU returns the intersection-over-union of two boxes, zero when disjoint
// or either box is degenerate.
func IoU(a, b Box) float64 {
	ix1, iy1 := maxf(a.X1, b.X1), maxf(a.Y1, b.Y1)
	ix2, iy2 := minf(a.X2, b.X2), minf(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DetRef is a detection awaiting assignment, keyed by its position in the
// frame's detection slice.
type DetRef struct {
	Index int
	Box   Box
}

// TrackRef is a track eligible to receive a detection this round.
type TrackRef struct {
	ID  string
	Box Box
}

// Assignment pairs a detection index with the track it was matched to.
type Assignment struct {
	DetIndex int
	TrackID  string
	IoU      float64
}

// Match assigns each detection to at most one track and each track to at
// most one detection, using greedy one-to-one IoU assignment: candidate
// pairs clearing iouThreshold are sorted by descending IoU (ties broken by
// ascending track ID, then ascending detection index) and committed in that
// order, skipping any side already claimed. Grounded on
// internal/networking.BudgetPlanner.Plan's sort-then-greedy-commit-with-an-
// included-set loop.
func Match(dets []DetRef, tracks []TrackRef, iouThreshold float64) []Assignment {
	var candidates []Assignment
	for _, tr := range tracks {
		for _, d := range dets {
			if iou := IoU(tr.Box, d.Box); iou >= iouThreshold {
				candidates = append(candidates, Assignment{DetIndex: d.Index, TrackID: tr.ID, IoU: iou})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IoU != candidates[j].IoU {
			return candidates[i].IoU > candidates[j].IoU
		}
		if candidates[i].TrackID != candidates[j].TrackID {
			return candidates[i].TrackID < candidates[j].TrackID
		}
		return candidates[i].DetIndex < candidates[j].DetIndex
	})

	claimedTracks := make(map[string]bool, len(tracks))
	claimedDets := make(map[int]bool, len(dets))
	var out []Assignment
	for _, c := range candidates {
		if claimedTracks[c.TrackID] || claimedDets[c.DetIndex] {
			continue
		}
		claimedTracks[c.TrackID] = true
		claimedDets[c.DetIndex] = true
		out = append(out, c)
	}
	return out
}
