package match

import "testing"

func box(x1, y1, x2, y2 float64) Box { return Box{X1: x1, Y1: y1, X2: x2, Y2: y2} }

func TestIoUDisjointBoxesIsZero(t *testing.T) {
	if got := IoU(box(0, 0, 1, 1), box(5, 5, 6, 6)); got != 0 {
		t.Fatalf("expected zero IoU for disjoint boxes, got %v", got)
	}
}

func TestIoUIdenticalBoxesIsOne(t *testing.T) {
	b := box(0, 0, 10, 10)
	if got := IoU(b, b); got != 1 {
		t.Fatalf("expected IoU 1 for identical boxes, got %v", got)
	}
}

func TestMatchPrefersHigherIoU(t *testing.T) {
	dets := []DetRef{
		{Index: 0, Box: box(0, 0, 10, 10)},
		{Index: 1, Box: box(100, 100, 110, 110)},
	}
	tracks := []TrackRef{
		{ID: "t1", Box: box(0, 0, 9, 9)},
		{ID: "t2", Box: box(100, 100, 108, 108)},
	}
	got := Match(dets, tracks, 0.3)
	if len(got) != 2 {
		t.Fatalf("expected both detections matched, got %d assignments", len(got))
	}
	byTrack := make(map[string]int)
	for _, a := range got {
		byTrack[a.TrackID] = a.DetIndex
	}
	if byTrack["t1"] != 0 || byTrack["t2"] != 1 {
		t.Fatalf("expected each track matched to its overlapping detection, got %+v", byTrack)
	}
}

func TestMatchIsOneToOne(t *testing.T) {
	dets := []DetRef{{Index: 0, Box: box(0, 0, 10, 10)}}
	tracks := []TrackRef{
		{ID: "t1", Box: box(0, 0, 10, 10)},
		{ID: "t2", Box: box(1, 1, 9, 9)},
	}
	got := Match(dets, tracks, 0.1)
	if len(got) != 1 {
		t.Fatalf("expected exactly one assignment, got %d", len(got))
	}
	if got[0].TrackID != "t1" {
		t.Fatalf("expected the higher-IoU track t1 to win, got %q", got[0].TrackID)
	}
}

func TestMatchRejectsBelowThreshold(t *testing.T) {
	dets := []DetRef{{Index: 0, Box: box(0, 0, 10, 10)}}
	tracks := []TrackRef{{ID: "t1", Box: box(50, 50, 60, 60)}}
	if got := Match(dets, tracks, 0.3); len(got) != 0 {
		t.Fatalf("expected no assignment below threshold, got %+v", got)
	}
}
