package tracker

import (
	"context"
	"testing"
	"time"

	"ivis-core/internal/consumer/match"
)

func box(x1, y1, x2, y2 float64) match.Box { return match.Box{X1: x1, Y1: y1, X2: x2, Y2: y2} }

func TestUpdateSpawnsUnconfirmedTrackOnFirstHit(t *testing.T) {
	f := NewFixture(WithConfirmHits(2))
	tracks, err := f.Update(context.Background(), []Detection{{Label: "car", Box: box(0, 0, 10, 10)}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected one spawned track, got %d", len(tracks))
	}
	if tracks[0].Confirmed {
		t.Fatal("expected a single-hit track to be unconfirmed with ConfirmHits=2")
	}
	if tracks[0].TimeSinceUpdate != 0 {
		t.Fatalf("expected fresh track time_since_update 0, got %d", tracks[0].TimeSinceUpdate)
	}
}

func TestUpdateConfirmsAfterEnoughHits(t *testing.T) {
	f := NewFixture(WithConfirmHits(2), WithIoUThreshold(0.3))
	ctx := context.Background()
	if _, err := f.Update(ctx, []Detection{{Label: "car", Box: box(0, 0, 10, 10)}}); err != nil {
		t.Fatalf("Update 1: %v", err)
	}
	tracks, err := f.Update(ctx, []Detection{{Label: "car", Box: box(0, 0, 10, 10)}})
	if err != nil {
		t.Fatalf("Update 2: %v", err)
	}
	if len(tracks) != 1 || !tracks[0].Confirmed {
		t.Fatalf("expected the reused track to be confirmed on its second hit, got %+v", tracks)
	}
	if tracks[0].Hits != 2 {
		t.Fatalf("expected 2 hits, got %d", tracks[0].Hits)
	}
}

func TestUpdateAgesOutUnmatchedTracks(t *testing.T) {
	f := NewFixture(WithMaxAge(1))
	ctx := context.Background()
	if _, err := f.Update(ctx, []Detection{{Label: "car", Box: box(0, 0, 10, 10)}}); err != nil {
		t.Fatalf("Update 1: %v", err)
	}
	// Two consecutive frames with no overlapping detection should age the
	// track past MaxAge=1 and drop it.
	if _, err := f.Update(ctx, nil); err != nil {
		t.Fatalf("Update 2: %v", err)
	}
	tracks, err := f.Update(ctx, nil)
	if err != nil {
		t.Fatalf("Update 3: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected the stale track to be dropped, got %+v", tracks)
	}
}

func TestUpdateRejectsDegenerateBox(t *testing.T) {
	f := NewFixture()
	if _, err := f.Update(context.Background(), []Detection{{Box: box(10, 10, 10, 10)}}); err == nil {
		t.Fatal("expected a degenerate box to be rejected")
	}
}

func TestUpdateWithClockStampsFirstAndLastSeen(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFixture(WithClock(func() time.Time { return now }))
	tracks, err := f.Update(context.Background(), []Detection{{Box: box(0, 0, 10, 10)}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !tracks[0].FirstSeen.Equal(now) || !tracks[0].LastSeen.Equal(now) {
		t.Fatalf("expected injected clock to stamp timestamps, got %+v", tracks[0])
	}
}
