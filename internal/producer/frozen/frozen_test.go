package frozen

import "testing"

func TestRepeatHashTripsAfterConfiguredRuns(t *testing.T) {
	d := New(Config{RepeatHashCount: 3})
	if r := d.Observe(1, 1, 0, "abc"); r != ReasonNone {
		t.Fatalf("expected no trip on first sample, got %v", r)
	}
	if r := d.Observe(2, 2, 1, "abc"); r != ReasonNone {
		t.Fatalf("expected no trip on second identical sample, got %v", r)
	}
	if r := d.Observe(3, 3, 2, "abc"); r != ReasonRepeatHash {
		t.Fatalf("expected repeat_hash trip on third identical sample, got %v", r)
	}
}

func TestDistinctFingerprintResetsRun(t *testing.T) {
	d := New(Config{RepeatHashCount: 2})
	d.Observe(1, 1, 0, "abc")
	if r := d.Observe(2, 2, 1, "xyz"); r != ReasonNone {
		t.Fatalf("expected no trip after distinct fingerprint, got %v", r)
	}
}

func TestPTSStuckTrips(t *testing.T) {
	d := New(Config{PTSStuckCount: 2, RepeatHashCount: 1000, TimestampStuckCount: 1000})
	d.Observe(5, 1, 0, "a")
	if r := d.Observe(5, 2, 1, "b"); r != ReasonPTSStuck {
		t.Fatalf("expected pts_stuck trip, got %v", r)
	}
}

func TestCheckIdleTripsOnTimeout(t *testing.T) {
	d := New(Config{NoFrameTimeout: 100_000_000}) // 100ms in ns via time.Duration below
	d.Observe(1, 1, 0, "a")
	if r := d.CheckIdle(50); r != ReasonNone {
		t.Fatalf("expected no trip within timeout, got %v", r)
	}
	if r := d.CheckIdle(200); r != ReasonNoFrameTimeout {
		t.Fatalf("expected no_frame_timeout trip, got %v", r)
	}
}

func TestResetClearsCounters(t *testing.T) {
	d := New(Config{RepeatHashCount: 2})
	d.Observe(1, 1, 0, "a")
	d.Observe(2, 2, 1, "a")
	d.Reset()
	if r := d.Observe(3, 3, 2, "a"); r != ReasonNone {
		t.Fatalf("expected reset to clear run counters, got %v", r)
	}
}
