package selector

import "testing"

func TestClockAdmitsFirstSampleThenGatesByInterval(t *testing.T) {
	c := NewClock(10) // 100ms interval
	if !c.Allow(0, 0) {
		t.Fatal("expected first sample admitted")
	}
	if c.Allow(50, 0) {
		t.Fatal("expected sample within interval to be rejected")
	}
	if !c.Allow(100, 0) {
		t.Fatal("expected sample at exact interval boundary admitted")
	}
}

func TestClockOneSecondWindowStaysWithinOneFPS(t *testing.T) {
	c := NewClock(10)
	admitted := 0
	for ms := int64(0); ms < 1000; ms++ {
		if c.Allow(ms, 0) {
			admitted++
		}
	}
	if admitted < 9 || admitted > 11 {
		t.Fatalf("expected [9,11] admitted frames for 10fps/1s window, got %d", admitted)
	}
}

func TestPTSRequiresMonotonicAdvance(t *testing.T) {
	p := NewPTS(10)
	if !p.Allow(0, 1000) {
		t.Fatal("expected first sample admitted")
	}
	if p.Allow(0, 1050) {
		t.Fatal("expected sample within interval rejected")
	}
	if p.Allow(0, 900) {
		t.Fatal("expected non-increasing pts rejected")
	}
	if !p.Allow(0, 1100) {
		t.Fatal("expected sample at interval boundary admitted")
	}
}

func TestEffectiveFPSAppliesLagCap(t *testing.T) {
	if got := EffectiveFPS(30, 5, true); got != 5 {
		t.Fatalf("expected lag cap to win, got %f", got)
	}
	if got := EffectiveFPS(30, 50, true); got != 30 {
		t.Fatalf("expected base target to win, got %f", got)
	}
	if got := EffectiveFPS(0, 0, false); got != 1 {
		t.Fatalf("expected floor of 1, got %f", got)
	}
}
