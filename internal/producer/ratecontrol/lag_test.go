package ratecontrol

import "testing"

func TestLagControllerEngagesCapAtThreshold(t *testing.T) {
	l := NewLagController(2, 5, 0.3)
	if _, active := l.Observe(3); active {
		t.Fatal("expected no cap below threshold")
	}
	fps, active := l.Observe(5)
	if !active || fps != 2 {
		t.Fatalf("expected cap engaged at threshold, got fps=%d active=%v", fps, active)
	}
}

func TestLagControllerReleasesWithHysteresis(t *testing.T) {
	l := NewLagController(2, 10, 0.3) // release at <= 7
	l.Observe(10)
	if _, active := l.Observe(8); !active {
		t.Fatal("expected cap to remain engaged above release threshold")
	}
	if _, active := l.Observe(7); active {
		t.Fatal("expected cap released at or below release threshold")
	}
}
