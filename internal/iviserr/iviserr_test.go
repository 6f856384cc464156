package iviserr

import (
	"errors"
	"testing"

	"ivis-core/internal/contracts"
)

func TestCountersObserveAndSnapshot(t *testing.T) {
	c := NewCounters()
	c.Observe(contracts.ReasonStale)
	c.Observe(contracts.ReasonStale)
	c.Observe(contracts.ReasonShmMiss)

	snap := c.Snapshot()
	if snap[contracts.ReasonStale] != 2 {
		t.Fatalf("expected 2 stale drops, got %d", snap[contracts.ReasonStale])
	}
	if snap[contracts.ReasonShmMiss] != 1 {
		t.Fatalf("expected 1 shm_miss drop, got %d", snap[contracts.ReasonShmMiss])
	}
	if total := c.Total(); total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
}

func TestCountersForget(t *testing.T) {
	c := NewCounters()
	c.Observe(contracts.ReasonLag)
	c.Forget(contracts.ReasonLag)
	if total := c.Total(); total != 0 {
		t.Fatalf("expected 0 after forget, got %d", total)
	}
}

func TestCountersObserveIgnoresEmptyReason(t *testing.T) {
	c := NewCounters()
	c.Observe("")
	if snap := c.Snapshot(); snap != nil {
		t.Fatalf("expected nil snapshot, got %v", snap)
	}
}

func TestErrorWrapsCauseAndReason(t *testing.T) {
	cause := errors.New("boom")
	err := NewDrop(contracts.ReasonBadBBox, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to unwrap to cause")
	}
	if err.Kind != Drop {
		t.Fatalf("expected Drop kind, got %v", err.Kind)
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestNewFatalAndSideband(t *testing.T) {
	fatal := NewFatal(errors.New("watchdog tripped"))
	if fatal.Kind != Fatal {
		t.Fatalf("expected Fatal kind, got %v", fatal.Kind)
	}
	sideband := NewSideband(errors.New("legacy FRAME_COLOR used"))
	if sideband.Kind != Sideband {
		t.Fatalf("expected Sideband kind, got %v", sideband.Kind)
	}
}
