package ring

import "testing"

func TestReadLatestReturnsMostRecentWrite(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 64, 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if _, err := r.WriteFrame([]byte("first")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := r.WriteFrame([]byte("second")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	payload, ok := r.ReadLatest(3)
	if !ok || string(payload) != "second" {
		t.Fatalf("expected latest write 'second', got %q ok=%v", payload, ok)
	}
}

func TestReadLatestFailsOnEmptyRing(t *testing.T) {
	r := &Ring{slotCount: 0}
	if _, ok := r.ReadLatest(3); ok {
		t.Fatal("expected empty ring to report no latest frame")
	}
}
