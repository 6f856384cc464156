package ring

import "testing"

func TestReadSlotAtDetectsOverwriteMiss(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 64, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	idx, err := r.WriteFrame([]byte("first"))
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	gen, ok := r.CurrentGeneration(idx)
	if !ok {
		t.Fatal("expected CurrentGeneration to succeed")
	}

	payload, ok := r.ReadSlotAt(idx, gen, 3)
	if !ok || string(payload) != "first" {
		t.Fatalf("expected immediate read to succeed, got %q ok=%v", payload, ok)
	}

	// Overwrite the same slot: wrap around with slot_count=2 writes to land
	// back on idx and bump the generation past the captured snapshot.
	if _, err := r.WriteFrame([]byte("second")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := r.WriteFrame([]byte("third")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if _, ok := r.ReadSlotAt(idx, gen, 3); ok {
		t.Fatal("expected stale generation read to report an overwrite miss")
	}
}

func TestCurrentGenerationRejectsOutOfRangeIndex(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 64, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if _, ok := r.CurrentGeneration(99); ok {
		t.Fatal("expected out-of-range index to fail")
	}
}
