package ring

import (
	"path/filepath"
	"testing"
)

func newTestPaths(t *testing.T) (dataPath, metaPath, lockPath string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "frames.ring"), filepath.Join(dir, "frames.ring.meta"), filepath.Join(dir, "frames.ring.lock")
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)

	writer, err := Create(dataPath, metaPath, lockPath, 256, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer writer.Close()

	idx, err := writer.WriteFrame([]byte("frame-one"))
	if err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected first write to land on slot 0, got %d", idx)
	}

	payload, ok := writer.ReadSlot(0, 3)
	if !ok {
		t.Fatal("expected to read back the written slot")
	}
	if string(payload) != "frame-one" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestWriteFrameWrapsAroundSlotCount(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 64, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	for i := 0; i < 5; i++ {
		if _, err := r.WriteFrame([]byte{byte(i)}); err != nil {
			t.Fatalf("WriteFrame %d: %v", i, err)
		}
	}
	if r.WriteIndex() != 1 {
		t.Fatalf("expected write index to wrap to 1 after 5 writes into 2 slots, got %d", r.WriteIndex())
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 32, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if _, err := r.WriteFrame(make([]byte, 64)); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func TestOpenReadsExistingSegment(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	writer, err := Create(dataPath, metaPath, lockPath, 128, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := writer.WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	writer.Close()

	reader, err := Open(dataPath, metaPath, lockPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	payload, ok := reader.ReadSlot(0, 3)
	if !ok || string(payload) != "hello" {
		t.Fatalf("expected to read back prior writer's frame, got %q ok=%v", payload, ok)
	}
}

func TestOpenReflectsWriterProgressAcrossHandles(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	writer, err := Create(dataPath, metaPath, lockPath, 64, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer writer.Close()

	reader, err := Open(dataPath, metaPath, lockPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := writer.WriteFrame([]byte("one")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := writer.WriteFrame([]byte("two")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// reader's WriteIndex/ReadLatest must reflect the writer's progress made
	// entirely after reader's Open call, proving the index is re-read from
	// the shared header rather than cached at Open time.
	if got := reader.WriteIndex(); got != writer.WriteIndex() {
		t.Fatalf("reader write index %d diverged from writer's %d", got, writer.WriteIndex())
	}
	payload, ok := reader.ReadLatest(3)
	if !ok || string(payload) != "two" {
		t.Fatalf("expected reader to observe the writer's latest frame, got %q ok=%v", payload, ok)
	}
}

func TestReadSlotRejectsOutOfRangeIndex(t *testing.T) {
	dataPath, metaPath, lockPath := newTestPaths(t)
	r, err := Create(dataPath, metaPath, lockPath, 64, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Close()

	if _, ok := r.ReadSlot(99, 3); ok {
		t.Fatal("expected out-of-range slot read to fail")
	}
}
