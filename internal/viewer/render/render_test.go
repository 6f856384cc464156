package render

import (
	"bytes"
	"image/jpeg"
	"testing"

	"ivis-core/internal/contracts"
)

func solidBGR(w, h int, b, g, r byte) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		buf[i*3] = b
		buf[i*3+1] = g
		buf[i*3+2] = r
	}
	return buf
}

func TestFrameProducesDecodableJPEG(t *testing.T) {
	bgr := solidBGR(16, 16, 10, 20, 30)
	classID := 1
	out, err := Frame(bgr, 16, 16, []contracts.Detection{
		{BBox: [4]float64{1, 1, 8, 8}, Confidence: 0.9, ClassID: &classID, TrackID: "t1"},
	}, Options{FPS: 30, InferenceMs: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("expected decodable JPEG, got error: %v", err)
	}
}

func TestFrameHandlesNoDetections(t *testing.T) {
	bgr := solidBGR(8, 8, 0, 0, 0)
	out, err := Frame(bgr, 8, 8, nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty JPEG output")
	}
}

func TestFrameClampsOutOfBoundsBoxes(t *testing.T) {
	bgr := solidBGR(4, 4, 0, 0, 0)
	classID := 2
	out, err := Frame(bgr, 4, 4, []contracts.Detection{
		{BBox: [4]float64{-10, -10, 100, 100}, ClassID: &classID},
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error with out-of-bounds box: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}
