// Package filesource provides producer.Source implementations for the two
// capture modes this module can honor without a real camera or RTSP
// decoder, both genuinely external collaborators (codec/hardware access)
// outside this repository's scope: a raw-frame file reader (io.EOF at the
// end of the file; Rewind restarts it) for
// --source-type file, and a deterministic synthetic generator standing in
// for --source-type webcam/rtsp/auto when no real capture backend is wired.
// Grounded on internal/simulation.Loop's fixed-size synthetic tick payload.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"ivis-core/internal/producer"
)

// Raw reads a single raw BGR8 frame from a file on every Next call. Once the
// file is exhausted it reports io.EOF to the caller, which decides — per its
// --loop/--no-loop setting — whether to Rewind and keep playing or to treat
// end of stream as fatal; Raw itself never rewinds on its own.
type Raw struct {
	path       string
	frameBytes int
	targetFPS  float64
	file       *os.File
	seq        int64
}

// NewRaw opens path, a flat file of back-to-back frameBytes-sized raw BGR8
// frames, for repeated playback at targetFPS.
func NewRaw(path string, frameBytes int, targetFPS float64) (*Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filesource: open %s: %w", path, err)
	}
	return &Raw{path: path, frameBytes: frameBytes, targetFPS: targetFPS, file: f}, nil
}

func (r *Raw) IsFile() bool { return true }

// Next reads the next frameBytes chunk, reporting io.EOF once the file is
// exhausted rather than rewinding itself, so the caller's loop can apply its
// own --loop/--no-loop policy.
func (r *Raw) Next(ctx context.Context) (producer.Packet, bool, error) {
	buf := make([]byte, r.frameBytes)
	n, err := io.ReadFull(r.file, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return producer.Packet{}, false, io.EOF
		}
		return producer.Packet{}, false, fmt.Errorf("filesource: reading %s: %w", r.path, err)
	}
	now := time.Now()
	r.seq++
	ptsMs := int64(float64(r.seq) * 1000 / r.targetFPS)
	return producer.Packet{Payload: buf[:n], PTSMs: ptsMs, WallMs: now.UnixMilli(), MonoMs: now.UnixNano() / int64(time.Millisecond)}, true, nil
}

// Rewind seeks back to the start of the file.
func (r *Raw) Rewind(ctx context.Context) error {
	_, err := r.file.Seek(0, io.SeekStart)
	return err
}

// Reconnect is a no-op for a local file; there is no remote endpoint to
// re-dial.
func (r *Raw) Reconnect(ctx context.Context) error { return nil }

// Synthetic generates a fixed-size solid-color frame on every tick,
// standing in for a webcam or RTSP source in an environment with no camera
// hardware or codec library wired in. It never returns io.EOF.
type Synthetic struct {
	width, height int
	targetFPS     float64
	seq           int64
}

// NewSynthetic constructs a generator producing width x height BGR8 frames.
func NewSynthetic(width, height int, targetFPS float64) *Synthetic {
	return &Synthetic{width: width, height: height, targetFPS: targetFPS}
}

func (s *Synthetic) IsFile() bool { return false }

func (s *Synthetic) Next(ctx context.Context) (producer.Packet, bool, error) {
	s.seq++
	buf := make([]byte, s.width*s.height*3)
	shade := byte((s.seq * 4) % 256)
	for i := range buf {
		buf[i] = shade
	}
	now := time.Now()
	ptsMs := int64(float64(s.seq) * 1000 / s.targetFPS)
	return producer.Packet{Payload: buf, PTSMs: ptsMs, WallMs: now.UnixMilli(), MonoMs: now.UnixNano() / int64(time.Millisecond)}, true, nil
}

func (s *Synthetic) Rewind(ctx context.Context) error { s.seq = 0; return nil }

func (s *Synthetic) Reconnect(ctx context.Context) error { return nil }
