package config

import (
	"strings"
	"time"
)

const (
	// DefaultShmName is the default POSIX shared-memory data segment name.
	DefaultShmName = "/ivis_frame_ring"
	// DefaultShmMetaName is the default POSIX shared-memory metadata segment name.
	DefaultShmMetaName = "/ivis_frame_ring.meta"
	// DefaultShmBufferBytes sizes each ring slot when the frame dimensions are unknown upfront.
	DefaultShmBufferBytes = 8 << 20
	// DefaultShmCacheSeconds bounds how long the ring retains frames for late readers.
	DefaultShmCacheSeconds = 2
	// DefaultShmCacheFPS estimates the producer frame rate when sizing the slot count.
	DefaultShmCacheFPS = 15
)

// RingConfig configures the shared-memory ring shared by the producer and
// every consumer attaching to it.
type RingConfig struct {
	Backend      string
	DataName     string
	MetaName     string
	BufferBytes  int
	CacheSeconds int
	CacheFPS     int
	LockPath     string
}

// SlotCount derives the number of ring slots from the configured cache window.
func (r RingConfig) SlotCount() int {
	count := r.CacheSeconds * r.CacheFPS
	if count < 1 {
		count = 1
	}
	return count
}

// LoadRing reads the ring fragment from the environment.
func LoadRing() (RingConfig, error) {
	var probs problems
	cfg := RingConfig{
		Backend:      strings.TrimSpace(getString("MEMORY_BACKEND", "shm")),
		DataName:     strings.TrimSpace(getString("SHM_NAME", DefaultShmName)),
		MetaName:     strings.TrimSpace(getString("SHM_META_NAME", DefaultShmMetaName)),
		BufferBytes:  getInt(&probs, "SHM_BUFFER_BYTES", DefaultShmBufferBytes),
		CacheSeconds: getInt(&probs, "SHM_CACHE_SECONDS", DefaultShmCacheSeconds),
		CacheFPS:     getInt(&probs, "SHM_CACHE_FPS", DefaultShmCacheFPS),
	}
	cfg.LockPath = cfg.DataName + ".lock"
	if cfg.BufferBytes <= 0 {
		probs.addf("SHM_BUFFER_BYTES must be positive, got %d", cfg.BufferBytes)
	}
	if cfg.CacheSeconds <= 0 {
		probs.addf("SHM_CACHE_SECONDS must be positive, got %d", cfg.CacheSeconds)
	}
	if cfg.CacheFPS <= 0 {
		probs.addf("SHM_CACHE_FPS must be positive, got %d", cfg.CacheFPS)
	}
	return cfg, probs.err()
}

// ReconnectConfig tunes the producer's exponential reconnect backoff.
type ReconnectConfig struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Factor     float64
	Jitter     float64
}

// FrozenStreamConfig tunes the producer's frozen-stream detector.
type FrozenStreamConfig struct {
	Timeout             time.Duration
	RepeatHashCount     int
	PTSStuckCount       int
	TimestampStuckCount int
}
