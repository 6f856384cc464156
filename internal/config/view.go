package config

import "time"

// ViewConfig captures every runtime tunable for the live-view (viewer) process.
type ViewConfig struct {
	HTTPAddr          string
	MaxResultAgeMs    int
	RingFallbackAfter time.Duration
	JPEGQuality       int

	CacheMaxEntries int
	CacheTTL        time.Duration

	Ring    RingConfig
	Bus     BusConfig
	Logging LoggingConfig
}

// LoadView reads viewer configuration from the environment.
func LoadView() (ViewConfig, error) {
	var probs problems
	cfg := ViewConfig{
		HTTPAddr:          getString("VIEW_HTTP_ADDR", ":8088"),
		MaxResultAgeMs:    getInt(&probs, "MAX_RESULT_AGE_MS", 500),
		RingFallbackAfter: getDuration(&probs, "VIEW_RING_FALLBACK_AFTER", 500*time.Millisecond),
		JPEGQuality:       getInt(&probs, "VIEW_JPEG_QUALITY", 80),
		CacheMaxEntries:   getInt(&probs, "CORRELATION_CACHE_MAX_ENTRIES", 2000),
		CacheTTL:          getDuration(&probs, "CORRELATION_CACHE_TTL", 60*time.Second),
	}

	ring, err := LoadRing()
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Ring = ring

	bus, err := LoadBus("VIEW_BUS", ":0")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Bus = bus

	logging, err := LoadLogging("VIEW_LOG", "liveview.log")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Logging = logging

	if cfg.CacheMaxEntries <= 0 {
		probs.addf("CORRELATION_CACHE_MAX_ENTRIES must be positive, got %d", cfg.CacheMaxEntries)
	}

	return cfg, probs.err()
}
