package config

import "strings"

const (
	// DefaultBusBackend selects the broadcast transport when none is configured.
	DefaultBusBackend = "ws"
	// DefaultBusFramesTopic is the logical topic frame contracts publish to.
	DefaultBusFramesTopic = "frames"
	// DefaultBusResultsTopic is the logical topic result contracts publish to.
	DefaultBusResultsTopic = "results"
	// DefaultBusQueueDepth bounds how many in-flight messages a publisher buffers
	// before reporting backpressure drops.
	DefaultBusQueueDepth = 64
)

// BusConfig configures how a process reaches the frame/result pub/sub bus.
type BusConfig struct {
	Backend      string
	Addr         string
	FramesTopic  string
	ResultsTopic string
	QueueDepth   int
	AuthToken    string
	RedisGroup   string
}

// LoadBus reads the bus fragment from the environment. prefix namespaces the
// address variable per process (e.g. "INGEST_BUS" vs "DETECT_BUS") while the
// topic names stay global so every process agrees on "frames"/"results".
func LoadBus(prefix, defaultAddr string) (BusConfig, error) {
	var probs problems
	cfg := BusConfig{
		Backend:      strings.ToLower(strings.TrimSpace(getString("BUS_BACKEND", DefaultBusBackend))),
		Addr:         strings.TrimSpace(getString(prefix+"_ADDR", defaultAddr)),
		FramesTopic:  strings.TrimSpace(getString("BUS_FRAMES_TOPIC", DefaultBusFramesTopic)),
		ResultsTopic: strings.TrimSpace(getString("BUS_RESULTS_TOPIC", DefaultBusResultsTopic)),
		QueueDepth:   getInt(&probs, "BUS_QUEUE_DEPTH", DefaultBusQueueDepth),
		AuthToken:    strings.TrimSpace(getString("BUS_AUTH_TOKEN", "")),
		RedisGroup:   strings.TrimSpace(getString("BUS_REDIS_GROUP", "ivis-consumers")),
	}
	switch cfg.Backend {
	case "ws", "redis", "tcp", "nats":
	default:
		probs.addf("BUS_BACKEND must be one of ws,redis,tcp,nats, got %q", cfg.Backend)
	}
	if cfg.QueueDepth <= 0 {
		probs.addf("BUS_QUEUE_DEPTH must be positive, got %d", cfg.QueueDepth)
	}
	return cfg, probs.err()
}
