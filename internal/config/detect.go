package config

import "time"

// DetectConfig captures every runtime tunable for the detection (consumer) process.
type DetectConfig struct {
	MaxFrameAgeMs     int
	InferenceTimeout  time.Duration
	MatchIoUThreshold float64
	ModelName         string
	ModelVersion      string
	ModelThreshold    float64

	Ring    RingConfig
	Bus     BusConfig
	Logging LoggingConfig
}

// LoadDetect reads detection configuration from the environment.
func LoadDetect() (DetectConfig, error) {
	var probs problems
	cfg := DetectConfig{
		MaxFrameAgeMs:     getInt(&probs, "MAX_FRAME_AGE_MS", 1000),
		InferenceTimeout:  getDuration(&probs, "INFERENCE_TIMEOUT", 2*time.Second),
		MatchIoUThreshold: getFloat(&probs, "MATCH_IOU_THRESHOLD", 0.3),
		ModelName:         getString("MODEL_NAME", "external-detector"),
		ModelVersion:      getString("MODEL_VERSION", "0"),
		ModelThreshold:    getFloat(&probs, "MODEL_THRESHOLD", 0.25),
	}

	ring, err := LoadRing()
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Ring = ring

	bus, err := LoadBus("DETECT_BUS", ":0")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Bus = bus

	logging, err := LoadLogging("DETECT_LOG", "detection.log")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Logging = logging

	if cfg.MatchIoUThreshold < 0 || cfg.MatchIoUThreshold > 1 {
		probs.addf("MATCH_IOU_THRESHOLD must be in [0, 1], got %f", cfg.MatchIoUThreshold)
	}

	return cfg, probs.err()
}
