package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// IngestConfig captures every runtime tunable for the ingestion (producer) process.
type IngestConfig struct {
	Source     string
	SourceType string
	Webcam     int

	StreamID string
	CameraID string

	TargetFPS   int
	FrameWidth  int
	FrameHeight int
	SourceColor string

	SelectorMode string

	AdaptiveFPS           bool
	AdaptiveMinFPS        int
	AdaptiveMaxFPS        int
	AdaptiveSafety        float64
	AdaptiveLagThreshold  int
	AdaptiveLagHysteresis float64

	Reconnect ReconnectConfig
	Frozen    FrozenStreamConfig

	MaxFrameAgeMs int

	// Loop controls what a file source does at end of stream: true rewinds
	// and replays from the start, false exits the ingestion loop fatally.
	Loop bool

	ROIBoxes    string
	ROIPolygons string

	RecordBufferSeconds int
	RecordJPEGQuality   int

	Ring    RingConfig
	Bus     BusConfig
	Logging LoggingConfig
}

// LoadIngest reads ingestion configuration from the environment, including the
// FRAME_COLOR legacy alias: when SOURCE_COLOR is unset but FRAME_COLOR is
// present, its value is adopted and a deprecation warning is surfaced to the
// caller via the returned bool.
func LoadIngest() (IngestConfig, bool, error) {
	var probs problems
	legacyColor := false

	sourceColor := strings.TrimSpace(os.Getenv("SOURCE_COLOR"))
	if sourceColor == "" {
		if legacy := strings.TrimSpace(os.Getenv("FRAME_COLOR")); legacy != "" {
			sourceColor = legacy
			legacyColor = true
		}
	}
	if sourceColor == "" {
		sourceColor = "bgr"
	}

	cfg := IngestConfig{
		Source:     strings.TrimSpace(getString("RTSP_URL", "")),
		SourceType: strings.ToLower(strings.TrimSpace(getString("SOURCE_TYPE", "auto"))),
		Webcam:     getInt(&probs, "WEBCAM", 0),

		StreamID: strings.TrimSpace(getString("STREAM_ID", "stream-0")),
		CameraID: strings.TrimSpace(getString("CAMERA_ID", "camera-0")),

		TargetFPS:   getInt(&probs, "TARGET_FPS", 15),
		FrameWidth:  getInt(&probs, "FRAME_WIDTH", 640),
		FrameHeight: getInt(&probs, "FRAME_HEIGHT", 480),
		SourceColor: strings.ToLower(sourceColor),

		SelectorMode: strings.ToLower(strings.TrimSpace(getString("SELECTOR_MODE", "clock"))),

		AdaptiveFPS:           getBool(&probs, "ADAPTIVE_FPS", true),
		AdaptiveMinFPS:        getInt(&probs, "ADAPTIVE_MIN_FPS", 1),
		AdaptiveMaxFPS:        getInt(&probs, "ADAPTIVE_MAX_FPS", 30),
		AdaptiveSafety:        getFloat(&probs, "ADAPTIVE_SAFETY", 1.3),
		AdaptiveLagThreshold:  getInt(&probs, "ADAPTIVE_LAG_THRESHOLD", 5),
		AdaptiveLagHysteresis: getFloat(&probs, "ADAPTIVE_LAG_HYSTERESIS", 0.3),

		MaxFrameAgeMs: getInt(&probs, "MAX_FRAME_AGE_MS", 1000),

		Loop: getBool(&probs, "LOOP", true),

		ROIBoxes:    strings.TrimSpace(os.Getenv("ROI_BOXES")),
		ROIPolygons: strings.TrimSpace(os.Getenv("ROI_POLYGONS")),

		RecordBufferSeconds: getInt(&probs, "RECORD_BUFFER_SECONDS", 0),
		RecordJPEGQuality:   getInt(&probs, "RECORD_JPEG_QUALITY", 80),
	}

	cfg.Reconnect = ReconnectConfig{
		MinBackoff: durationFromSeconds(&probs, "RTSP_RECONNECT_MIN_SEC", os.Getenv("RTSP_RECONNECT_MIN_SEC"), time.Second),
		MaxBackoff: durationFromSeconds(&probs, "RTSP_RECONNECT_MAX_SEC", os.Getenv("RTSP_RECONNECT_MAX_SEC"), 30*time.Second),
		Factor:     getFloat(&probs, "RTSP_RECONNECT_FACTOR", 2.0),
		Jitter:     getFloat(&probs, "RTSP_RECONNECT_JITTER", 0.2),
	}

	cfg.Frozen = FrozenStreamConfig{
		Timeout:             durationFromSeconds(&probs, "RTSP_FROZEN_TIMEOUT_SEC", os.Getenv("RTSP_FROZEN_TIMEOUT_SEC"), 10*time.Second),
		RepeatHashCount:     getInt(&probs, "RTSP_FROZEN_HASH_COUNT", 30),
		PTSStuckCount:       getInt(&probs, "RTSP_FROZEN_PTS_COUNT", 30),
		TimestampStuckCount: getInt(&probs, "RTSP_FROZEN_TIMESTAMP_COUNT", 30),
	}

	ring, err := LoadRing()
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Ring = ring

	bus, err := LoadBus("INGEST_BUS", ":0")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Bus = bus

	logging, err := LoadLogging("INGEST_LOG", "ingestion.log")
	if err != nil {
		probs.addf("%s", err.Error())
	}
	cfg.Logging = logging

	switch cfg.SourceType {
	case "auto", "file", "webcam", "rtsp":
	default:
		probs.addf("SOURCE_TYPE must be one of auto,file,webcam,rtsp, got %q", cfg.SourceType)
	}
	switch cfg.SelectorMode {
	case "clock", "pts":
	default:
		probs.addf("SELECTOR_MODE must be clock or pts, got %q", cfg.SelectorMode)
	}
	if cfg.TargetFPS <= 0 {
		probs.addf("TARGET_FPS must be positive, got %d", cfg.TargetFPS)
	}
	if cfg.FrameWidth < 16 || cfg.FrameWidth > 10000 {
		probs.addf("FRAME_WIDTH must be in [16, 10000], got %d", cfg.FrameWidth)
	}
	if cfg.FrameHeight < 16 || cfg.FrameHeight > 10000 {
		probs.addf("FRAME_HEIGHT must be in [16, 10000], got %d", cfg.FrameHeight)
	}

	return cfg, legacyColor, probs.err()
}

// durationFromSeconds parses an environment value expressed in whole/fractional
// seconds (the convention spec §6's _SEC suffixed variables use).
func durationFromSeconds(probs *problems, key, raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		probs.addf("%s must be a non-negative number of seconds, got %q", key, raw)
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
