// Command ingestion runs the capture -> select -> normalize -> fingerprint
// -> ring-write -> publish main loop. Startup sequence mirrors the
// teacher's main.go: load config, construct the logger, construct
// dependencies, install signal handlers, run, clean up, exit with a status
// code reflecting whether the loop stopped due to a fatal error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ivis-core/internal/bus"
	"ivis-core/internal/busconn"
	"ivis-core/internal/config"
	"ivis-core/internal/iviserr"
	"ivis-core/internal/logging"
	"ivis-core/internal/producer"
	"ivis-core/internal/producer/filesource"
	"ivis-core/internal/producer/frozen"
	"ivis-core/internal/producer/ratecontrol"
	"ivis-core/internal/producer/reconnect"
	"ivis-core/internal/producer/recordbuffer"
	"ivis-core/internal/ring"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, legacyColor, err := config.LoadIngest()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestion: config error:", err)
		return 2
	}

	log, err := logging.New("ingestion", cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestion: logger init failed:", err)
		return 1
	}
	if legacyColor {
		log.Warn("FRAME_COLOR is deprecated, use SOURCE_COLOR")
	}

	r, err := openRing(cfg)
	if err != nil {
		log.Error("ring open failed", logging.Error(err))
		return 1
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := busconn.Dial(ctx, cfg.Bus, cfg.Bus.FramesTopic)
	if err != nil {
		log.Error("bus dial failed", logging.Error(err))
		return 1
	}
	defer conn.Close()
	publisher := bus.NewDropPolicy(conn, cfg.Bus.QueueDepth)

	source, err := openSource(cfg)
	if err != nil {
		log.Error("source open failed", logging.Error(err))
		return 1
	}

	counters := iviserr.NewCounters()

	var adaptive *ratecontrol.AdaptiveController
	if cfg.AdaptiveFPS {
		adaptive = ratecontrol.New(ratecontrol.Config{
			MinFPS:        cfg.AdaptiveMinFPS,
			MaxFPS:        cfg.AdaptiveMaxFPS,
			Safety:        cfg.AdaptiveSafety,
			LagThreshold:  cfg.AdaptiveLagThreshold,
			LagHysteresis: cfg.AdaptiveLagHysteresis,
		}, cfg.TargetFPS)
	}
	lagCtl := ratecontrol.NewLagController(cfg.AdaptiveMinFPS, cfg.AdaptiveLagThreshold, cfg.AdaptiveLagHysteresis)

	var record *recordbuffer.Buffer
	if cfg.RecordBufferSeconds > 0 {
		record = recordbuffer.New(time.Duration(cfg.RecordBufferSeconds)*time.Second, 0, cfg.RecordJPEGQuality)
	}

	loopCfg := producer.Config{
		StreamID:      cfg.StreamID,
		CameraID:      cfg.CameraID,
		Width:         cfg.FrameWidth,
		Height:        cfg.FrameHeight,
		SourceIsRGB:   cfg.SourceColor == "rgb",
		SelectorMode:  cfg.SelectorMode,
		TargetFPS:     float64(cfg.TargetFPS),
		MemoryBackend: cfg.Ring.Backend,
		ROIRects:      cfg.ROIBoxes,
		ROIPolygons:   cfg.ROIPolygons,
		Frozen: frozen.Config{
			NoFrameTimeout:      cfg.Frozen.Timeout,
			RepeatHashCount:     cfg.Frozen.RepeatHashCount,
			PTSStuckCount:       cfg.Frozen.PTSStuckCount,
			TimestampStuckCount: cfg.Frozen.TimestampStuckCount,
		},
		Reconnect: reconnect.Config{
			MinDelay: cfg.Reconnect.MinBackoff,
			MaxDelay: cfg.Reconnect.MaxBackoff,
			Factor:   cfg.Reconnect.Factor,
			Jitter:   cfg.Reconnect.Jitter,
		},
		RecordMaxSeconds:  time.Duration(cfg.RecordBufferSeconds) * time.Second,
		RecordJPEGQuality: cfg.RecordJPEGQuality,
		Loop:              cfg.Loop,
	}

	loop, roiErrs := producer.New(loopCfg, source, r, publisher, counters, log, adaptive, lagCtl, record)
	for _, e := range roiErrs {
		log.Warn("roi configuration problem", logging.Error(e))
	}

	log.Info("ingestion started", logging.String("stream_id", cfg.StreamID), logging.String("source_type", cfg.SourceType))
	if ferr := loop.Run(ctx); ferr != nil {
		log.Error("ingestion loop exited with fatal error", logging.Error(ferr.Cause))
		return 1
	}
	log.Info("ingestion stopped", logging.String("stream_id", cfg.StreamID))
	return 0
}

func openRing(cfg config.IngestConfig) (*ring.Ring, error) {
	slotSize := uint32(cfg.FrameWidth * cfg.FrameHeight * 3)
	slotCount := uint32(cfg.Ring.SlotCount())
	r, err := ring.Open(cfg.Ring.DataName, cfg.Ring.MetaName, cfg.Ring.LockPath)
	if err == nil {
		return r, nil
	}
	r, err = ring.Create(cfg.Ring.DataName, cfg.Ring.MetaName, cfg.Ring.LockPath, slotSize, slotCount)
	if err != nil {
		return nil, err
	}
	_ = ring.WriteMetadata(cfg.Ring.DataName+".meta.json", ring.Metadata{
		SchemaVersion: ring.MetadataSchemaVersion,
		Name:          cfg.Ring.DataName,
		MetaName:      cfg.Ring.MetaName,
		SlotSize:      slotSize,
		SlotCount:     slotCount,
		OwnerPID:      os.Getpid(),
		CreatedAt:     time.Now(),
	})
	return r, nil
}

// openSource resolves --source-type/SOURCE_TYPE to a concrete
// producer.Source. Real webcam/RTSP capture requires a hardware or codec
// library no repo in the retrieval pack pulls in, so "webcam"/"rtsp"/"auto"
// fall back to a deterministic synthetic generator; "file" plays back a raw
// BGR8 capture from disk on a loop.
func openSource(cfg config.IngestConfig) (producer.Source, error) {
	if cfg.SourceType == "file" {
		if cfg.Source == "" {
			return nil, fmt.Errorf("ingestion: SOURCE_TYPE=file requires RTSP_URL to name a raw frame file")
		}
		frameBytes := cfg.FrameWidth * cfg.FrameHeight * 3
		return filesource.NewRaw(cfg.Source, frameBytes, float64(cfg.TargetFPS))
	}
	return filesource.NewSynthetic(cfg.FrameWidth, cfg.FrameHeight, float64(cfg.TargetFPS)), nil
}
