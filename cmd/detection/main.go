// Command detection runs the consume -> validate -> stale-drop -> ring-read
// -> infer -> track -> publish main loop. Startup sequence mirrors
// cmd/ingestion: load config, construct logger, construct dependencies,
// install signal handlers, run, exit with a status code reflecting whether
// the loop stopped due to a fatal error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ivis-core/internal/busconn"
	"ivis-core/internal/config"
	"ivis-core/internal/consumer"
	"ivis-core/internal/detector"
	"ivis-core/internal/iviserr"
	"ivis-core/internal/logging"
	"ivis-core/internal/ring"
	"ivis-core/internal/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadDetect()
	if err != nil {
		fmt.Fprintln(os.Stderr, "detection: config error:", err)
		return 2
	}

	log, err := logging.New("detection", cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "detection: logger init failed:", err)
		return 1
	}

	r, err := ring.Open(cfg.Ring.DataName, cfg.Ring.MetaName, cfg.Ring.LockPath)
	if err != nil {
		log.Error("ring open failed", logging.Error(err))
		return 1
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	framesConn, err := busconn.Dial(ctx, cfg.Bus, cfg.Bus.FramesTopic)
	if err != nil {
		log.Error("frames bus dial failed", logging.Error(err))
		return 1
	}
	defer framesConn.Close()
	frames, err := framesConn.Subscribe(ctx, cfg.Bus.FramesTopic)
	if err != nil {
		log.Error("frames subscribe failed", logging.Error(err))
		return 1
	}

	resultsConn, err := busconn.Dial(ctx, cfg.Bus, cfg.Bus.ResultsTopic)
	if err != nil {
		log.Error("results bus dial failed", logging.Error(err))
		return 1
	}
	defer resultsConn.Close()

	//1.- The external object detector is reached only through detector.Detector;
	// no real model is wired into this repository, so a deterministic fixture
	// stands in until a concrete model-serving client is plugged in here.
	det := &detector.Fixture{Name: cfg.ModelName, Version: cfg.ModelVersion, Thresh: cfg.ModelThreshold}

	trk := tracker.NewFixture(tracker.WithIoUThreshold(cfg.MatchIoUThreshold))
	counters := iviserr.NewCounters()

	loop := consumer.New(consumer.Config{
		MaxFrameAgeMs:     int64(cfg.MaxFrameAgeMs),
		RingMaxRetries:    3,
		InferenceTimeout:  cfg.InferenceTimeout,
		ModelName:         cfg.ModelName,
		ModelVersion:      cfg.ModelVersion,
		ModelThreshold:    cfg.ModelThreshold,
		MatchIoUThreshold: cfg.MatchIoUThreshold,
	}, frames, resultsConn, r, det, trk, counters, log)

	log.Info("detection started", logging.String("model_name", cfg.ModelName))
	if ferr := loop.Run(ctx); ferr != nil {
		log.Error("detection loop exited with fatal error", logging.Error(ferr.Cause))
		return 1
	}
	log.Info("detection stopped")
	return 0
}
