// Command liveview runs the three-worker viewer loop (frame subscriber,
// result subscriber, ring-fallback poller) and serves the annotated output
// as an MJPEG HTTP stream plus a JSON health endpoint. HTTP handler
// registration follows the teacher's buildHandler/mux.HandleFunc shape from
// go-broker's main.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ivis-core/internal/busconn"
	"ivis-core/internal/config"
	"ivis-core/internal/logging"
	"ivis-core/internal/ring"
	"ivis-core/internal/viewer"
	"ivis-core/internal/viewer/cache"
)

const mjpegBoundary = "ivisframe"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadView()
	if err != nil {
		fmt.Fprintln(os.Stderr, "liveview: config error:", err)
		return 2
	}

	log, err := logging.New("liveview", cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "liveview: logger init failed:", err)
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
	results, err := resultsConn.Subscribe(ctx, cfg.Bus.ResultsTopic)
	if err != nil {
		log.Error("results subscribe failed", logging.Error(err))
		return 1
	}

	correlationCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)

	loop := viewer.New(viewer.Config{
		MaxResultAgeMs:      int64(cfg.MaxResultAgeMs),
		RingMaxRetries:      3,
		FallbackIdleTimeout: cfg.RingFallbackAfter,
		FallbackPollEvery:   100 * time.Millisecond,
		JPEGQuality:         cfg.JPEGQuality,
	}, frames, results, r, correlationCache, nil, log)

	go loop.Run(ctx)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: buildHandler(loop)}
	go func() {
		<-ctx.Done()
		loop.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("liveview started", logging.String("http_addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("liveview server terminated", logging.Error(err))
		return 1
	}
	log.Info("liveview stopped")
	return 0
}

func buildHandler(loop *viewer.Loop) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream.mjpeg", mjpegHandler(loop))
	mux.HandleFunc("/healthz", healthzHandler(loop))
	return mux
}

// mjpegHandler serves a standard multipart/x-mixed-replace stream, polling
// the shared state at a fixed cadence rather than pushing on render: the
// handler does not know when State.SetRendered last fired and a short poll
// interval is simpler than plumbing a per-connection notification channel.
func mjpegHandler(loop *viewer.Loop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		ticker := time.NewTicker(33 * time.Millisecond)
		defer ticker.Stop()
		var lastLen int
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				jpeg := loop.State().Rendered()
				if len(jpeg) == 0 || len(jpeg) == lastLen {
					continue
				}
				lastLen = len(jpeg)
				fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg))
				if _, err := w.Write(jpeg); err != nil {
					return
				}
				fmt.Fprint(w, "\r\n")
				flusher.Flush()
			}
		}
	}
}

type healthzResponse struct {
	Status   string `json:"status"`
	HasFrame bool   `json:"has_frame"`
}

func healthzHandler(loop *viewer.Loop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, hasFrame := loop.State().Frame()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthzResponse{Status: "ok", HasFrame: hasFrame})
	}
}
