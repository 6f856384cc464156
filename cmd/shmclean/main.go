// Command shmclean unlinks shared-memory ring segments left behind by a
// crashed or killed ingestion process. It can run as a one-shot unlink of a
// named segment or as a periodic sweep over every *.meta.json sidecar in a
// directory, removing any whose owner_pid is no longer alive.
//
// Grounded on internal/replay.Cleaner's Run/RunOnce/Stats sweep loop,
// adapted from match-replay retention to shared-memory segment liveness.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ivis-core/internal/config"
	"ivis-core/internal/logging"
	"ivis-core/internal/ring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("shmclean", flag.ContinueOnError)
	dataName := fs.String("data-name", "", "unlink a single ring segment at this data path and exit")
	metaName := fs.String("meta-name", "", "the segment's binary metadata path (defaults to <data-name>.meta)")
	sweepDir := fs.String("sweep-dir", "", "periodically sweep every *.meta.json sidecar under this directory")
	interval := fs.Duration("interval", time.Minute, "sweep interval when --sweep-dir is set")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logCfg, err := config.LoadLogging("SHMCLEAN_LOG", "shmclean.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "shmclean: config error:", err)
		return 2
	}
	log, err := logging.New("shmclean", logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "shmclean: logger init failed:", err)
		return 1
	}

	if *dataName != "" {
		binMetaName := *metaName
		if binMetaName == "" {
			binMetaName = *dataName + ".meta"
		}
		if err := unlinkOne(*dataName, binMetaName, *dataName+".meta.json"); err != nil {
			log.Error("unlink failed", logging.Error(err), logging.String("data_name", *dataName))
			return 1
		}
		log.Info("unlinked ring segment", logging.String("data_name", *dataName))
		return 0
	}

	if *sweepDir == "" {
		fmt.Fprintln(os.Stderr, "shmclean: one of --data-name or --sweep-dir is required")
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	//1.- Perform an eager sweep so stale segments are reclaimed immediately on startup.
	sweepOnce(*sweepDir, log)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			//2.- Trigger periodic sweeps while the context remains active.
			sweepOnce(*sweepDir, log)
		}
	}
}

// unlinkOne removes a ring's data segment, its lock file, and any extra
// paths given (the binary metadata segment, the JSON discovery sidecar).
func unlinkOne(dataName string, extra ...string) error {
	var errs error
	paths := append([]string{dataName, dataName + ".lock"}, extra...)
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func sweepOnce(dir string, log *logging.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("sweep scan failed", logging.Error(err), logging.String("directory", dir))
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		meta, err := ring.ReadMetadata(path)
		if err != nil {
			log.Warn("sidecar read failed", logging.Error(err), logging.String("path", path))
			continue
		}
		if processAlive(meta.OwnerPID) {
			continue
		}
		if err := unlinkOne(meta.Name, meta.MetaName, path); err != nil {
			log.Warn("stale segment unlink failed", logging.Error(err), logging.String("name", meta.Name))
			continue
		}
		log.Info("unlinked stale ring segment", logging.String("name", meta.Name), logging.Int("owner_pid", meta.OwnerPID))
		removed++
	}
	log.Info("sweep complete", logging.Int("removed", removed), logging.String("directory", dir))
}

// processAlive reports whether pid still exists by sending the null signal,
// the standard liveness probe on POSIX systems.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
