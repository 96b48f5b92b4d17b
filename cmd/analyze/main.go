package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/examlens/internal/app"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/ingest"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

type line struct {
	File    string          `json:"file"`
	RunID   string          `json:"run_id,omitempty"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dir := flag.String("dir", "", "analyze every pdf/txt under this directory")
	persist := flag.Bool("store", false, "write outcomes to the configured store")
	logLevel := flag.String("log-level", "warn", "debug | info | warn | error")
	flag.Parse()

	logger := app.NewLogger(*logLevel)

	var paths []string
	switch {
	case *dir != "":
		found, stats, err := ingest.ScanDirectory(*dir, true)
		if err != nil {
			logger.Error("scan directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("scan.ok", "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)
		paths = found
	case flag.NArg() == 1:
		paths = []string{flag.Arg(0)}
	default:
		fmt.Fprintln(os.Stderr, "usage: analyze [-config file] [-store] <exam.pdf|exam.txt>")
		fmt.Fprintln(os.Stderr, "       analyze [-config file] [-store] -dir <directory>")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(true); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store repository.ResultStore
	if !*persist {
		store = repository.NewMemoryStore()
	}
	p, err := app.Build(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	var (
		mu     sync.Mutex
		failed bool
		enc    = json.NewEncoder(os.Stdout)
	)
	// a single-file run exits non-zero when its outcome is an error record
	emit := func(l line, outcomeIsError bool) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(l)
		if l.Error != "" || (outcomeIsError && len(paths) == 1) {
			failed = true
		}
	}

	maxBytes := int64(cfg.Server.MaxUploadMB) << 20
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Pipeline.Workers)
	for _, path := range paths {
		g.Go(func() error {
			doc, err := ingest.FromPath(path, maxBytes)
			if err != nil {
				emit(line{File: path, Error: err.Error()}, false)
				return nil
			}
			runCtx, cancel := common.WithTimeout(gctx, cfg.Pipeline.RunTimeout)
			defer cancel()
			out, err := p.Orchestrator.Run(runCtx, uuid.NewString(), doc)
			if err != nil {
				emit(line{File: path, Error: err.Error()}, false)
				return nil
			}
			b, err := out.Document()
			if err != nil {
				emit(line{File: path, Error: err.Error()}, false)
				return nil
			}
			emit(line{File: path, RunID: out.RunID, Outcome: b}, out.IsError())
			return nil
		})
	}
	_ = g.Wait()
	if failed {
		os.Exit(1)
	}
}
