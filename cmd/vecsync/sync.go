// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	vecerrors "github.com/kraklabs/vecsync/internal/errors"
	"github.com/kraklabs/vecsync/internal/ui"
	"github.com/kraklabs/vecsync/pkg/syncore"
	"github.com/kraklabs/vecsync/pkg/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

func runSync(globals GlobalFlags, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	input := fs.String("input", "-", "path to the newline-delimited change record file, or - for stdin")
	collection := fs.String("collection", "", "vector-store collection name")
	repo := fs.String("repo", "", "repository identifier attached to legacy plain-path records")
	rootDir := fs.String("root-dir", "", "base directory content_ref paths are resolved against")
	checkpointPath := fs.String("checkpoint", "", "path to the checkpoint database")
	storeURL := fs.String("vector-store-url", "", "base URL of the vector-store service")
	storeKey := fs.String("vector-store-key", "", "bearer token for the vector-store service")
	shards := fs.Int("shards", 0, "number of concurrent shard workers")
	batchObjects := fs.Int("batch-size", 0, "max objects per vector-store batch")
	maxFileSize := fs.Int64("max-file-size", 0, "max source size in bytes before a file is skipped")
	dryRun := fs.Bool("dry-run", false, "resolve and batch without writing to the vector store")
	resume := fs.Bool("resume", true, "reuse an existing checkpoint database for this path instead of starting over; pass --resume=false to discard it")
	force := fs.Bool("force", false, "discard the existing checkpoint and reindex from scratch")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090")
	if err := fs.Parse(args); err != nil {
		return vecerrors.Usage(err)
	}

	cfg := syncore.DefaultConfig()
	var err error
	cfg, err = syncore.LoadYAMLFile(cfg, globals.ConfigFile)
	if err != nil {
		return vecerrors.Usage(err)
	}
	cfg = syncore.ApplyEnv(cfg)

	applyFlag(fs, "collection", collection, &cfg.Collection)
	applyFlag(fs, "repo", repo, &cfg.Repo)
	applyFlag(fs, "root-dir", rootDir, &cfg.RootDir)
	applyFlag(fs, "checkpoint", checkpointPath, &cfg.CheckpointPath)
	applyFlag(fs, "vector-store-url", storeURL, &cfg.VectorStoreURL)
	applyFlag(fs, "vector-store-key", storeKey, &cfg.VectorStoreKey)
	applyIntFlag(fs, "shards", shards, &cfg.Shards)
	applyIntFlag(fs, "batch-size", batchObjects, &cfg.BatchMaxObjects)
	applyInt64Flag(fs, "max-file-size", maxFileSize, &cfg.MaxFileSizeBytes)
	if fs.Changed("dry-run") {
		cfg.DryRun = *dryRun
	}
	if fs.Changed("resume") {
		cfg.Resume = *resume
	}
	if fs.Changed("force") {
		cfg.Force = *force
	}
	applyFlag(fs, "metrics-addr", metricsAddr, &cfg.MetricsAddr)
	cfg.JSON = globals.JSON
	cfg.Quiet = globals.Quiet
	cfg.NoColor = globals.NoColor

	if err := cfg.Validate(); err != nil {
		return vecerrors.Usage(err)
	}

	logger := newLogger(globals.Debug, cfg.JSON)

	_, statErr := os.Stat(cfg.CheckpointPath)
	hadPriorState := statErr == nil

	checkpoint, err := syncore.OpenCheckpointStore(cfg.CheckpointPath)
	if err != nil {
		return vecerrors.Fatal(fmt.Errorf("opening checkpoint store: %w", err))
	}
	defer checkpoint.Close()

	switch {
	case cfg.Force:
		if err := checkpoint.Reset(); err != nil {
			return vecerrors.Fatal(fmt.Errorf("resetting checkpoint: %w", err))
		}
		logger.Info("checkpoint reset", "path", cfg.CheckpointPath)
	case !cfg.Resume && hadPriorState:
		if err := checkpoint.Reset(); err != nil {
			return vecerrors.Fatal(fmt.Errorf("resetting checkpoint: %w", err))
		}
		logger.Info("resume disabled, discarding prior checkpoint state", "path", cfg.CheckpointPath)
	case hadPriorState:
		n, err := checkpoint.FailureCount()
		if err != nil {
			return vecerrors.Fatal(fmt.Errorf("reading checkpoint state: %w", err))
		}
		logger.Info("resuming from existing checkpoint", "path", cfg.CheckpointPath, "outstanding_failures", n)
	}

	var store vectorstore.Client
	if cfg.DryRun {
		store = vectorstore.NewNoopClient()
	} else {
		store = vectorstore.NewHTTPClient(vectorstore.HTTPConfig{
			BaseURL: cfg.VectorStoreURL,
			APIKey:  cfg.VectorStoreKey,
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := store.EnsureSchema(ctx, vectorstore.SchemaSpec{
		Collection: cfg.Collection,
		Dimensions: cfg.EmbeddingDimensions,
	}); err != nil {
		return vecerrors.Fatal(fmt.Errorf("ensuring vector-store schema: %w", err))
	}

	var reg prometheus.Registerer
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		reg = registry
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}
	reporter := syncore.NewReporter(reg)

	reader, closeReader, err := openInput(*input)
	if err != nil {
		return vecerrors.Usage(err)
	}
	defer closeReader()

	breaker := syncore.NewCircuitBreaker(cfg.CircuitBreakerThreshold, time.Duration(cfg.CircuitBreakerCooldownS)*time.Second)

	workers := make([]*syncore.Worker, cfg.Shards)
	for i := range workers {
		resolver, err := syncore.NewResolver(syncore.ResolverConfig{
			Collection:       cfg.Collection,
			ExcludeGlobs:     cfg.ExcludeGlobs,
			MaxFileSizeBytes: cfg.MaxFileSizeBytes,
			RootDir:          cfg.RootDir,
		})
		if err != nil {
			return vecerrors.Fatal(err)
		}
		workers[i] = syncore.NewWorker(syncore.WorkerConfig{
			Collection: cfg.Collection,
			Resolver:   resolver,
			Embedder:   syncore.NewHashEmbedder(cfg.EmbeddingDimensions),
			Batcher:    syncore.NewBatcher(syncore.BatcherConfig{MaxObjects: cfg.BatchMaxObjects, MaxBytes: cfg.BatchMaxBytes}),
			Checkpoint: checkpoint,
			Store:      store,
			Breaker:    breaker,
			Logger:     logger,
			Reporter:   reporter,
		})
	}
	coord := syncore.NewCoordinator(workers, checkpoint)

	runID := newRunID()
	if err := checkpoint.StartRun(syncore.RunMetadata{RunID: runID, StartedAt: time.Now(), InputSource: *input}); err != nil {
		return vecerrors.Fatal(err)
	}

	lines := make(chan syncore.LineRecord, 256)
	done := make(chan struct{})
	go func() {
		if cfg.Quiet {
			return
		}
		reporter.Ticker(done, 500*time.Millisecond, func(snap syncore.ProgressSnapshot) {
			fmt.Fprintf(os.Stderr, "\r resolved=%d upserted=%d deleted=%d skipped=%d failed=%d",
				snap.Resolved, snap.Upserted, snap.Deleted, snap.Skipped, snap.Failed)
		})
	}()

	go func() {
		defer close(lines)
		_, parseErr := syncore.Parse(reader, cfg.Repo, func(lr syncore.LineRecord) error {
			reporter.IncResolved()
			select {
			case lines <- lr:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(line int, raw string, decodeErr error) {
			logger.Warn("malformed input line", "line", line, "error", decodeErr)
		})
		if parseErr != nil {
			logger.Error("parsing input failed", "error", parseErr)
		}
	}()

	summary, runErr := coord.Run(ctx, lines)
	close(done)

	status := string(summary.Status)
	_ = checkpoint.FinishRun(runID, summary.Status, int(summary.Attempted), summary.Failed)

	snap := reporter.Snapshot()
	out := ui.Summary{
		Collection: cfg.Collection,
		Attempted:  summary.Attempted,
		Upserted:   snap.Upserted,
		Deleted:    snap.Deleted,
		Skipped:    snap.Skipped,
		Failed:     summary.Failed,
		Status:     status,
		Elapsed:    snap.Elapsed,
	}
	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(out)
	} else if !cfg.Quiet {
		ui.Render(os.Stdout, out)
	}

	if runErr != nil {
		return vecerrors.Fatal(runErr)
	}
	if summary.Failed > 0 {
		return vecerrors.Partial(fmt.Errorf("%d lines failed", summary.Failed))
	}
	return nil
}

func applyFlag(fs *flag.FlagSet, name string, v *string, dst *string) {
	if fs.Changed(name) {
		*dst = *v
	}
}

func applyIntFlag(fs *flag.FlagSet, name string, v *int, dst *int) {
	if fs.Changed(name) {
		*dst = *v
	}
}

func applyInt64Flag(fs *flag.FlagSet, name string, v *int64, dst *int64) {
	if fs.Changed(name) {
		*dst = *v
	}
}

func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening input %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func newLogger(debug, jsonOutput bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func newRunID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
