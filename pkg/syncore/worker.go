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

package syncore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kraklabs/vecsync/pkg/vectorstore"
)

// WorkerConfig wires a Worker's collaborators. Checkpoint, Store, and
// Breaker are shared across every worker in a shard group; Resolver,
// Embedder, and Batcher are one-per-worker so each shard accumulates its
// own batches independently.
type WorkerConfig struct {
	Collection string
	Resolver   *Resolver
	Embedder   Embedder
	Batcher    *Batcher
	Checkpoint *CheckpointStore
	Store      vectorstore.Client
	Breaker    *CircuitBreaker
	Logger     *slog.Logger
	Reporter   *Reporter
}

// Worker drives one record at a time through resolve -> embed -> batch ->
// submit -> checkpoint, retrying transient failures per the classifier's
// policy and recording permanent ones for later export.
type Worker struct {
	cfg      WorkerConfig
	fallback *HashEmbedder
}

// NewWorker builds a Worker from cfg, falling back to slog.Default() when
// no logger is supplied. It also builds a HashEmbedder sized to match
// cfg.Embedder's dimensionality, used as the embed-stage fallback when the
// configured Embedder errors.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(10, 30*time.Second)
	}
	dims := 0
	if cfg.Embedder != nil {
		dims = cfg.Embedder.Dimensions()
	}
	return &Worker{cfg: cfg, fallback: NewHashEmbedder(dims)}
}

// ProcessLine advances one LineRecord through the pipeline. It returns nil
// both when the line completes successfully and when it is permanently
// recorded as failed — only an unrecoverable local error (e.g. the
// checkpoint store itself failing) is returned to the caller, since a
// per-line failure is tracked durably rather than propagated.
func (w *Worker) ProcessLine(ctx context.Context, lr LineRecord) error {
	done, err := w.cfg.Checkpoint.IsCompleted(lr.Line)
	if err != nil {
		return fmt.Errorf("checking checkpoint for line %d: %w", lr.Line, err)
	}
	if done {
		return nil
	}

	item, err := w.cfg.Resolver.Resolve(lr)
	if err != nil {
		return w.permanentFail(lr, err)
	}

	if item.IsDelete() {
		return w.stageDelete(ctx, lr, item)
	}
	if lr.Op == OpRename {
		return w.stageRename(ctx, lr, item)
	}
	if item.Tier == TierSkip {
		if err := w.cfg.Checkpoint.MarkSkipped(lr.Line, item.ObjectID); err != nil {
			return fmt.Errorf("marking line %d skipped: %w", lr.Line, err)
		}
		w.incSkipped()
		return nil
	}

	return w.stageUpsert(ctx, lr, item)
}

func (w *Worker) stageDelete(ctx context.Context, lr LineRecord, item ResolvedItem) error {
	batch, flushed := w.cfg.Batcher.AddDelete(lr.Line, item.ObjectID)
	if flushed {
		return w.submit(ctx, batch)
	}
	return nil
}

// stageRename expands op = rename into the two operations the vector-store
// contract actually exposes: delete the old identifier, then upsert the
// new one. The delete goes straight through attemptCall rather than the
// Batcher/submit path, so it never commits the checkpoint on its own —
// only stageUpsert's eventual submit does that, once both halves are
// done. A crash between the two halves therefore leaves the line
// uncompleted, and a resume safely redoes both: deleting an
// already-deleted ID and upserting an already-upserted one are both
// harmless no-ops.
func (w *Worker) stageRename(ctx context.Context, lr LineRecord, item ResolvedItem) error {
	if item.OldObjectID != uuid.Nil {
		deleteBatch := Batch{Kind: BatchDelete, Deletes: []uuid.UUID{item.OldObjectID}}
		if err := w.attemptCall(ctx, deleteBatch); err != nil {
			return w.permanentFail(lr, fmt.Errorf("deleting pre-rename identifier: %w", err))
		}
		w.incDeleted(1)
	}

	if item.Tier == TierSkip {
		if err := w.cfg.Checkpoint.MarkSkipped(lr.Line, item.ObjectID); err != nil {
			return fmt.Errorf("marking line %d skipped: %w", lr.Line, err)
		}
		w.incSkipped()
		return nil
	}
	return w.stageUpsert(ctx, lr, item)
}

// stageUpsert embeds item's text, falling back to a deterministic
// HashEmbedder vector if the configured Embedder errors, then stages the
// result for the next vector-store call.
func (w *Worker) stageUpsert(ctx context.Context, lr LineRecord, item ResolvedItem) error {
	vec, err := w.cfg.Embedder.Embed(ctx, item.Text)
	if err != nil {
		w.cfg.Logger.Warn("embedder failed, falling back to hash embedder",
			"line", lr.Line, "error", err)
		vec, err = w.fallback.Embed(ctx, item.Text)
		if err != nil {
			return w.permanentFail(lr, err)
		}
	}

	batch, flushed := w.cfg.Batcher.AddUpsert(lr.Line, VectorObject{
		ID:     item.ObjectID,
		Text:   item.Text,
		Vector: vec,
	})
	if flushed {
		return w.submit(ctx, batch)
	}
	return nil
}

// Flush submits any partially-filled batches, called once the input is
// exhausted so trailing items are not left uncommitted.
func (w *Worker) Flush(ctx context.Context) error {
	if batch, ok := w.cfg.Batcher.FlushUpsert(); ok {
		if err := w.submit(ctx, batch); err != nil {
			return err
		}
	}
	if batch, ok := w.cfg.Batcher.FlushDelete(); ok {
		if err := w.submit(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// attemptCall sends batch to the vector store, retrying per the classified
// error's policy and consulting the shared circuit breaker before each
// attempt. It has no knowledge of checkpoints or lines: a caller that
// needs both halves of a two-part operation (see stageRename) to succeed
// before anything is marked complete calls this directly, instead of
// submit, for the half that must not commit on its own.
//
// Gating: the category an upcoming attempt might fail with is unknown
// before it is made, so lastCat starts empty (meaning "no history yet for
// this call, allow unconditionally") and is updated to whatever category
// classifies each failure, gating only the retries that follow within
// this same call.
func (w *Worker) attemptCall(ctx context.Context, batch Batch) error {
	var lastErr error
	var lastCat ErrorCategory
	for attempt := 1; ; attempt++ {
		if !w.cfg.Breaker.Allow(lastCat) {
			return fmt.Errorf("circuit breaker open for category %s, skipping vector store call", lastCat)
		}

		var callErr error
		switch batch.Kind {
		case BatchUpsert:
			callErr = w.cfg.Store.BatchUpsert(ctx, w.cfg.Collection, toObjects(batch.Objects))
		case BatchDelete:
			callErr = w.cfg.Store.BatchDelete(ctx, w.cfg.Collection, batch.Deletes)
		}

		if callErr == nil {
			if lastCat != "" {
				w.cfg.Breaker.RecordSuccess(lastCat)
			}
			return nil
		}

		lastCat = Classify(callErr)
		w.cfg.Breaker.RecordFailure(lastCat)
		lastErr = callErr
		w.cfg.Logger.Warn("batch submission failed",
			"kind", batch.Kind, "lines", len(batch.Lines), "attempt", attempt, "category", lastCat, "error", callErr)

		if !ShouldRetry(lastCat, attempt+1) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffDelay(lastCat, attempt)):
		}
	}
}

// submit sends batch via attemptCall; on success it commits the
// checkpoint for every line in the batch atomically, and on exhausted
// retries every line in the batch is recorded as a permanent failure.
func (w *Worker) submit(ctx context.Context, batch Batch) error {
	callErr := w.attemptCall(ctx, batch)
	if callErr == nil {
		if err := w.cfg.Checkpoint.CommitBatch(batch); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
		if batch.Kind == BatchUpsert {
			w.incUpserted(len(batch.Objects))
		} else {
			w.incDeleted(len(batch.Deletes))
		}
		return nil
	}

	for _, line := range batch.Lines {
		if err := w.cfg.Checkpoint.RecordFailure(FailureRecord{
			Line:     line,
			Error:    callErr.Error(),
			Category: Classify(callErr),
			Retries:  1,
		}); err != nil {
			return fmt.Errorf("recording failure for line %d: %w", line, err)
		}
		w.incFailed()
	}
	return nil
}

// permanentFail records a single-line failure (resolve/embed stage) that
// has no batch to roll back. It does not retry: the line is recorded as
// failed, with its payload, on the first error.
func (w *Worker) permanentFail(lr LineRecord, cause error) error {
	cat := Classify(cause)
	if err := w.cfg.Checkpoint.RecordFailure(FailureRecord{
		Line:     lr.Line,
		Payload:  lr.ChangeRecord,
		Error:    cause.Error(),
		Category: cat,
		Retries:  1,
	}); err != nil {
		return err
	}
	w.incFailed()
	return nil
}

func (w *Worker) incUpserted(n int) {
	if w.cfg.Reporter == nil {
		return
	}
	for i := 0; i < n; i++ {
		w.cfg.Reporter.IncUpserted()
	}
}

func (w *Worker) incDeleted(n int) {
	if w.cfg.Reporter == nil {
		return
	}
	for i := 0; i < n; i++ {
		w.cfg.Reporter.IncDeleted()
	}
}

func (w *Worker) incSkipped() {
	if w.cfg.Reporter != nil {
		w.cfg.Reporter.IncSkipped()
	}
}

func (w *Worker) incFailed() {
	if w.cfg.Reporter != nil {
		w.cfg.Reporter.IncFailed()
	}
}

func toObjects(objs []VectorObject) []vectorstore.Object {
	out := make([]vectorstore.Object, len(objs))
	for i, o := range objs {
		out[i] = vectorstore.Object{ID: o.ID, Text: o.Text, Vector: o.Vector}
	}
	return out
}
