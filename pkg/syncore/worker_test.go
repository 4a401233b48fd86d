// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kraklabs/vecsync/pkg/vectorstore"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, store vectorstore.Client) (*Worker, *CheckpointStore) {
	t.Helper()
	resolver, err := NewResolver(ResolverConfig{Collection: "docs", MaxFileSizeBytes: 1024})
	require.NoError(t, err)

	cp, err := OpenCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	w := NewWorker(WorkerConfig{
		Collection: "docs",
		Resolver:   resolver,
		Embedder:   NewHashEmbedder(4),
		Batcher:    NewBatcher(BatcherConfig{MaxObjects: 1, MaxBytes: 1 << 20}),
		Checkpoint: cp,
		Store:      store,
		Breaker:    NewCircuitBreaker(3, time.Minute),
	})
	return w, cp
}

func TestWorker_ProcessLine_UpsertCommitsCheckpoint(t *testing.T) {
	store := vectorstore.NewNoopClient()
	w, cp := newTestWorker(t, store)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpAdd, Path: "a.go", Content: "package a",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.True(t, done)

	upserts, _ := store.Counts()
	require.Equal(t, 1, upserts)
}

func TestWorker_ProcessLine_SkipsAlreadyCompleted(t *testing.T) {
	store := vectorstore.NewNoopClient()
	w, _ := newTestWorker(t, store)

	lr := LineRecord{Line: 1, ChangeRecord: ChangeRecord{Repo: "acme/widgets", Op: OpAdd, Path: "a.go", Content: "x"}}
	require.NoError(t, w.ProcessLine(context.Background(), lr))
	require.NoError(t, w.ProcessLine(context.Background(), lr))

	upserts, _ := store.Counts()
	require.Equal(t, 1, upserts)
}

func TestWorker_ProcessLine_VendorSkipMarksCompletedWithoutUpsert(t *testing.T) {
	store := vectorstore.NewNoopClient()
	w, cp := newTestWorker(t, store)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpAdd, Path: "vendor/lib.go", Content: "x",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.True(t, done)

	upserts, _ := store.Counts()
	require.Equal(t, 0, upserts)
}

type failingStore struct {
	vectorstore.Client
	failures int
}

func (f *failingStore) BatchUpsert(ctx context.Context, collection string, objects []vectorstore.Object) error {
	f.failures++
	return &vectorstore.StatusError{StatusCode: 400}
}

func TestWorker_ProcessLine_PermanentVectorStoreFailureRecordsFailure(t *testing.T) {
	fs := &failingStore{}
	w, cp := newTestWorker(t, fs)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpAdd, Path: "a.go", Content: "x",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.False(t, done)

	n, err := cp.FailureCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

type failingEmbedder struct {
	dims int
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider unavailable")
}

func TestWorker_ProcessLine_EmbedderFailureFallsBackToHashEmbedder(t *testing.T) {
	store := vectorstore.NewNoopClient()
	resolver, err := NewResolver(ResolverConfig{Collection: "docs", MaxFileSizeBytes: 1024})
	require.NoError(t, err)
	cp, err := OpenCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	w := NewWorker(WorkerConfig{
		Collection: "docs",
		Resolver:   resolver,
		Embedder:   &failingEmbedder{dims: 4},
		Batcher:    NewBatcher(BatcherConfig{MaxObjects: 1, MaxBytes: 1 << 20}),
		Checkpoint: cp,
		Store:      store,
		Breaker:    NewCircuitBreaker(3, time.Minute),
	})

	err = w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpAdd, Path: "a.go", Content: "package a",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.True(t, done)

	upserts, _ := store.Counts()
	require.Equal(t, 1, upserts)

	n, err := cp.FailureCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWorker_ProcessLine_RenameDeletesOldAndUpsertsNew(t *testing.T) {
	store := vectorstore.NewNoopClient()
	w, cp := newTestWorker(t, store)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpRename, Path: "old.go", NewPath: "new.go", Content: "package new",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.True(t, done)

	upserts, deletes := store.Counts()
	require.Equal(t, 1, upserts)
	require.Equal(t, 1, deletes)
}

type upsertFailingStore struct {
	*vectorstore.NoopClient
}

func (f *upsertFailingStore) BatchUpsert(ctx context.Context, collection string, objects []vectorstore.Object) error {
	return &vectorstore.StatusError{StatusCode: 500}
}

func TestWorker_ProcessLine_RenameUpsertFailureLeavesLineIncomplete(t *testing.T) {
	store := &upsertFailingStore{NoopClient: vectorstore.NewNoopClient()}
	w, cp := newTestWorker(t, store)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpRename, Path: "old.go", NewPath: "new.go", Content: "package new",
	}})
	require.NoError(t, err)

	// The delete-old half ran (and is durable in the vector store), but
	// since the upsert-new half never succeeded the line must not be
	// checkpointed complete: a resume has to redo both halves.
	_, deletes := store.Counts()
	require.Equal(t, 1, deletes)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.False(t, done)
}

func TestWorker_Delete(t *testing.T) {
	store := vectorstore.NewNoopClient()
	w, cp := newTestWorker(t, store)

	err := w.ProcessLine(context.Background(), LineRecord{Line: 1, ChangeRecord: ChangeRecord{
		Repo: "acme/widgets", Op: OpDelete, Path: "a.go",
	}})
	require.NoError(t, err)

	done, err := cp.IsCompleted(1)
	require.NoError(t, err)
	require.True(t, done)

	_, deletes := store.Counts()
	require.Equal(t, 1, deletes)
}
