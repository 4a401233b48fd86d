// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kraklabs/vecsync/pkg/vectorstore"
	"github.com/stretchr/testify/require"
)

func newShardedWorkers(t *testing.T, n int, store vectorstore.Client) ([]*Worker, *CheckpointStore) {
	t.Helper()
	resolver, err := NewResolver(ResolverConfig{Collection: "docs", MaxFileSizeBytes: 1024})
	require.NoError(t, err)

	cp, err := OpenCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(WorkerConfig{
			Collection: "docs",
			Resolver:   resolver,
			Embedder:   NewHashEmbedder(4),
			Batcher:    NewBatcher(BatcherConfig{MaxObjects: 1, MaxBytes: 1 << 20}),
			Checkpoint: cp,
			Store:      store,
			Breaker:    NewCircuitBreaker(100, time.Minute),
		})
	}
	return workers, cp
}

func TestCoordinator_ProcessesAllLines(t *testing.T) {
	store := vectorstore.NewNoopClient()
	workers, cp := newShardedWorkers(t, 3, store)
	coord := NewCoordinator(workers, cp)

	lines := make(chan LineRecord, 10)
	for i := 1; i <= 10; i++ {
		lines <- LineRecord{Line: i, ChangeRecord: ChangeRecord{
			Repo: "acme/widgets", Op: OpAdd, Path: fmt.Sprintf("f%d.go", i), Content: "x",
		}}
	}
	close(lines)

	summary, err := coord.Run(context.Background(), lines)
	require.NoError(t, err)
	require.Equal(t, int64(10), summary.Attempted)
	require.Equal(t, RunOK, summary.Status)

	for i := 1; i <= 10; i++ {
		done, err := cp.IsCompleted(i)
		require.NoError(t, err)
		require.True(t, done, "line %d should be completed", i)
	}
}

func TestCoordinator_SameLineAlwaysSameShard(t *testing.T) {
	a := shardFor(42, 5)
	b := shardFor(42, 5)
	require.Equal(t, a, b)
}

func TestCoordinator_PartialStatusOnFailures(t *testing.T) {
	store := &failingStore{}
	workers, cp := newShardedWorkers(t, 2, store)
	coord := NewCoordinator(workers, cp)

	lines := make(chan LineRecord, 2)
	lines <- LineRecord{Line: 1, ChangeRecord: ChangeRecord{Repo: "r", Op: OpAdd, Path: "a.go", Content: "x"}}
	lines <- LineRecord{Line: 2, ChangeRecord: ChangeRecord{Repo: "r", Op: OpAdd, Path: "b.go", Content: "y"}}
	close(lines)

	summary, err := coord.Run(context.Background(), lines)
	require.NoError(t, err)
	require.Equal(t, RunPartial, summary.Status)
	require.Equal(t, 2, summary.Failed)
}
