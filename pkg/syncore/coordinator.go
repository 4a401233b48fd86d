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
	"hash/fnv"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RunSummary is the coordinator's final tally for one pipeline invocation.
type RunSummary struct {
	Attempted int64
	Failed    int
	Status    RunStatus
}

// Coordinator fans a stream of LineRecords out across a fixed number of
// shards, each backed by its own Worker, and joins them at the end of
// input. A line always lands on the same shard on every run (hash of its
// line number modulo shard count), so retries and resumed runs see
// consistent ordering per shard even though shards themselves run
// concurrently.
type Coordinator struct {
	workers    []*Worker
	checkpoint *CheckpointStore
	queueDepth int

	attempted int64
}

// NewCoordinator builds a Coordinator over workers, one per shard. Every
// worker must share the same CheckpointStore so FailureCount/IsCompleted
// reflect the whole run, not just one shard.
func NewCoordinator(workers []*Worker, checkpoint *CheckpointStore) *Coordinator {
	return &Coordinator{workers: workers, checkpoint: checkpoint, queueDepth: 64}
}

// shardFor deterministically assigns a line number to a shard index.
func shardFor(line, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.Itoa(line)))
	return int(h.Sum32()) % numShards
}

// Run reads from lines until it is closed or ctx is cancelled, dispatching
// each record to its shard and waiting for every shard to drain and flush
// before returning. If any shard's worker returns a local (non-line)
// error, Run cancels the remaining shards and returns that error; per-line
// failures are recorded durably and do not themselves fail the run.
func (c *Coordinator) Run(ctx context.Context, lines <-chan LineRecord) (RunSummary, error) {
	numShards := len(c.workers)
	if numShards == 0 {
		return RunSummary{}, nil
	}

	shardChans := make([]chan LineRecord, numShards)
	for i := range shardChans {
		shardChans[i] = make(chan LineRecord, c.queueDepth)
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, w := range c.workers {
		i, w := i, w
		g.Go(func() error {
			for lr := range shardChans[i] {
				if err := w.ProcessLine(gctx, lr); err != nil {
					return err
				}
				atomic.AddInt64(&c.attempted, 1)
			}
			return w.Flush(gctx)
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shardChans {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case lr, ok := <-lines:
				if !ok {
					return nil
				}
				shard := shardFor(lr.Line, numShards)
				select {
				case shardChans[shard] <- lr:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	runErr := g.Wait()

	summary := RunSummary{Attempted: atomic.LoadInt64(&c.attempted)}
	if c.checkpoint != nil {
		n, err := c.checkpoint.FailureCount()
		if err == nil {
			summary.Failed = n
		}
	}

	switch {
	case runErr != nil:
		summary.Status = RunFatal
	case summary.Failed > 0:
		summary.Status = RunPartial
	default:
		summary.Status = RunOK
	}
	return summary, runErr
}
