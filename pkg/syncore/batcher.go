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

import "github.com/google/uuid"

// BatcherConfig bounds how large a batch the Batcher will accumulate
// before flushing, by count and by estimated byte size, whichever comes
// first.
type BatcherConfig struct {
	MaxObjects int
	MaxBytes   int
}

// DefaultBatcherConfig mirrors the teacher's Pinecone-oriented batch
// target, generalized with a byte ceiling since this pipeline's objects
// carry full source text rather than fixed-width vectors alone.
var DefaultBatcherConfig = BatcherConfig{
	MaxObjects: 100,
	MaxBytes:   4 << 20,
}

// Batcher accumulates resolved, embedded items into kind-homogeneous
// Batches: an upsert batch never contains a delete, and vice versa,
// because the vector-store client issues them as two distinct calls and
// the checkpoint commit for a batch must match one call's outcome.
type Batcher struct {
	cfg BatcherConfig

	upsert Batch
	delete Batch
}

// NewBatcher builds a Batcher with the given bounds, falling back to
// DefaultBatcherConfig for any zero field.
func NewBatcher(cfg BatcherConfig) *Batcher {
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = DefaultBatcherConfig.MaxObjects
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultBatcherConfig.MaxBytes
	}
	return &Batcher{
		cfg:    cfg,
		upsert: Batch{Kind: BatchUpsert},
		delete: Batch{Kind: BatchDelete},
	}
}

// AddUpsert stages one embedded object under line, returning a completed
// Batch if adding it crossed the configured size bound, in which case the
// staged batch is reset to empty.
func (b *Batcher) AddUpsert(line int, obj VectorObject) (Batch, bool) {
	candidate := b.upsert
	candidate.Lines = append(append([]int{}, b.upsert.Lines...), line)
	candidate.Objects = append(append([]VectorObject{}, b.upsert.Objects...), obj)

	if len(b.upsert.Lines) > 0 && (candidate.ByteSize() > b.cfg.MaxBytes || len(candidate.Objects) > b.cfg.MaxObjects) {
		flushed := b.upsert
		b.upsert = Batch{Kind: BatchUpsert, Lines: []int{line}, Objects: []VectorObject{obj}}
		return flushed, true
	}

	b.upsert = candidate
	if len(b.upsert.Objects) >= b.cfg.MaxObjects || b.upsert.ByteSize() >= b.cfg.MaxBytes {
		flushed := b.upsert
		b.upsert = Batch{Kind: BatchUpsert}
		return flushed, true
	}
	return Batch{}, false
}

// AddDelete stages one delete under line, returning a completed Batch on
// overflow exactly as AddUpsert does.
func (b *Batcher) AddDelete(line int, id uuid.UUID) (Batch, bool) {
	b.delete.Lines = append(b.delete.Lines, line)
	b.delete.Deletes = append(b.delete.Deletes, id)
	if len(b.delete.Deletes) >= b.cfg.MaxObjects {
		flushed := b.delete
		b.delete = Batch{Kind: BatchDelete}
		return flushed, true
	}
	return Batch{}, false
}

// FlushUpsert returns and clears any partially-filled upsert batch; call
// this at end of input so trailing items are not lost.
func (b *Batcher) FlushUpsert() (Batch, bool) {
	if len(b.upsert.Lines) == 0 {
		return Batch{}, false
	}
	flushed := b.upsert
	b.upsert = Batch{Kind: BatchUpsert}
	return flushed, true
}

// FlushDelete returns and clears any partially-filled delete batch.
func (b *Batcher) FlushDelete() (Batch, bool) {
	if len(b.delete.Lines) == 0 {
		return Batch{}, false
	}
	flushed := b.delete
	b.delete = Batch{Kind: BatchDelete}
	return flushed, true
}
