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

// Package syncore implements the incremental synchronization pipeline that
// keeps a vector-search collection consistent with a stream of per-file
// change records: parsing, content resolution, batching, embedding,
// checkpointing, and shard-parallel execution.
package syncore

import (
	"time"

	"github.com/google/uuid"
)

// Op is the kind of change a ChangeRecord describes.
type Op string

const (
	OpAdd    Op = "add"
	OpModify Op = "modify"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

// ChangeRecord is one upstream-producer-emitted file-level change.
// Exactly one of Content, ContentBase64, ContentRef should be set for
// add/modify records; none of them apply to delete.
type ChangeRecord struct {
	Repo          string `json:"repo"`
	Op            Op     `json:"op"`
	Path          string `json:"path"`
	NewPath       string `json:"new_path,omitempty"`
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
	ContentRef    string `json:"content_ref,omitempty"`
	Size          int64  `json:"size,omitempty"`
	MIME          string `json:"mime,omitempty"`
	SkipIndex     bool   `json:"skip_index,omitempty"`

	// NewChangeset marks a changeset-bookkeeping record the producer emits
	// between operations. When non-empty the record carries no file change
	// and the parser reports it as a marker line rather than a LineRecord.
	NewChangeset string `json:"new_changeset,omitempty"`
}

// LineRecord is a ChangeRecord tagged with its 1-based input line number,
// the unit of checkpointing.
type LineRecord struct {
	Line int
	ChangeRecord
}

// ContentTier identifies how a ChangeRecord's bytes were (or weren't)
// resolved to text.
type ContentTier string

const (
	TierPlain     ContentTier = "plain"
	TierBase64    ContentTier = "base64"
	TierReference ContentTier = "reference"
	TierSkip      ContentTier = "skip"
)

// SkipReason names why a record produced TierSkip.
type SkipReason string

const (
	SkipReasonExplicit SkipReason = "explicit"
	SkipReasonVendor   SkipReason = "vendor"
	SkipReasonBinary   SkipReason = "binary"
	SkipReasonTooLarge SkipReason = "too_large"
)

// ResolvedItem is the output of content resolution: either indexable text
// (for an upsert) or a delete/skip with no text payload.
type ResolvedItem struct {
	Line       int
	Op         Op
	ObjectID   uuid.UUID
	Repo       string
	Path       string
	Text       string
	Tier       ContentTier
	SkipReason SkipReason

	// OldObjectID is set only for Op == OpRename: the identifier of the
	// file under its pre-rename path, which must be deleted once the new
	// identifier (ObjectID, identified by NewPath) is indexed.
	OldObjectID uuid.UUID
}

// IsUpsert reports whether this item should be written to the vector store.
func (r ResolvedItem) IsUpsert() bool {
	return r.Op != OpDelete && r.Tier != TierSkip
}

// IsDelete reports whether this item should be removed from the vector store.
func (r ResolvedItem) IsDelete() bool {
	return r.Op == OpDelete
}

// BatchKind distinguishes upsert batches from delete batches; a batch never
// mixes the two so checkpoint commits stay aligned with a single
// vector-store call shape.
type BatchKind string

const (
	BatchUpsert BatchKind = "upsert"
	BatchDelete BatchKind = "delete"
)

// VectorObject is a fully-resolved, embedded object ready for BatchUpsert.
type VectorObject struct {
	ID     uuid.UUID
	Text   string
	Vector []float32
}

// Batch is an ordered, commit-atomic group of resolved items of one kind,
// carrying the line numbers it covers so a successful vector-store call can
// be checkpointed in one shot.
type Batch struct {
	Kind    BatchKind
	Lines   []int
	Objects []VectorObject // populated for BatchUpsert
	Deletes []uuid.UUID    // populated for BatchDelete
}

// ByteSize estimates the batch's in-memory footprint for size-bounded
// batching (text length + a fixed per-vector-float overhead).
func (b Batch) ByteSize() int {
	n := 0
	for _, o := range b.Objects {
		n += len(o.Text) + len(o.Vector)*4
	}
	return n
}

// ErrorCategory is the fixed failure taxonomy every downstream error is
// mapped into before retry/skip/abort decisions are made.
type ErrorCategory string

const (
	CategoryNetwork     ErrorCategory = "network"
	CategoryVectorStore ErrorCategory = "vector-store"
	CategoryFilesystem  ErrorCategory = "filesystem"
	CategoryRateLimit   ErrorCategory = "rate-limit"
	CategoryMemory      ErrorCategory = "memory"
	CategoryEncoding    ErrorCategory = "encoding"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryValidation  ErrorCategory = "validation"
	CategoryUnknown     ErrorCategory = "unknown"
)

// FailureRecord is the durable payload kept for a line that did not reach
// completed status. Payload holds the line's change record only for
// failures recorded at the resolve/embed stage; a line whose vector-store
// batch failed is recorded with an empty Payload.
type FailureRecord struct {
	Line      int           `json:"line"`
	Payload   ChangeRecord  `json:"payload"`
	Error     string        `json:"error"`
	Category  ErrorCategory `json:"category"`
	Retries   int           `json:"retries"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunStatus is the terminal status of one pipeline invocation.
type RunStatus string

const (
	RunOK      RunStatus = "ok"
	RunPartial RunStatus = "partial"
	RunFatal   RunStatus = "fatal"
)

// RunMetadata is the one-row-per-invocation bookkeeping record.
type RunMetadata struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	InputSource    string    `json:"input_source"`
	Processed      int       `json:"processed"`
	Failed         int       `json:"failed"`
	LastCheckpoint time.Time `json:"last_checkpoint"`
	Status         RunStatus `json:"status,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
}
