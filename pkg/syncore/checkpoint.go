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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketCompleted = []byte("completed")
	bucketFailures  = []byte("failures")
	bucketRuns      = []byte("runs")
	bucketMeta      = []byte("meta")

	metaKeyCurrentRun = []byte("current_run")
)

// completedEntry is what CommitBatch and MarkSkipped persist per line: the
// object ID the line produced, its op, and the commit time. IsCompleted
// only checks that the key is present; nothing in this package reads the
// entry's fields back.
type completedEntry struct {
	ObjectID   string    `json:"object_id"`
	Op         Op        `json:"op"`
	CommittedAt time.Time `json:"committed_at"`
}

// CheckpointStore is the crash-safe, durable record of per-line progress
// for one sync target. It is backed by an embedded, transactional KV store
// so that a commit of N lines plus their produced object IDs either lands
// entirely or not at all, even across a process crash mid-batch.
type CheckpointStore struct {
	db *bbolt.DB
}

// OpenCheckpointStore opens (creating if absent) the checkpoint database
// at path, establishing its bucket layout.
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCompleted, bucketFailures, bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing checkpoint buckets: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

// lineKey encodes line as a fixed-width big-endian uint64 so bbolt's
// byte-lexicographic key ordering coincides with numeric line order; a
// decimal string key would sort "10" before "2".
func lineKey(line int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(line))
	return buf
}

// IsCompleted reports whether line has already been durably committed in
// a prior run, so the worker can skip it without re-resolving or
// re-embedding its content.
func (s *CheckpointStore) IsCompleted(line int) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCompleted).Get(lineKey(line))
		found = v != nil
		return nil
	})
	return found, err
}

// CommitBatch atomically marks every line in batch.Lines as completed and
// clears any prior failure record for those lines. A crash before this
// transaction commits leaves every line in the batch exactly as
// uncompleted as it was before the call, so a retry reprocesses the whole
// batch rather than half of it.
func (s *CheckpointStore) CommitBatch(batch Batch) error {
	now := time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		completed := tx.Bucket(bucketCompleted)
		failures := tx.Bucket(bucketFailures)

		idByLine := map[int]string{}
		switch batch.Kind {
		case BatchUpsert:
			for i, line := range batch.Lines {
				if i < len(batch.Objects) {
					idByLine[line] = batch.Objects[i].ID.String()
				}
			}
		case BatchDelete:
			for i, line := range batch.Lines {
				if i < len(batch.Deletes) {
					idByLine[line] = batch.Deletes[i].String()
				}
			}
		}

		op := OpAdd
		if batch.Kind == BatchDelete {
			op = OpDelete
		}

		for _, line := range batch.Lines {
			entry := completedEntry{ObjectID: idByLine[line], Op: op, CommittedAt: now}
			buf, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshaling checkpoint entry for line %d: %w", line, err)
			}
			if err := completed.Put(lineKey(line), buf); err != nil {
				return err
			}
			if err := failures.Delete(lineKey(line)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSkipped commits line as completed without going through a vector
// store batch, for items the resolver decided never to index.
func (s *CheckpointStore) MarkSkipped(line int, id interface{ String() string }) error {
	entry := completedEntry{ObjectID: id.String(), Op: OpAdd, CommittedAt: time.Now()}
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling skip entry for line %d: %w", line, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCompleted).Put(lineKey(line), buf); err != nil {
			return err
		}
		return tx.Bucket(bucketFailures).Delete(lineKey(line))
	})
}

// RecordFailure durably records that a line did not complete, overwriting
// any prior failure record for the same line. The stored Retries is
// whatever the caller passes; it is not incremented here.
func (s *CheckpointStore) RecordFailure(rec FailureRecord) error {
	rec.UpdatedAt = time.Now()
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling failure record for line %d: %w", rec.Line, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFailures).Put(lineKey(rec.Line), buf)
	})
}

// Failure returns the last recorded failure for line, if any.
func (s *CheckpointStore) Failure(line int) (FailureRecord, bool, error) {
	var rec FailureRecord
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketFailures).Get(lineKey(line))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	return rec, found, err
}

// FailedIter calls yield once per recorded failure, ordered by ascending
// retries and then ascending line within a retry count, stopping early if
// yield returns false. Key order in bbolt only gives line order, so this
// reads every record first and sorts in memory rather than streaming off
// the cursor.
func (s *CheckpointStore) FailedIter(yield func(FailureRecord) bool) error {
	var recs []FailureRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFailures).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec FailureRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding failure record key %x: %w", k, err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Retries != recs[j].Retries {
			return recs[i].Retries < recs[j].Retries
		}
		return recs[i].Line < recs[j].Line
	})

	for _, rec := range recs {
		if !yield(rec) {
			break
		}
	}
	return nil
}

// FailureCount returns the number of lines with an outstanding failure
// record.
func (s *CheckpointStore) FailureCount() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFailures).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// StartRun records the start of a new pipeline invocation as the current
// run.
func (s *CheckpointStore) StartRun(meta RunMetadata) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put([]byte(meta.RunID), buf); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(metaKeyCurrentRun, []byte(meta.RunID))
	})
}

// FinishRun marks the current run's terminal status.
func (s *CheckpointStore) FinishRun(runID string, status RunStatus, processed, failed int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		buf := runs.Get([]byte(runID))
		var meta RunMetadata
		if buf != nil {
			if err := json.Unmarshal(buf, &meta); err != nil {
				return fmt.Errorf("decoding run metadata for %s: %w", runID, err)
			}
		}
		meta.RunID = runID
		meta.Status = status
		meta.Processed = processed
		meta.Failed = failed
		meta.FinishedAt = time.Now()
		out, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return runs.Put([]byte(runID), out)
	})
}

// Reset clears all checkpoint state, used by a forced full re-index.
func (s *CheckpointStore) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCompleted, bucketFailures, bucketRuns, bucketMeta} {
			if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportFailures writes every outstanding failure record to w as
// newline-delimited JSON, one line per failure in the input record's shape
// (the failure's Payload fields) plus "error" and "retries", so a producer
// can re-drive just the lines that never completed. A marshal or write
// error stops the export and is returned with the count written so far.
func (s *CheckpointStore) ExportFailures(w func([]byte) error) (int, error) {
	type exportRecord struct {
		ChangeRecord
		Error   string `json:"error"`
		Retries int    `json:"retries"`
	}
	n := 0
	var writeErr error
	err := s.FailedIter(func(rec FailureRecord) bool {
		buf, marshalErr := json.Marshal(exportRecord{ChangeRecord: rec.Payload, Error: rec.Error, Retries: rec.Retries})
		if marshalErr != nil {
			writeErr = fmt.Errorf("marshaling failure record for line %d: %w", rec.Line, marshalErr)
			return false
		}
		buf = append(buf, '\n')
		if err := w(buf); err != nil {
			writeErr = err
			return false
		}
		n++
		return true
	})
	if err == nil {
		err = writeErr
	}
	return n, err
}
