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

package vectorstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// NoopClient satisfies Client without making any network calls. It is
// used for --dry-run, where the pipeline should exercise the full
// resolve/batch/checkpoint path and report what it would have written
// without touching the real store.
type NoopClient struct {
	mu        sync.Mutex
	Upserts   int
	Deletes   int
	SchemaOK  bool
	lastBatch []Object
}

// NewNoopClient returns a Client that records call counts but performs no
// I/O.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (n *NoopClient) EnsureSchema(ctx context.Context, spec SchemaSpec) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.SchemaOK = true
	return nil
}

func (n *NoopClient) BatchUpsert(ctx context.Context, collection string, objects []Object) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Upserts += len(objects)
	n.lastBatch = objects
	return nil
}

func (n *NoopClient) BatchDelete(ctx context.Context, collection string, ids []uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Deletes += len(ids)
	return nil
}

func (n *NoopClient) Health(ctx context.Context) error {
	return nil
}

// Counts returns the running upsert/delete totals, for test assertions.
func (n *NoopClient) Counts() (upserts, deletes int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Upserts, n.Deletes
}
