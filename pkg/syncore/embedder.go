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
	"crypto/sha256"
	"encoding/binary"
)

// Embedder turns resolved text into a vector. The pipeline calls it once
// per non-skipped, non-delete ResolvedItem.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a deterministic, offline fallback embedder: it derives a
// fixed-dimension vector from a SHA-256 of the text, re-hashing the
// previous 32-byte block to fill however many dimensions are configured. It
// produces no semantic similarity, only a stable placeholder, and exists
// so dry runs and tests can exercise the full pipeline without a real
// embedding provider.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder builds a HashEmbedder producing vectors of the given
// dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 16
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed is deterministic: the same text always yields the same vector,
// which makes it safe to use in tests that assert on resulting batches.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out := make([]float32, h.dims)
	seed := sha256.Sum256([]byte(text))

	block := seed
	for i := 0; i < h.dims; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		idx := i % len(block)
		var buf [4]byte
		copy(buf[:], block[idx:])
		u := binary.LittleEndian.Uint32(buf[:])
		out[i] = float32(u%2000)/1000 - 1
	}
	return out, nil
}
