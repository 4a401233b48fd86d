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

import "io"

// TierCounts tallies how many records a dry analysis pass would resolve
// into each content tier, and why each skip happened, without ever
// calling an embedder or a vector store. It is what `vecsync analyze`
// reports.
type TierCounts struct {
	Total int

	Plain     int
	Base64    int
	Reference int

	SkippedExplicit int
	SkippedVendor   int
	SkippedBinary   int
	SkippedTooLarge int

	Adds    int
	Modifies int
	Deletes int
	Renames int

	Markers   int
	Malformed int
}

// Skipped returns the total number of records that would not reach the
// vector store, across every skip reason.
func (t TierCounts) Skipped() int {
	return t.SkippedExplicit + t.SkippedVendor + t.SkippedBinary + t.SkippedTooLarge
}

// Analyze runs r's records through resolver without embedding or writing
// anything, and returns a distribution of content tiers and skip reasons.
// This is the same resolution logic a real run uses, so the report it
// produces is a true preview, not an approximation.
func Analyze(r io.Reader, repo string, resolver *Resolver) (TierCounts, error) {
	var counts TierCounts

	stats, err := Parse(r, repo, func(lr LineRecord) error {
		counts.Total++
		switch lr.Op {
		case OpAdd:
			counts.Adds++
		case OpModify:
			counts.Modifies++
		case OpDelete:
			counts.Deletes++
			return nil
		case OpRename:
			counts.Renames++
		}

		item, resolveErr := resolver.Resolve(lr)
		if resolveErr != nil {
			return resolveErr
		}
		switch item.Tier {
		case TierPlain:
			counts.Plain++
		case TierBase64:
			counts.Base64++
		case TierReference:
			counts.Reference++
		case TierSkip:
			switch item.SkipReason {
			case SkipReasonExplicit:
				counts.SkippedExplicit++
			case SkipReasonVendor:
				counts.SkippedVendor++
			case SkipReasonBinary:
				counts.SkippedBinary++
			case SkipReasonTooLarge:
				counts.SkippedTooLarge++
			}
		}
		return nil
	}, func(line int, raw string, decodeErr error) {
		counts.Malformed++
	})
	if err != nil {
		return counts, err
	}
	counts.Markers = stats.Markers

	return counts, nil
}
