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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single input line so one pathological record
// cannot grow the scanner buffer without limit.
const maxLineBytes = 32 * 1024 * 1024

// ParseStats tallies what a Parse pass saw, independent of what downstream
// resolution/embedding later does with each line.
type ParseStats struct {
	Lines      int
	Records    int
	Markers    int
	Malformed  int
}

// LineHandler receives one successfully decoded LineRecord. Returning an
// error stops the parse.
type LineHandler func(LineRecord) error

// MalformedHandler receives a line that failed to decode as JSON and was
// also rejected as a legacy bare path (see ParseLegacyPlainPath). It
// returns nothing, so it cannot stop the parse.
type MalformedHandler func(line int, raw string, decodeErr error)

// Parse reads newline-delimited change records from r, invoking handle for
// each one and malformed for any line it could neither decode as JSON nor
// accept as a legacy bare path.
//
// Three kinds of non-record lines are recognized without being treated as
// malformed:
//   - blank lines are skipped entirely and do not advance Records/Malformed.
//   - a record whose NewChangeset field is set is a changeset-bookkeeping
//     marker; it is counted in Markers and not passed to handle.
//   - a line that fails JSON decoding is, for backward compatibility with
//     producers that predate the structured format, re-interpreted as a
//     bare repo-relative path naming a modified file with no content
//     payload (op = modify); this is what ParseLegacyPlainPath implements.
//     If that reinterpretation still cannot produce a usable record the
//     line is reported via malformed and skipped.
//
// Parse never returns early on a single bad line; it only returns early if
// handle returns an error or the reader itself fails.
func Parse(r io.Reader, repo string, handle LineHandler, malformed MalformedHandler) (ParseStats, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)

	var stats ParseStats
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if len(raw) == 0 {
			continue
		}
		stats.Lines++

		var rec ChangeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			legacy, ok := ParseLegacyPlainPath(raw, repo)
			if !ok {
				stats.Malformed++
				if malformed != nil {
					malformed(lineNo, raw, err)
				}
				continue
			}
			rec = legacy
		}

		if rec.NewChangeset != "" {
			stats.Markers++
			continue
		}

		stats.Records++
		if err := handle(LineRecord{Line: lineNo, ChangeRecord: rec}); err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanning input: %w", err)
	}
	return stats, nil
}

// ParseLegacyPlainPath interprets a raw line that failed JSON decoding as a
// bare repo-relative file path, the format older producers emitted before
// the structured ChangeRecord schema existed. It synthesizes op = modify,
// since a legacy producer only ever emitted a bare path to mean "this file
// changed, look at it again" with no content payload. A line is accepted
// as a legacy path only if it contains no JSON structural characters and
// no whitespace, to avoid silently swallowing genuinely malformed JSON as
// a nonsense path.
func ParseLegacyPlainPath(raw, repo string) (ChangeRecord, bool) {
	if !looksLikeBarePath(raw) {
		return ChangeRecord{}, false
	}
	return ChangeRecord{
		Repo: repo,
		Op:   OpModify,
		Path: raw,
	}, true
}

func looksLikeBarePath(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch r {
		case '{', '}', '[', ']', '"', ' ', '\t', ':', ',':
			return false
		}
	}
	return true
}
