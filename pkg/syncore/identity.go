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
	"github.com/google/uuid"
)

// identityNamespace roots every object ID this package mints. Changing it
// would change every produced ID, so it is a fixed value, not configuration.
var identityNamespace = uuid.MustParse("6ba7b815-9dad-11d1-80b4-00c04fd430c8")

// Identify returns the deterministic object ID for a (collection, repo,
// path) triple: UUID5(identityNamespace, "{collection}:{repo}:{path}"). The
// same triple always yields the same UUID regardless of process, machine,
// or run, which is what lets the checkpoint store and the vector store
// agree on object identity across incremental runs.
//
// The three fields are joined with ':' verbatim, with no path
// normalization: callers are responsible for passing the exact path a
// change record names, since two cosmetically different spellings of the
// same file are, by this function's contract, different identities.
func Identify(collection, repo, filePath string) uuid.UUID {
	name := collection + ":" + repo + ":" + filePath
	return uuid.NewSHA1(identityNamespace, []byte(name))
}
