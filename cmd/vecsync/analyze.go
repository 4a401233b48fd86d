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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	vecerrors "github.com/kraklabs/vecsync/internal/errors"
	"github.com/kraklabs/vecsync/pkg/syncore"
	flag "github.com/spf13/pflag"
)

// runAnalyze drives `vecsync analyze`: a dry, offline pass over input that
// reports what a real sync run would resolve each line to, without ever
// calling an embedder or a vector store.
func runAnalyze(globals GlobalFlags, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "-", "path to the newline-delimited change record file, or - for stdin")
	collection := fs.String("collection", "default", "collection name used for identity hashing")
	repo := fs.String("repo", "", "repository identifier attached to legacy plain-path records")
	rootDir := fs.String("root-dir", "", "base directory content_ref paths are resolved against")
	maxFileSize := fs.Int64("max-file-size", 1<<20, "max source size in bytes before a file is skipped")
	if err := fs.Parse(args); err != nil {
		return vecerrors.Usage(err)
	}

	reader, closeReader, err := openInput(*input)
	if err != nil {
		return vecerrors.Usage(err)
	}
	defer closeReader()

	resolver, err := syncore.NewResolver(syncore.ResolverConfig{
		Collection:       *collection,
		MaxFileSizeBytes: *maxFileSize,
		RootDir:          *rootDir,
	})
	if err != nil {
		return vecerrors.Fatal(err)
	}

	counts, err := syncore.Analyze(reader, *repo, resolver)
	if err != nil {
		return vecerrors.Fatal(fmt.Errorf("analyzing input: %w", err))
	}

	if globals.JSON {
		return json.NewEncoder(os.Stdout).Encode(counts)
	}

	fmt.Printf("total records:     %d\n", counts.Total)
	fmt.Printf("  add/modify:      %d\n", counts.Adds+counts.Modifies)
	fmt.Printf("  delete:          %d\n", counts.Deletes)
	fmt.Printf("  rename:          %d\n", counts.Renames)
	fmt.Printf("content tiers:\n")
	fmt.Printf("  plain:           %d\n", counts.Plain)
	fmt.Printf("  base64:          %d\n", counts.Base64)
	fmt.Printf("  reference:       %d\n", counts.Reference)
	fmt.Printf("skipped:           %d\n", counts.Skipped())
	fmt.Printf("  explicit:        %d\n", counts.SkippedExplicit)
	fmt.Printf("  vendor/build:    %d\n", counts.SkippedVendor)
	fmt.Printf("  binary:          %d\n", counts.SkippedBinary)
	fmt.Printf("  too large:       %d\n", counts.SkippedTooLarge)
	fmt.Printf("changeset markers: %d\n", counts.Markers)
	fmt.Printf("malformed lines:   %d\n", counts.Malformed)
	return nil
}
