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
	"fmt"
	"os"

	vecerrors "github.com/kraklabs/vecsync/internal/errors"
	"github.com/kraklabs/vecsync/pkg/syncore"
	flag "github.com/spf13/pflag"
)

// runCheckpoint drives `vecsync checkpoint <reset|export-failures>`, the
// out-of-band maintenance operations on a checkpoint database that do not
// require a live input stream or vector-store connection.
func runCheckpoint(globals GlobalFlags, args []string) error {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	path := fs.String("checkpoint", ".vecsync/checkpoint.db", "path to the checkpoint database")
	out := fs.String("output", "-", "path to write export output to, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return vecerrors.Usage(err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return vecerrors.Usage(fmt.Errorf("usage: vecsync checkpoint <reset|export-failures>"))
	}

	store, err := syncore.OpenCheckpointStore(*path)
	if err != nil {
		return vecerrors.Fatal(fmt.Errorf("opening checkpoint store: %w", err))
	}
	defer store.Close()

	switch rest[0] {
	case "reset":
		if err := store.Reset(); err != nil {
			return vecerrors.Fatal(err)
		}
		fmt.Fprintln(os.Stderr, "checkpoint reset")
		return nil

	case "export-failures":
		w := os.Stdout
		if *out != "-" && *out != "" {
			f, err := os.Create(*out)
			if err != nil {
				return vecerrors.Fatal(fmt.Errorf("creating output file: %w", err))
			}
			defer f.Close()
			w = f
		}
		n, err := store.ExportFailures(func(b []byte) error {
			_, err := w.Write(b)
			return err
		})
		if err != nil {
			return vecerrors.Fatal(err)
		}
		fmt.Fprintf(os.Stderr, "exported %d failure records\n", n)
		return nil

	default:
		return vecerrors.Usage(fmt.Errorf("unknown checkpoint subcommand %q", rest[0]))
	}
}
