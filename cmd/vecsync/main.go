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

// Command vecsync keeps a vector-search collection in sync with a stream
// of per-file change records.
package main

import (
	"fmt"
	"os"

	vecerrors "github.com/kraklabs/vecsync/internal/errors"
	"github.com/kraklabs/vecsync/internal/ui"
	flag "github.com/spf13/pflag"
)

// GlobalFlags are accepted before the subcommand name and apply to every
// subcommand.
type GlobalFlags struct {
	ConfigFile string
	JSON       bool
	Quiet      bool
	NoColor    bool
	Debug      bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flag.SetInterspersed(false)

	globals := GlobalFlags{}
	flag.StringVar(&globals.ConfigFile, "config", "", "path to a YAML config file")
	flag.BoolVar(&globals.JSON, "json", false, "emit machine-readable JSON output")
	flag.BoolVar(&globals.Quiet, "quiet", false, "suppress progress output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "disable colorized output")
	flag.BoolVar(&globals.Debug, "debug", false, "enable debug logging")
	flag.CommandLine.Parse(args)

	if globals.JSON {
		globals.Quiet = true
	}
	if os.Getenv("NO_COLOR") != "" {
		globals.NoColor = true
	}
	ui.InitColors(globals.NoColor)

	rest := flag.CommandLine.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: vecsync <sync|analyze|checkpoint> [flags]")
		return vecerrors.ExitUsage
	}

	var err error
	switch rest[0] {
	case "sync":
		err = runSync(globals, rest[1:])
	case "analyze":
		err = runAnalyze(globals, rest[1:])
	case "checkpoint":
		err = runCheckpoint(globals, rest[1:])
	default:
		fmt.Fprintf(os.Stderr, "vecsync: unknown subcommand %q\n", rest[0])
		return vecerrors.ExitUsage
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "vecsync: %v\n", err)
	}
	return vecerrors.CodeOf(err)
}
