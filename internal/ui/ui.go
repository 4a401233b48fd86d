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

// Package ui renders the CLI's human-facing output: a progress bar while a
// run is in flight and a colorized or plain summary once it finishes.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

var (
	colorOK      = color.New(color.FgGreen, color.Bold)
	colorWarn    = color.New(color.FgYellow, color.Bold)
	colorFail    = color.New(color.FgRed, color.Bold)
	colorFaint   = color.New(color.Faint)
	colorEnabled = true
)

// InitColors decides whether colorized output is used, honoring an
// explicit --no-color flag, the NO_COLOR convention, and whether stdout is
// actually a terminal.
func InitColors(noColorFlag bool) {
	colorEnabled = !noColorFlag && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = !colorEnabled
}

// Bar wraps progressbar.ProgressBar with the defaults this CLI uses: a
// byte-agnostic item counter, rendered to stderr so it never pollutes
// piped stdout output.
type Bar struct {
	pb *progressbar.ProgressBar
}

// NewBar creates a determinate progress bar over total items, or an
// indeterminate spinner if total <= 0.
func NewBar(total int, description string) *Bar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(150 * time.Millisecond),
		progressbar.OptionClearOnFinish(),
	}
	if total <= 0 {
		return &Bar{pb: progressbar.NewOptions(-1, opts...)}
	}
	return &Bar{pb: progressbar.NewOptions(total, opts...)}
}

// Set updates the bar to n completed items.
func (b *Bar) Set(n int) {
	_ = b.pb.Set(n)
}

// Finish completes and clears the bar.
func (b *Bar) Finish() {
	_ = b.pb.Finish()
}

// Summary is the terminal report for one run, rendered either as colored
// human text or as JSON depending on the caller's chosen mode.
type Summary struct {
	Collection string        `json:"collection"`
	Attempted  int64         `json:"attempted"`
	Upserted   int64         `json:"upserted"`
	Deleted    int64         `json:"deleted"`
	Skipped    int64         `json:"skipped"`
	Failed     int           `json:"failed"`
	Status     string        `json:"status"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Render writes s to w as colorized (or plain, if colors are disabled)
// human-readable text. Use encoding/json directly for --json output,
// since Summary's json tags already make it a faithful machine format.
func Render(w io.Writer, s Summary) {
	headline := colorOK
	label := "OK"
	switch {
	case s.Status == "fatal":
		headline = colorFail
		label = "FATAL"
	case s.Failed > 0:
		headline = colorWarn
		label = "PARTIAL"
	}

	fmt.Fprintf(w, "%s  collection=%s\n", headline.Sprint(label), s.Collection)
	fmt.Fprintf(w, "  %s upserted, %s deleted, %s skipped, %s failed\n",
		colorFaint.Sprintf("%d", s.Upserted),
		colorFaint.Sprintf("%d", s.Deleted),
		colorFaint.Sprintf("%d", s.Skipped),
		colorFaint.Sprintf("%d", s.Failed))
	fmt.Fprintf(w, "  %s lines attempted in %s\n", colorFaint.Sprintf("%d", s.Attempted), s.Elapsed.Round(time.Millisecond))
}
