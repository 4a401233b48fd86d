// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_OKStatus(t *testing.T) {
	InitColors(true)
	var buf bytes.Buffer
	Render(&buf, Summary{Collection: "docs", Attempted: 10, Upserted: 9, Status: "ok"})
	out := buf.String()
	require.Contains(t, out, "OK")
	require.Contains(t, out, "collection=docs")
}

func TestRender_PartialStatus(t *testing.T) {
	InitColors(true)
	var buf bytes.Buffer
	Render(&buf, Summary{Collection: "docs", Failed: 2, Status: "partial"})
	require.Contains(t, buf.String(), "PARTIAL")
}

func TestRender_FatalStatus(t *testing.T) {
	InitColors(true)
	var buf bytes.Buffer
	Render(&buf, Summary{Collection: "docs", Status: "fatal"})
	require.Contains(t, buf.String(), "FATAL")
}
