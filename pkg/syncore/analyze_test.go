// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_TierDistribution(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Collection: "docs", MaxFileSizeBytes: 1024})
	require.NoError(t, err)

	input := strings.Join([]string{
		`{"repo":"r","op":"add","path":"a.go","content":"package a"}`,
		`{"repo":"r","op":"add","path":"vendor/lib.go","content":"x"}`,
		`{"repo":"r","op":"delete","path":"b.go"}`,
		`{"new_changeset":"cs-1"}`,
	}, "\n")

	counts, err := Analyze(strings.NewReader(input), "r", resolver)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Total)
	require.Equal(t, 1, counts.Plain)
	require.Equal(t, 1, counts.SkippedVendor)
	require.Equal(t, 1, counts.Deletes)
	require.Equal(t, 1, counts.Markers)
	require.Equal(t, 1, counts.Skipped())
}
