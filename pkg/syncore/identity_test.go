// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify_Deterministic(t *testing.T) {
	a := Identify("docs", "acme/widgets", "src/main.go")
	b := Identify("docs", "acme/widgets", "src/main.go")
	assert.Equal(t, a, b)
}

func TestIdentify_DifferentInputsDifferentIDs(t *testing.T) {
	base := Identify("docs", "acme/widgets", "src/main.go")

	assert.NotEqual(t, base, Identify("other", "acme/widgets", "src/main.go"))
	assert.NotEqual(t, base, Identify("docs", "acme/other", "src/main.go"))
	assert.NotEqual(t, base, Identify("docs", "acme/widgets", "src/other.go"))
}

func TestIdentify_MatchesWorkedExample(t *testing.T) {
	got := Identify("C", "R", "a.txt")
	want := uuid.NewSHA1(identityNamespace, []byte("C:R:a.txt"))
	assert.Equal(t, want, got)
}

func TestIdentify_DistinctSpellingsOfSamePathDiffer(t *testing.T) {
	a := Identify("docs", "acme/widgets", "src/main.go")
	b := Identify("docs", "acme/widgets", "./src/main.go")

	assert.NotEqual(t, a, b)
}

func TestIdentify_ProducesValidV5UUID(t *testing.T) {
	id := Identify("docs", "acme/widgets", "src/main.go")
	require.Equal(t, uint8(5), id.Version())
}
