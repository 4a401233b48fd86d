// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(8)
	a, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 8)
}

func TestHashEmbedder_DifferentTextDifferentVector(t *testing.T) {
	e := NewHashEmbedder(8)
	a, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "goodbye")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHashEmbedder_Dimensions(t *testing.T) {
	e := NewHashEmbedder(32)
	require.Equal(t, 32, e.Dimensions())
	v, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, v, 32)
}
