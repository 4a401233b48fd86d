// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_BatchUpsert(t *testing.T) {
	var gotBody upsertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/objects/batch-upsert", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	id := uuid.New()
	err := c.BatchUpsert(context.Background(), "docs", []Object{{ID: id, Text: "hi", Vector: []float32{0.1}}})
	require.NoError(t, err)
	require.Equal(t, "docs", gotBody.Collection)
	require.Len(t, gotBody.Objects, 1)
	require.Equal(t, id, gotBody.Objects[0].ID)
}

func TestHTTPClient_BatchUpsertEmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	err := c.BatchUpsert(context.Background(), "docs", nil)
	require.NoError(t, err)
	require.False(t, called)
}

func TestHTTPClient_ErrorStatusMapsToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	err := c.BatchUpsert(context.Background(), "docs", []Object{{ID: uuid.New()}})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.True(t, statusErr.RateLimited())
	require.True(t, statusErr.Retryable())
}

func TestNoopClient_TracksCounts(t *testing.T) {
	n := NewNoopClient()
	require.NoError(t, n.EnsureSchema(context.Background(), SchemaSpec{Collection: "docs"}))
	require.NoError(t, n.BatchUpsert(context.Background(), "docs", []Object{{ID: uuid.New()}, {ID: uuid.New()}}))
	require.NoError(t, n.BatchDelete(context.Background(), "docs", []uuid.UUID{uuid.New()}))

	upserts, deletes := n.Counts()
	require.Equal(t, 2, upserts)
	require.Equal(t, 1, deletes)
}
