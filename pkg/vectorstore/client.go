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

// Package vectorstore is the thin client surface the sync pipeline writes
// through. It deliberately exposes only the four operations the pipeline
// needs — schema admin, batch upsert, batch delete, health — rather than a
// general query API, since querying the collection is out of scope for
// this core.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Object is one vector-store record: an identity plus its embedding and
// the text it was embedded from, kept alongside the vector for debugging
// and for stores that support hybrid keyword+vector search.
type Object struct {
	ID     uuid.UUID `json:"id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// SchemaSpec is passed to EnsureSchema. Beyond the collection name and
// vector dimensionality, its shape is opaque to this package — different
// vector-store backends describe a collection schema differently — so any
// backend-specific schema is carried as a raw JSON document in Raw. The
// HTTP backend posts the whole SchemaSpec, Raw included under "raw", to the
// store's schema-admin endpoint.
type SchemaSpec struct {
	Collection string          `json:"collection"`
	Dimensions int             `json:"dimensions"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Client is the interface the sync pipeline depends on. The HTTP
// implementation below talks to a real vector-store service; NoopClient
// satisfies it for dry-run mode.
type Client interface {
	EnsureSchema(ctx context.Context, spec SchemaSpec) error
	BatchUpsert(ctx context.Context, collection string, objects []Object) error
	BatchDelete(ctx context.Context, collection string, ids []uuid.UUID) error
	Health(ctx context.Context) error
}

// HTTPConfig configures the HTTP-backed Client.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient is a Client backed by a JSON/HTTP vector-store service.
type HTTPClient struct {
	cfg HTTPConfig
	hc  *http.Client
}

// NewHTTPClient builds an HTTPClient against cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{cfg: cfg, hc: hc}
}

// EnsureSchema creates or validates the target collection's schema,
// idempotently: calling it on an already-provisioned collection is a
// no-op on the server side.
func (c *HTTPClient) EnsureSchema(ctx context.Context, spec SchemaSpec) error {
	return c.post(ctx, "/v1/schema", spec, nil)
}

type upsertRequest struct {
	Collection string   `json:"collection"`
	Objects    []Object `json:"objects"`
}

// BatchUpsert writes objects to collection in one request. The caller is
// responsible for keeping batches within whatever size limit the backing
// store enforces; this client does not split oversized batches.
func (c *HTTPClient) BatchUpsert(ctx context.Context, collection string, objects []Object) error {
	if len(objects) == 0 {
		return nil
	}
	return c.post(ctx, "/v1/objects/batch-upsert", upsertRequest{Collection: collection, Objects: objects}, nil)
}

type deleteRequest struct {
	Collection string      `json:"collection"`
	IDs        []uuid.UUID `json:"ids"`
}

// BatchDelete removes ids from collection in one request.
func (c *HTTPClient) BatchDelete(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.post(ctx, "/v1/objects/batch-delete", deleteRequest{Collection: collection, IDs: ids}, nil)
}

// Health checks that the vector-store service is reachable and ready.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func readBody(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(buf)
}

// StatusError wraps a non-2xx HTTP response from the vector store. Callers
// classify it via StatusCode: 429 maps to rate-limit, 5xx to vector-store
// failures eligible for retry, 4xx (other than 429) to validation errors
// that are not retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vector store returned status %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the error is a 429 response.
func (e *StatusError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// Retryable reports whether the status code indicates a transient
// server-side condition worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
