// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kraklabs/vecsync/pkg/vectorstore"
	"github.com/stretchr/testify/require"
)

func TestClassify_VectorStoreRateLimit(t *testing.T) {
	err := &vectorstore.StatusError{StatusCode: http.StatusTooManyRequests}
	require.Equal(t, CategoryRateLimit, Classify(err))
}

func TestClassify_VectorStoreServerError(t *testing.T) {
	err := &vectorstore.StatusError{StatusCode: http.StatusInternalServerError}
	require.Equal(t, CategoryVectorStore, Classify(err))
}

func TestClassify_VectorStoreClientError(t *testing.T) {
	err := &vectorstore.StatusError{StatusCode: http.StatusBadRequest}
	require.Equal(t, CategoryValidation, Classify(err))
}

func TestClassify_ContextDeadline(t *testing.T) {
	require.Equal(t, CategoryTimeout, Classify(context.DeadlineExceeded))
}

func TestClassify_Unknown(t *testing.T) {
	require.Equal(t, CategoryUnknown, Classify(errors.New("something weird")))
}

func TestShouldRetry_RespectsMaxAttempts(t *testing.T) {
	require.True(t, ShouldRetry(CategoryNetwork, 1))
	require.True(t, ShouldRetry(CategoryNetwork, 5))
	require.False(t, ShouldRetry(CategoryNetwork, 6))
	require.False(t, ShouldRetry(CategoryValidation, 1))
}

func TestBackoffDelay_BoundedByMaxDelay(t *testing.T) {
	d := BackoffDelay(CategoryRateLimit, 20)
	require.LessOrEqual(t, d, RetryPolicies[CategoryRateLimit].MaxDelay)
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)
	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow(CategoryVectorStore))
		cb.RecordFailure(CategoryVectorStore)
	}
	require.False(t, cb.Allow(CategoryVectorStore))
	require.True(t, cb.Open(CategoryVectorStore))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	require.True(t, cb.Allow(CategoryNetwork))
	cb.RecordFailure(CategoryNetwork)
	require.True(t, cb.Allow(CategoryNetwork))
	cb.RecordFailure(CategoryNetwork)
	require.False(t, cb.Allow(CategoryNetwork))

	cb.RecordSuccess(CategoryNetwork)
	require.True(t, cb.Allow(CategoryNetwork))
	require.False(t, cb.Open(CategoryNetwork))
}

func TestCircuitBreaker_ProbeAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.True(t, cb.Allow(CategoryTimeout))
	cb.RecordFailure(CategoryTimeout)
	require.False(t, cb.Allow(CategoryTimeout))

	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow(CategoryTimeout))
}

func TestCircuitBreaker_CategoriesAreIndependent(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	require.True(t, cb.Allow(CategoryFilesystem))
	cb.RecordFailure(CategoryFilesystem)
	require.True(t, cb.Allow(CategoryFilesystem))
	cb.RecordFailure(CategoryFilesystem)
	require.False(t, cb.Allow(CategoryFilesystem))

	// A burst of filesystem failures must not trip vector-store's counter.
	require.True(t, cb.Allow(CategoryVectorStore))
	require.False(t, cb.Open(CategoryVectorStore))
}

func TestCircuitBreaker_EmptyCategoryAlwaysAllowed(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	cb.RecordFailure(CategoryVectorStore)
	require.False(t, cb.Allow(CategoryVectorStore))
	require.True(t, cb.Allow(""))
}
