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

package syncore

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/kraklabs/vecsync/pkg/vectorstore"
	"golang.org/x/time/rate"
)

// Classify maps an error into the fixed failure taxonomy. It inspects
// well-known error types (vectorstore.StatusError, context deadline,
// net.Error, fs.PathError) before falling back to CategoryUnknown, so a
// category is always assigned even for errors the classifier has never
// seen.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var statusErr *vectorstore.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.RateLimited():
			return CategoryRateLimit
		case statusErr.Retryable():
			return CategoryVectorStore
		default:
			return CategoryValidation
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return CategoryFilesystem
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return CategoryFilesystem
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "invalid character", "unexpected end of JSON", "illegal base64"):
		return CategoryEncoding
	case containsAny(msg, "out of memory", "cannot allocate memory"):
		return CategoryMemory
	}

	return CategoryUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) <= len(s) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// RetryPolicy is the per-category retry behavior a Worker consults (via
// ShouldRetry and BackoffDelay) before giving up on a vector-store call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   bool
}

// RetryPolicies is the fixed category -> policy table. Categories absent
// from the map (there are none by construction, CategoryUnknown included)
// fall back to a single, non-retried attempt.
var RetryPolicies = map[ErrorCategory]RetryPolicy{
	CategoryNetwork:     {MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, Retryable: true},
	CategoryVectorStore: {MaxAttempts: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 15 * time.Second, Retryable: true},
	CategoryFilesystem:  {MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 1 * time.Second, Retryable: true},
	CategoryRateLimit:   {MaxAttempts: 8, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Retryable: true},
	CategoryMemory:      {MaxAttempts: 1, Retryable: false},
	CategoryEncoding:    {MaxAttempts: 1, Retryable: false},
	CategoryTimeout:     {MaxAttempts: 4, BaseDelay: 300 * time.Millisecond, MaxDelay: 10 * time.Second, Retryable: true},
	CategoryValidation:  {MaxAttempts: 1, Retryable: false},
	CategoryUnknown:     {MaxAttempts: 1, Retryable: false},
}

func policyFor(cat ErrorCategory) RetryPolicy {
	if p, ok := RetryPolicies[cat]; ok {
		return p
	}
	return RetryPolicy{MaxAttempts: 1}
}

// ShouldRetry reports whether attempt (1-based, the attempt about to be
// made) is still within cat's retry budget.
func ShouldRetry(cat ErrorCategory, attempt int) bool {
	p := policyFor(cat)
	return p.Retryable && attempt <= p.MaxAttempts
}

// BackoffDelay computes the delay before attempt (1-based) for cat, using
// full exponential backoff with jitter: delay = min(maxDelay, base *
// 2^(attempt-1)), then a uniform random value in [0, delay) is returned so
// concurrent workers retrying the same failure mode do not all wake at
// once.
func BackoffDelay(cat ErrorCategory, attempt int) time.Duration {
	p := policyFor(cat)
	if p.BaseDelay <= 0 {
		return 0
	}
	exp := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(p.BaseDelay) * exp)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

// breakerState is one category's consecutive-failure counter and probe
// limiter; see CircuitBreaker for the tripping/probing behavior this
// implements per category.
type breakerState struct {
	consecutive int
	probe       *rate.Limiter
}

// CircuitBreaker trips a category after a run of consecutive failures in
// that category alone, so a persistent outage in one error category (say,
// vector-store) fails fast instead of burning through every remaining
// line's retry budget one at a time, without also blocking calls destined
// to fail (or succeed) for an unrelated category (say, filesystem). Each
// category gets its own independent consecutive-failure counter and its
// own golang.org/x/time/rate limiter with a single-token burst governing
// probe cadence after a trip: once tripped that category's one token is
// drained immediately, so the next call in that category is allowed only
// after cooldown has refilled it, and every call after that is throttled
// to at most one probe per cooldown until a success in that category
// resets it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	states    map[ErrorCategory]*breakerState
}

// NewCircuitBreaker builds a breaker whose per-category counters open
// after threshold consecutive failures in that category and stay open for
// cooldown before allowing a probe.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 10
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[ErrorCategory]*breakerState),
	}
}

func (c *CircuitBreaker) stateFor(cat ErrorCategory) *breakerState {
	s, ok := c.states[cat]
	if !ok {
		s = &breakerState{probe: rate.NewLimiter(rate.Every(c.cooldown), 1)}
		c.states[cat] = s
	}
	return s
}

// Allow reports whether a call that may fail with category cat should
// proceed. Below threshold every call for cat is allowed; once cat has
// tripped, calls are allowed only at that category's probe cadence. An
// empty cat (no classified failure has happened yet for the call about to
// be attempted) is always allowed, since there is no history to gate on.
func (c *CircuitBreaker) Allow(cat ErrorCategory) bool {
	if cat == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stateFor(cat)
	if s.consecutive < c.threshold {
		return true
	}
	return s.probe.Allow()
}

// RecordFailure marks one call classified as cat as failed, tripping that
// category's counter once its consecutive failures reach the threshold
// and draining its probe limiter's initial burst so the category's next
// call waits a full cooldown.
func (c *CircuitBreaker) RecordFailure(cat ErrorCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stateFor(cat)
	s.consecutive++
	if s.consecutive == c.threshold {
		s.probe.AllowN(time.Now(), 1)
	}
}

// RecordSuccess resets cat's counter to closed and refills its probe
// limiter for the next trip. It does not affect any other category.
func (c *CircuitBreaker) RecordSuccess(cat ErrorCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stateFor(cat)
	s.consecutive = 0
	s.probe = rate.NewLimiter(rate.Every(c.cooldown), 1)
}

// Open reports whether cat's counter is currently blocking calls.
func (c *CircuitBreaker) Open(cat ErrorCategory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stateFor(cat)
	return s.consecutive >= c.threshold && s.probe.Tokens() < 1
}
