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
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProgressSnapshot is a point-in-time read of a Reporter's counters.
type ProgressSnapshot struct {
	Resolved  int64
	Upserted  int64
	Deleted   int64
	Skipped   int64
	Failed    int64
	Elapsed   time.Duration
}

// RecordsPerSecond returns the snapshot's overall throughput.
func (s ProgressSnapshot) RecordsPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(s.Resolved) / secs
}

// Reporter accumulates counters for one run and exposes them both as a
// plain snapshot (for the CLI's human/JSON summary) and as Prometheus
// gauges (for --metrics-addr). All increments are lock-free.
type Reporter struct {
	startedAt time.Time

	resolved int64
	upserted int64
	deleted  int64
	skipped  int64
	failed   int64

	metrics *metricsSet
}

// NewReporter starts a Reporter's clock. If reg is non-nil the reporter's
// counters are also registered as Prometheus gauges against it.
func NewReporter(reg prometheus.Registerer) *Reporter {
	r := &Reporter{startedAt: time.Now()}
	if reg != nil {
		r.metrics = newMetricsSet(reg)
	}
	return r
}

func (r *Reporter) IncResolved() { atomic.AddInt64(&r.resolved, 1); r.refreshMetrics() }
func (r *Reporter) IncUpserted() { atomic.AddInt64(&r.upserted, 1); r.refreshMetrics() }
func (r *Reporter) IncDeleted()  { atomic.AddInt64(&r.deleted, 1); r.refreshMetrics() }
func (r *Reporter) IncSkipped()  { atomic.AddInt64(&r.skipped, 1); r.refreshMetrics() }
func (r *Reporter) IncFailed()   { atomic.AddInt64(&r.failed, 1); r.refreshMetrics() }

// Snapshot reads every counter consistently enough for reporting purposes
// (each field is read atomically, but the set as a whole is not a single
// atomic operation, which is acceptable for a progress display).
func (r *Reporter) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Resolved: atomic.LoadInt64(&r.resolved),
		Upserted: atomic.LoadInt64(&r.upserted),
		Deleted:  atomic.LoadInt64(&r.deleted),
		Skipped:  atomic.LoadInt64(&r.skipped),
		Failed:   atomic.LoadInt64(&r.failed),
		Elapsed:  time.Since(r.startedAt),
	}
}

func (r *Reporter) refreshMetrics() {
	if r.metrics == nil {
		return
	}
	s := r.Snapshot()
	r.metrics.resolved.Set(float64(s.Resolved))
	r.metrics.upserted.Set(float64(s.Upserted))
	r.metrics.deleted.Set(float64(s.Deleted))
	r.metrics.skipped.Set(float64(s.Skipped))
	r.metrics.failed.Set(float64(s.Failed))
}

// Ticker invokes fn every interval until done is closed, and once more
// when it is closed so the caller sees a final snapshot.
func (r *Reporter) Ticker(done <-chan struct{}, interval time.Duration, fn func(ProgressSnapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fn(r.Snapshot())
			return
		case <-ticker.C:
			fn(r.Snapshot())
		}
	}
}

type metricsSet struct {
	resolved prometheus.Gauge
	upserted prometheus.Gauge
	deleted  prometheus.Gauge
	skipped  prometheus.Gauge
	failed   prometheus.Gauge
}

func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	m := &metricsSet{
		resolved: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "vecsync", Name: "lines_resolved", Help: "Lines resolved so far in the current run."}),
		upserted: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "vecsync", Name: "objects_upserted", Help: "Objects written to the vector store so far."}),
		deleted:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "vecsync", Name: "objects_deleted", Help: "Objects deleted from the vector store so far."}),
		skipped:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "vecsync", Name: "lines_skipped", Help: "Lines skipped by resolver policy so far."}),
		failed:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "vecsync", Name: "lines_failed", Help: "Lines with an outstanding failure record."}),
	}
	reg.MustRegister(m.resolved, m.upserted, m.deleted, m.skipped, m.failed)
	return m
}
