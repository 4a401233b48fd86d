// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestReporter_Counters(t *testing.T) {
	r := NewReporter(nil)
	r.IncResolved()
	r.IncResolved()
	r.IncUpserted()
	r.IncFailed()

	snap := r.Snapshot()
	require.Equal(t, int64(2), snap.Resolved)
	require.Equal(t, int64(1), snap.Upserted)
	require.Equal(t, int64(1), snap.Failed)
}

func TestReporter_RegistersPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewReporter(reg)
	r.IncUpserted()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestProgressSnapshot_RecordsPerSecond_ZeroElapsed(t *testing.T) {
	snap := ProgressSnapshot{Resolved: 10}
	require.Equal(t, float64(0), snap.RecordsPerSecond())
}
