// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRequiresVectorStoreURLUnlessDryRun(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)

	cfg.VectorStoreURL = "http://localhost:8080"
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile_MergesOntoBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection: widgets\nshards: 8\n"), 0o644))

	cfg, err := LoadYAMLFile(DefaultConfig(), path)
	require.NoError(t, err)
	require.Equal(t, "widgets", cfg.Collection)
	require.Equal(t, 8, cfg.Shards)
}

func TestLoadYAMLFile_MissingFileIsNoop(t *testing.T) {
	cfg, err := LoadYAMLFile(DefaultConfig(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("VECSYNC_COLLECTION", "from-env")
	t.Setenv("VECSYNC_SHARDS", "16")
	t.Setenv("VECSYNC_DRY_RUN", "true")

	cfg := ApplyEnv(DefaultConfig())
	require.Equal(t, "from-env", cfg.Collection)
	require.Equal(t, 16, cfg.Shards)
	require.True(t, cfg.DryRun)
}
