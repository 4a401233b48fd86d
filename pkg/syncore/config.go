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
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment-variable override this
// package recognizes, e.g. VECSYNC_COLLECTION.
const envPrefix = "VECSYNC_"

// Config is the fully-resolved set of knobs one sync invocation runs
// with. Precedence, highest first: command-line flags, environment
// variables, a YAML config file, compiled-in defaults.
type Config struct {
	Collection string `yaml:"collection"`
	Repo       string `yaml:"repo"`

	VectorStoreURL string `yaml:"vector_store_url"`
	VectorStoreKey string `yaml:"vector_store_key"`

	CheckpointPath string `yaml:"checkpoint_path"`
	RootDir        string `yaml:"root_dir"`

	Shards          int   `yaml:"shards"`
	BatchMaxObjects int   `yaml:"batch_max_objects"`
	BatchMaxBytes   int   `yaml:"batch_max_bytes"`
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	ExcludeGlobs []string `yaml:"exclude_globs"`

	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldownS int           `yaml:"circuit_breaker_cooldown_seconds"`

	DryRun bool `yaml:"dry_run"`
	Resume bool `yaml:"resume"`
	Force  bool `yaml:"force"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	JSON        bool   `yaml:"json"`
	Quiet       bool   `yaml:"quiet"`
	NoColor     bool   `yaml:"no_color"`
}

// DefaultConfig returns the package's compiled-in defaults, the bottom of
// the precedence stack.
func DefaultConfig() Config {
	return Config{
		Collection:              "default",
		Shards:                  4,
		BatchMaxObjects:         DefaultBatcherConfig.MaxObjects,
		BatchMaxBytes:           DefaultBatcherConfig.MaxBytes,
		MaxFileSizeBytes:        1 << 20,
		ExcludeGlobs:            append([]string(nil), DefaultExcludeGlobs...),
		EmbeddingDimensions:     256,
		CircuitBreakerThreshold: 10,
		CircuitBreakerCooldownS: 30,
		CheckpointPath:          ".vecsync/checkpoint.db",
		LogLevel:                "info",
		LogFormat:               "text",
		Resume:                  true,
	}
}

// LoadYAMLFile merges path's contents onto base, returning the merged
// config. A key absent from the YAML document leaves base's value in
// place, since yaml.Unmarshal only overwrites keys that are present; a key
// present with a zero value (e.g. "resume: false") does overwrite it.
func LoadYAMLFile(base Config, path string) (Config, error) {
	if path == "" {
		return base, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, &base); err != nil {
		return base, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return base, nil
}

// ApplyEnv overrides cfg's fields from VECSYNC_*-prefixed environment
// variables, e.g. VECSYNC_COLLECTION, VECSYNC_SHARDS, VECSYNC_DRY_RUN.
// Only the fields read below have a variable; RootDir, BatchMaxBytes,
// ExcludeGlobs, EmbeddingDimensions, the circuit-breaker settings, Force,
// LogFormat, JSON, Quiet and NoColor are not read from the environment.
func ApplyEnv(cfg Config) Config {
	if v, ok := lookupEnv("COLLECTION"); ok {
		cfg.Collection = v
	}
	if v, ok := lookupEnv("REPO"); ok {
		cfg.Repo = v
	}
	if v, ok := lookupEnv("VECTOR_STORE_URL"); ok {
		cfg.VectorStoreURL = v
	}
	if v, ok := lookupEnv("VECTOR_STORE_KEY"); ok {
		cfg.VectorStoreKey = v
	}
	if v, ok := lookupEnv("CHECKPOINT_PATH"); ok {
		cfg.CheckpointPath = v
	}
	if v, ok := lookupEnvInt("SHARDS"); ok {
		cfg.Shards = v
	}
	if v, ok := lookupEnvInt("BATCH_MAX_OBJECTS"); ok {
		cfg.BatchMaxObjects = v
	}
	if v, ok := lookupEnvInt64("MAX_FILE_SIZE_BYTES"); ok {
		cfg.MaxFileSizeBytes = v
	}
	if v, ok := lookupEnvBool("DRY_RUN"); ok {
		cfg.DryRun = v
	}
	if v, ok := lookupEnvBool("RESUME"); ok {
		cfg.Resume = v
	}
	if v, ok := lookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return cfg
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	return v, ok && v != ""
}

func lookupEnvInt(name string) (int, bool) {
	raw, ok := lookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func lookupEnvInt64(name string) (int64, bool) {
	raw, ok := lookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	return n, err == nil
}

func lookupEnvBool(name string) (bool, bool) {
	raw, ok := lookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}

// Validate reports a configuration error a flag parser would not have
// caught, such as a missing vector-store URL when not running --dry-run.
func (c Config) Validate() error {
	var problems []string
	if c.Collection == "" {
		problems = append(problems, "collection must not be empty")
	}
	if !c.DryRun && c.VectorStoreURL == "" {
		problems = append(problems, "vector-store-url is required unless --dry-run is set")
	}
	if c.Shards <= 0 {
		problems = append(problems, "shards must be positive")
	}
	if c.BatchMaxObjects <= 0 {
		problems = append(problems, "batch-max-objects must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
