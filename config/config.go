// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads sentvec settings from a TOML file, a .env file and
// SENTVEC_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/poiesic/sentvec/ai"
	"github.com/poiesic/sentvec/ingestion"
	"github.com/poiesic/sentvec/search"
	"github.com/poiesic/sentvec/storage"
)

// Environment variables that override file values.
const (
	EnvEmbeddingHost  = "SENTVEC_EMBEDDING_HOST"
	EnvEmbeddingModel = "SENTVEC_EMBEDDING_MODEL"
	EnvAPIKey         = "SENTVEC_API_KEY"
	EnvDBPath         = "SENTVEC_DB_PATH"
	EnvEmbedWorkers   = "SENTVEC_EMBED_WORKERS"
	EnvStoreWorkers   = "SENTVEC_STORE_WORKERS"
	EnvRateLimit      = "SENTVEC_RATE_LIMIT"
)

// ErrUnknownKeys is returned when the config file contains keys that do not
// map to any setting.
var ErrUnknownKeys = errors.New("unknown config keys")

// Duration is a time.Duration written as a string such as "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	Host       string   `toml:"host"`
	Model      string   `toml:"model"`
	APIKey     string   `toml:"api_key"`
	Timeout    Duration `toml:"timeout"`
	Retries    int      `toml:"retries"` // attempts per item; <= 1 disables retrying
	RetryDelay Duration `toml:"retry_delay"`
}

// StoreConfig locates the record database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// PipelineConfig configures bulk ingestion.
type PipelineConfig struct {
	EmbedWorkers    int      `toml:"embed_workers"`
	StoreWorkers    int      `toml:"store_workers"`
	RateLimit       Duration `toml:"rate_limit"`
	QueueCapacity   int      `toml:"queue_capacity"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	ReportInterval  int      `toml:"report_interval"`
}

// SearchConfig configures lookups.
type SearchConfig struct {
	Limit           int      `toml:"limit"`
	MinSimilarity   float64  `toml:"min_similarity"`
	Exact           bool     `toml:"exact"`
	CacheTTL        Duration `toml:"cache_ttl"`
	CandidateFactor int      `toml:"candidate_factor"`
}

// DedupConfig configures duplicate removal.
type DedupConfig struct {
	BatchSize int `toml:"batch_size"`
}

// Config is the complete sentvec configuration.
type Config struct {
	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"store"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Search    SearchConfig    `toml:"search"`
	Dedup     DedupConfig     `toml:"dedup"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Embedding: EmbeddingConfig{
			Host:       aiDefaults.EmbeddingHost,
			Model:      aiDefaults.EmbeddingModel,
			APIKey:     aiDefaults.APIKey,
			Timeout:    Duration{aiDefaults.Timeout},
			Retries:    1,
			RetryDelay: Duration{time.Second},
		},
		Store: StoreConfig{
			Path: "./sentvec_db",
		},
		Pipeline: PipelineConfig{
			EmbedWorkers:    ingestion.DefaultEmbedWorkers,
			StoreWorkers:    ingestion.DefaultStoreWorkers,
			ShutdownTimeout: Duration{ingestion.DefaultShutdownTimeout},
			ReportInterval:  100,
		},
		Search: SearchConfig{
			Limit:           search.DefaultLimit,
			MinSimilarity:   0,
			CacheTTL:        Duration{search.DefaultCacheTTL},
			CandidateFactor: search.DefaultCandidateFactor,
		},
		Dedup: DedupConfig{
			BatchSize: storage.DefaultDedupBatchSize,
		},
	}
}

// Load builds a Config from defaults, the TOML file at path, a .env file in
// the working directory and the environment. A missing file, or an empty
// path, leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				sort.Strings(keys)
				return nil, fmt.Errorf("%w in %s: %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
			}
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Embedding.Host, EnvEmbeddingHost)
	setString(&c.Embedding.Model, EnvEmbeddingModel)
	setString(&c.Embedding.APIKey, EnvAPIKey)
	setString(&c.Store.Path, EnvDBPath)

	if err := setInt(&c.Pipeline.EmbedWorkers, EnvEmbedWorkers); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.StoreWorkers, EnvStoreWorkers); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvRateLimit); ok && v != "" {
		if err := c.Pipeline.RateLimit.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate checks value ranges. Each worker pool needs at least one worker.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.EmbedWorkers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.embed_workers must be at least 1, got %d", c.Pipeline.EmbedWorkers))
	}
	if c.Pipeline.StoreWorkers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.store_workers must be at least 1, got %d", c.Pipeline.StoreWorkers))
	}
	if c.Pipeline.RateLimit.Duration < 0 {
		errs = append(errs, fmt.Errorf("pipeline.rate_limit must not be negative, got %s", c.Pipeline.RateLimit))
	}
	if c.Pipeline.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_capacity must not be negative, got %d", c.Pipeline.QueueCapacity))
	}
	if c.Dedup.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("dedup.batch_size must be at least 1, got %d", c.Dedup.BatchSize))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	return errors.Join(errs...)
}

// AIConfig returns the embedding settings as an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithTimeout(c.Embedding.Timeout.Duration),
	)
}
