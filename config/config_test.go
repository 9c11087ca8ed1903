package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentvec.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1, cfg.Pipeline.EmbedWorkers)
	assert.Equal(t, 25, cfg.Pipeline.StoreWorkers)
	assert.Zero(t, cfg.Pipeline.RateLimit.Duration)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[embedding]
host = "http://embed.local:8080"
model = "nomic-embed-text"
timeout = "5s"
retries = 3

[store]
path = "/var/lib/sentvec"

[pipeline]
embed_workers = 2
store_workers = 10
rate_limit = "250ms"
queue_capacity = 64

[search]
limit = 7
min_similarity = 0.6
exact = true
cache_ttl = "1m"

[dedup]
batch_size = 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://embed.local:8080", cfg.Embedding.Host)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout.Duration)
	assert.Equal(t, 3, cfg.Embedding.Retries)
	assert.Equal(t, "/var/lib/sentvec", cfg.Store.Path)
	assert.Equal(t, 2, cfg.Pipeline.EmbedWorkers)
	assert.Equal(t, 10, cfg.Pipeline.StoreWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RateLimit.Duration)
	assert.Equal(t, 64, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, 7, cfg.Search.Limit)
	assert.InDelta(t, 0.6, cfg.Search.MinSimilarity, 1e-9)
	assert.True(t, cfg.Search.Exact)
	assert.Equal(t, time.Minute, cfg.Search.CacheTTL.Duration)
	assert.Equal(t, 100, cfg.Dedup.BatchSize)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, Default().Pipeline.ShutdownTimeout, cfg.Pipeline.ShutdownTimeout)
	assert.Equal(t, Default().Embedding.APIKey, cfg.Embedding.APIKey)
}

func TestLoad_UnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[pipeline]
embed_worker = 2
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnknownKeys)
	assert.Contains(t, err.Error(), "pipeline.embed_worker")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
[pipeline]
rate_limit = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[embedding]
host = "http://from-file"

[pipeline]
embed_workers = 2
`)
	t.Setenv(EnvEmbeddingHost, "http://from-env")
	t.Setenv(EnvAPIKey, "secret")
	t.Setenv(EnvDBPath, "/tmp/env-db")
	t.Setenv(EnvEmbedWorkers, "3")
	t.Setenv(EnvRateLimit, "1s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.Embedding.Host)
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
	assert.Equal(t, "/tmp/env-db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Pipeline.EmbedWorkers)
	assert.Equal(t, time.Second, cfg.Pipeline.RateLimit.Duration)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv(EnvStoreWorkers, "many")
	_, err := Load("")
	assert.ErrorContains(t, err, EnvStoreWorkers)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.EmbedWorkers = 0
	cfg.Pipeline.StoreWorkers = -1
	cfg.Pipeline.RateLimit.Duration = -time.Second
	cfg.Dedup.BatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed_workers")
	assert.Contains(t, err.Error(), "store_workers")
	assert.Contains(t, err.Error(), "rate_limit")
	assert.Contains(t, err.Error(), "batch_size")
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Host = "http://localhost:9000"
	cfg.Embedding.Model = "m"

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://localhost:9000/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, "m", aiCfg.EmbeddingModel)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
