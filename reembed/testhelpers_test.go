package reembed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/sentvec/storage"
	"github.com/poiesic/sentvec/storage/badger"
)

func setupTestDB(t *testing.T) storage.RecordRepository {
	t.Helper()
	repo, _ := setupTestStore(t)
	return repo
}

// setupTestStore returns a record repository and a checkpoint store sharing
// one in-memory backend.
func setupTestStore(t *testing.T) (storage.RecordRepository, storage.CheckpointRepository) {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo, badger.NewCheckpointRepository(backend)
}

// seedRecords stores texts with a placeholder two-dimensional vector.
func seedRecords(t *testing.T, repo storage.RecordRepository, texts ...string) {
	t.Helper()
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Hour)
	for _, text := range texts {
		require.NoError(t, repo.Persist(ctx, text, []float64{1, 1}, ts))
	}
}
