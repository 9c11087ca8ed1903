package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) storage.RecordRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func TestPersistAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)

	require.NoError(t, repo.Persist(ctx, "Hello, world!", []float64{0.1, 0.2}, ts))

	records, err := repo.ListRecords(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotZero(t, records[0].Id)

	got, err := repo.GetRecord(ctx, records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got.Text)
	assert.Equal(t, []float64{0.1, 0.2}, got.Vector)
	assert.True(t, ts.Equal(got.CreatedAt))
}

func TestPersist_Invalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.Persist(ctx, "  ", []float64{1}, time.Now())
	assert.ErrorIs(t, err, core.ErrEmptyText)

	err = repo.Persist(ctx, "text", nil, time.Now())
	assert.ErrorIs(t, err, core.ErrEmptyVector)

	err = repo.Persist(ctx, "text", []float64{1}, time.Time{})
	assert.ErrorIs(t, err, core.ErrInvalidTimestamp)

	count, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPersist_CancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Persist(ctx, "text", []float64{1}, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersist_Concurrent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Persist(ctx, fmt.Sprintf("item %d", i), []float64{float64(i), 1}, time.Now()))
		}(i)
	}
	wg.Wait()

	count, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	records, err := repo.ListRecords(ctx, 0, 0)
	require.NoError(t, err)
	seen := make(map[core.ID]bool)
	for _, r := range records {
		assert.False(t, seen[r.Id], "IDs are unique")
		seen[r.Id] = true
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRecord(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetRecords_SkipsMissing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	added, err := repo.AddRecords(ctx,
		&core.Record{Text: "a", Vector: []float64{1}, CreatedAt: time.Now()},
		&core.Record{Text: "b", Vector: []float64{1}, CreatedAt: time.Now()},
	)
	require.NoError(t, err)

	got, err := repo.GetRecords(ctx, added[0].Id, 999, added[1].Id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)
}

func TestListRecords_Paging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Persist(ctx, fmt.Sprintf("r%d", i), []float64{1}, time.Now()))
	}

	page1, err := repo.ListRecords(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := repo.ListRecords(ctx, page1[1].Id, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Greater(t, page2[0].Id, page1[1].Id)

	rest, err := repo.ListRecords(ctx, page2[1].Id, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	none, err := repo.ListRecords(ctx, ^core.ID(0), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	added, err := repo.AddRecords(ctx,
		&core.Record{Text: "dup", Vector: []float64{1}, CreatedAt: time.Now()},
		&core.Record{Text: "dup", Vector: []float64{1}, CreatedAt: time.Now()},
	)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteRecords(ctx, added[1].Id))

	_, err = repo.GetRecord(ctx, added[1].Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The duplicate index entry went with it.
	groups, err := repo.FindDuplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	err = repo.DeleteRecords(ctx, added[1].Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, repo.Persist(ctx, "first", []float64{1, 0}, ts))
	require.NoError(t, repo.Persist(ctx, "second", []float64{0, 1}, ts))
	records, err := repo.ListRecords(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.UpdateRecords(ctx, &core.Record{
		Id:        records[0].Id,
		Text:      "ignored",
		Vector:    []float64{0.5, 0.5, 0.5},
		CreatedAt: now,
	}))

	got, err := repo.GetRecord(ctx, records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text, "text is never rewritten")
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, got.Vector)
	assert.True(t, now.Equal(got.CreatedAt))

	// The duplicate index still points at the original text.
	require.NoError(t, repo.Persist(ctx, "first", []float64{1, 0}, ts))
	groups, err := repo.FindDuplicates(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "first", groups[0].Text)
}

func TestUpdateRecords_MissingIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, repo.Persist(ctx, "kept", []float64{1, 0}, ts))
	records, err := repo.ListRecords(ctx, 0, 0)
	require.NoError(t, err)

	err = repo.UpdateRecords(ctx,
		&core.Record{Id: records[0].Id, Vector: []float64{0, 1}, CreatedAt: ts},
		&core.Record{Id: 9999, Vector: []float64{0, 1}, CreatedAt: ts},
	)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := repo.GetRecord(ctx, records[0].Id)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, got.Vector)
}

func TestUpdateRecords_RejectsEmptyVector(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, repo.Persist(ctx, "kept", []float64{1, 0}, ts))
	records, err := repo.ListRecords(ctx, 0, 0)
	require.NoError(t, err)

	err = repo.UpdateRecords(ctx, &core.Record{Id: records[0].Id, CreatedAt: ts})
	assert.ErrorIs(t, err, core.ErrEmptyVector)
}

func TestFindSimilar(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	_, err := repo.AddRecords(ctx,
		&core.Record{Text: "east", Vector: []float64{1, 0}, CreatedAt: now},
		&core.Record{Text: "north-east", Vector: []float64{1, 1}, CreatedAt: now},
		&core.Record{Text: "north", Vector: []float64{0, 1}, CreatedAt: now},
		&core.Record{Text: "west", Vector: []float64{-1, 0}, CreatedAt: now},
	)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float64{2, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Record.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "north-east", results[1].Record.Text)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)

	limited, err := repo.FindSimilar(ctx, []float64{1, 0}, -1, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "east", limited[0].Record.Text)
}

func TestFindSimilar_InvalidQuery(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.FindSimilar(context.Background(), nil, 0, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = repo.FindSimilar(context.Background(), []float64{1}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestFindDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, text := range []string{"alpha", "beta", "alpha", "gamma", "beta", "alpha"} {
		require.NoError(t, repo.Persist(ctx, text, []float64{1}, time.Now()))
	}

	groups, err := repo.FindDuplicates(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "alpha", groups[0].Text)
	assert.Len(t, groups[0].IDs, 3)
	assert.Equal(t, "beta", groups[1].Text)
	assert.Len(t, groups[1].IDs, 2)

	for _, g := range groups {
		for i := 1; i < len(g.IDs); i++ {
			assert.Less(t, g.IDs[i-1], g.IDs[i])
		}
		keep, err := repo.GetRecord(ctx, g.Keep())
		require.NoError(t, err)
		assert.Equal(t, g.Text, keep.Text)
	}
}
