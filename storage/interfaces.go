package storage

import (
	"context"
	"time"

	"github.com/poiesic/sentvec/core"
)

// Store persists one embedded item. It is the only storage capability the
// ingestion pipeline needs. Implementations must be safe for concurrent use
// by many store workers.
type Store interface {
	// Persist writes a record holding text, its embedding and the time the
	// embedding was produced.
	Persist(ctx context.Context, text string, vector []float64, createdAt time.Time) error
}

// RecordRepository provides operations for managing embedded records.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	Store

	// AddRecords adds one or more records to storage.
	// IDs are always generated from the repository sequence.
	// Returns the records with generated IDs populated.
	AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.Record, error)

	// GetRecords retrieves multiple records by their IDs.
	// Returns only the records that exist (no error for missing records).
	GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error)

	// ListRecords returns records with ID greater than after, in ID order.
	// A limit <= 0 returns all remaining records.
	ListRecords(ctx context.Context, after core.ID, limit int) ([]*core.Record, error)

	// CountRecords returns the number of stored records.
	CountRecords(ctx context.Context) (int, error)

	// UpdateRecords replaces the vector and timestamp of existing records,
	// leaving text and ID untouched. All or nothing.
	UpdateRecords(ctx context.Context, records ...*core.Record) error

	// DeleteRecords removes records by their IDs along with their index entries.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteRecords(ctx context.Context, ids ...core.ID) error

	// FindSimilar finds records similar to the given vector by exact cosine
	// similarity. Returns records with similarity >= minSimilarity, up to
	// limit results, ordered by score (highest first).
	FindSimilar(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]*core.SearchResult, error)

	// FindDuplicates groups records sharing exactly the same text.
	// Only groups with more than one record are returned. IDs within a
	// group are ascending, so the first ID is the earliest insert.
	FindDuplicates(ctx context.Context) ([]DuplicateGroup, error)

	// Close releases repository resources. It does not close the backend.
	Close() error
}

// DuplicateGroup is a set of records with identical text.
type DuplicateGroup struct {
	Text string
	IDs  []core.ID
}

// Keep returns the ID that survives deduplication.
func (g DuplicateGroup) Keep() core.ID {
	return g.IDs[0]
}

// Redundant returns the IDs removed by deduplication.
func (g DuplicateGroup) Redundant() []core.ID {
	return g.IDs[1:]
}

// CheckpointRepository stores progress markers for resumable jobs, keyed by
// job name.
type CheckpointRepository interface {
	// SaveCheckpoint creates or replaces the checkpoint for checkpoint.Name.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for name, or nil, nil if none exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for name. Deleting a missing
	// checkpoint is not an error.
	DeleteCheckpoint(ctx context.Context, name string) error
}
