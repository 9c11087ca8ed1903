package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sentvec/core"
	"github.com/poiesic/sentvec/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) (storage.RecordRepository, error) {
	return newRecordRepository(backend)
}

func newRecordRepository(backend *Backend) (*RecordRepository, error) {
	idSeq, err := backend.GetSequence(recordIDSeq)
	if err != nil {
		return nil, err
	}

	return &RecordRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RecordRepository) Close() error {
	return r.idSeq.Release()
}

// Persist stores a single embedded text.
func (r *RecordRepository) Persist(ctx context.Context, text string, vector []float64, createdAt time.Time) error {
	record := &core.Record{
		Text:      text,
		Vector:    vector,
		CreatedAt: createdAt,
	}
	_, err := r.AddRecords(ctx, record)
	return err
}

// AddRecords adds one or more records to storage.
func (r *RecordRepository) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			nextID, err := r.nextID()
			if err != nil {
				return err
			}
			record.Id = nextID

			if err := tx.Set(makeRecordKey(record.Id), storage.MarshalRecord(record)); err != nil {
				return err
			}

			// Duplicate index
			if err := tx.Set(makeRecordTextKey(record.Text, record.Id), storage.MarshalID(record.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *RecordRepository) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// DeleteRecords removes records by their IDs.
func (r *RecordRepository) DeleteRecords(ctx context.Context, ids ...core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeRecordKey(id)

			// Read record to get its text for index cleanup
			record, err := r.readRecord(tx, key)
			if err != nil {
				return err
			}
			if record == nil {
				return storage.ErrNotFound
			}

			if err := tx.Delete(makeRecordTextKey(record.Text, record.Id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// UpdateRecords replaces the vector and timestamp of existing records.
// Text and ID are never changed. Returns storage.ErrNotFound if any record
// is missing, in which case nothing is written.
func (r *RecordRepository) UpdateRecords(ctx context.Context, records ...*core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key := makeRecordKey(record.Id)
			existing, err := r.readRecord(tx, key)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("record %d: %w", record.Id, storage.ErrNotFound)
			}

			existing.Vector = record.Vector
			existing.CreatedAt = record.CreatedAt
			if err := core.ValidateRecord(existing); err != nil {
				return err
			}
			if err := tx.Set(key, storage.MarshalRecord(existing)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.ID) (*core.Record, error) {
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readRecord(tx, makeRecordKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetRecords retrieves multiple records by their IDs.
func (r *RecordRepository) GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error) {
	var result []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := r.readRecord(tx, makeRecordKey(id))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListRecords returns records with ID greater than after, in ID order.
func (r *RecordRepository) ListRecords(ctx context.Context, after core.ID, limit int) ([]*core.Record, error) {
	if after == ^core.ID(0) {
		return nil, nil
	}
	var results []*core.Record
	err := r.scan(ctx, makeRecordKey(after+1), func(record *core.Record) bool {
		results = append(results, record)
		return limit <= 0 || len(results) < limit
	})
	return results, err
}

// CountRecords returns the number of stored records.
func (r *RecordRepository) CountRecords(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if _, ok := recordIDFromKey(iter.Item().Key()); ok {
				count++
			}
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar scans every record and scores it by cosine similarity.
func (r *RecordRepository) FindSimilar(ctx context.Context, vector []float64, minSimilarity float64, limit int) ([]*core.SearchResult, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.SearchResult
	err := r.scan(ctx, makeRecordKey(0), func(record *core.Record) bool {
		// Skip records without embeddings
		if len(record.Vector) == 0 {
			return true
		}
		similarity := core.CosineSimilarity(vector, record.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{
				Record: record,
				Score:  similarity,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by ID
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Record.Id < b.Record.Id:
			return -1
		case a.Record.Id > b.Record.Id:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// FindDuplicates walks the duplicate index, where keys sharing a content
// hash are adjacent and ordered by record ID.
func (r *RecordRepository) FindDuplicates(ctx context.Context) ([]storage.DuplicateGroup, error) {
	var groups []storage.DuplicateGroup

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordTextPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var (
			currentHash core.ID
			currentIDs  []core.ID
			started     bool
		)
		flush := func() error {
			if len(currentIDs) < 2 {
				return nil
			}
			found, err := r.splitByText(tx, currentIDs)
			if err != nil {
				return err
			}
			groups = append(groups, found...)
			return nil
		}

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, id, ok := textKeyParts(iter.Item().Key())
			if !ok {
				continue
			}
			if !started || hash != currentHash {
				if err := flush(); err != nil {
					return err
				}
				currentHash = hash
				currentIDs = nil
				started = true
			}
			currentIDs = append(currentIDs, id)
		}
		return flush()
	}, false)
	if err != nil {
		return nil, err
	}

	// Earliest surviving record first
	slices.SortFunc(groups, func(a, b storage.DuplicateGroup) int {
		return cmp.Compare(a.IDs[0], b.IDs[0])
	})
	return groups, nil
}

// splitByText confirms a hash bucket by exact text comparison.
func (r *RecordRepository) splitByText(tx *badger.Txn, ids []core.ID) ([]storage.DuplicateGroup, error) {
	byText := make(map[string][]core.ID)
	var order []string
	for _, id := range ids {
		record, err := r.readRecord(tx, makeRecordKey(id))
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		if _, seen := byText[record.Text]; !seen {
			order = append(order, record.Text)
		}
		byText[record.Text] = append(byText[record.Text], id)
	}

	var groups []storage.DuplicateGroup
	for _, text := range order {
		if len(byText[text]) > 1 {
			groups = append(groups, storage.DuplicateGroup{Text: text, IDs: byText[text]})
		}
	}
	return groups, nil
}

// scan iterates records in ID order starting at seek until fn returns false.
func (r *RecordRepository) scan(ctx context.Context, seek []byte, fn func(*core.Record) bool) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			if _, ok := recordIDFromKey(item.Key()); !ok {
				continue
			}

			var record *core.Record
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fn(record) {
				return nil
			}
		}
		return nil
	}, false)
}

// readRecord reads a record by key. Returns nil, nil if the key is absent.
func (r *RecordRepository) readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		return err
	})
	return record, err
}
