package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	defaultSequenceBandwidth = 100

	// DefaultGCDiscardRatio is the share of stale data a value log file
	// needs before CollectGarbage rewrites it.
	DefaultGCDiscardRatio = 0.5

	// maxGCRounds bounds a single CollectGarbage call.
	maxGCRounds = 16
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db       *badger.DB
	inMemory bool
	logger   *slog.Logger
}

// badgerLoggerAdapter routes badger's printf-style logging through slog.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

// Badger is chatty at info level; its info messages go to debug.
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens the record store at dir, creating the directory if
// needed. With inMemory set dir is ignored and nothing touches the disk.
// A nil logger means slog.Default().
func OpenBackend(dir string, inMemory bool, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badger.DefaultOptions("").WithInMemory(true)
	if !inMemory {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	// Records are mostly float vectors, which compress poorly.
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store at %q: %w", dir, err)
	}
	logger.Debug("store opened", "dir", dir, "in_memory", inMemory)

	return &Backend{
		db:       db,
		inMemory: inMemory,
		logger:   logger,
	}, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("store directory is required")
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn inside a transaction that is discarded when fn returns.
// Write transactions are only persisted if fn calls tx.Commit.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns a BadgerDB sequence for generating sequential IDs.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}

// CollectGarbage reclaims value log space left behind by deleted or
// rewritten records. It returns the number of files rewritten. In-memory
// stores have no value log and always report zero.
func (b *Backend) CollectGarbage(discardRatio float64) (int, error) {
	if b.inMemory {
		return 0, nil
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = DefaultGCDiscardRatio
	}

	rewritten := 0
	for rewritten < maxGCRounds {
		err := b.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			return rewritten, fmt.Errorf("value log gc: %w", err)
		}
		rewritten++
	}
	b.logger.Debug("value log gc finished", "rewritten", rewritten)
	return rewritten, nil
}
