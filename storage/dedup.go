package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/sentvec/core"
)

// DefaultDedupBatchSize is the number of records deleted per batch.
const DefaultDedupBatchSize = 5000

// DedupReport summarizes a deduplication run.
type DedupReport struct {
	Groups     int  // texts stored more than once
	Duplicates int  // redundant records found
	Deleted    int  // redundant records removed
	DryRun     bool
}

// DedupOption configures Deduplicate.
type DedupOption func(*dedupConfig) error

type dedupConfig struct {
	batchSize int
	dryRun    bool
	logger    *slog.Logger
}

// WithBatchSize sets how many records are deleted per DeleteRecords call.
func WithBatchSize(n int) DedupOption {
	return func(c *dedupConfig) error {
		if n <= 0 {
			return ErrInvalidBatchSize
		}
		c.batchSize = n
		return nil
	}
}

// WithDryRun reports duplicates without deleting anything.
func WithDryRun(dryRun bool) DedupOption {
	return func(c *dedupConfig) error {
		c.dryRun = dryRun
		return nil
	}
}

// WithDedupLogger sets the logger.
func WithDedupLogger(logger *slog.Logger) DedupOption {
	return func(c *dedupConfig) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// Deduplicate removes records whose text is already stored, keeping the
// earliest inserted record of each group.
func Deduplicate(ctx context.Context, repo RecordRepository, opts ...DedupOption) (*DedupReport, error) {
	cfg := &dedupConfig{
		batchSize: DefaultDedupBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	logger := cfg.logger.With("component", "dedup")

	logger.Info("scanning for duplicates")
	groups, err := repo.FindDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}

	report := &DedupReport{Groups: len(groups), DryRun: cfg.dryRun}
	var redundant []core.ID
	for _, g := range groups {
		redundant = append(redundant, g.Redundant()...)
	}
	report.Duplicates = len(redundant)

	if cfg.dryRun {
		logger.Info("dry run, nothing deleted", "groups", report.Groups, "duplicates", report.Duplicates)
		return report, nil
	}

	for start := 0; start < len(redundant); start += cfg.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+cfg.batchSize, len(redundant))
		if err := repo.DeleteRecords(ctx, redundant[start:end]...); err != nil {
			return report, fmt.Errorf("deleting batch at %d: %w", start, err)
		}
		report.Deleted += end - start
		logger.Debug("deleted batch", "size", end-start, "total", report.Deleted)
	}

	logger.Info("deduplication complete", "groups", report.Groups, "deleted", report.Deleted)
	return report, nil
}
