package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/sentvec/reembed"
)

func reembedCmd() *cli.Command {
	flags := []cli.Flag{
		dbFlag(),
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of records to process in each batch",
			Value: reembed.DefaultBatchSize,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N records",
			Value: 100,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts per embedding call",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: 1 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Continue after the last checkpoint of an interrupted run",
		},
	}
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Recompute the embedding of every stored record",
		Action: reembedCommand,
		Flags:  append(flags, embeddingFlags()...),
	}
}

func reembedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Resume:         c.Bool("resume"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	// The reembedder retries on its own.
	cfg.Embedding.Retries = 1
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Store.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Updated: %d of %d (%d failed)\n", result.Updated, result.Total, result.Failed)
	return nil
}
