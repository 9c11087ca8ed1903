package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/sentvec/storage"
)

func dedupCmd() *cli.Command {
	return &cli.Command{
		Name:   "dedup",
		Usage:  "Delete records whose text is already stored",
		Action: dedupCommand,
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of records deleted per batch (default from config)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report duplicates without deleting them",
			},
		},
	}
}

func dedupCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("batch-size") {
		cfg.Dedup.BatchSize = c.Int("batch-size")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.Deduplicate(c.Context,
		storage.WithBatchSize(cfg.Dedup.BatchSize),
		storage.WithDryRun(c.Bool("dry-run")),
	)
	if err != nil {
		return fmt.Errorf("deduplication failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Duplicate groups: %d\n", report.Groups)
	fmt.Fprintf(c.App.Writer, "Redundant records: %d\n", report.Duplicates)
	if report.DryRun {
		fmt.Fprintln(c.App.Writer, "Dry run: nothing deleted")
	} else {
		fmt.Fprintf(c.App.Writer, "Deleted: %d\n", report.Deleted)
	}
	return nil
}
