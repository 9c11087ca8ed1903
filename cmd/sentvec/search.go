package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/sentvec/search"
)

func searchCmd() *cli.Command {
	flags := []cli.Flag{
		dbFlag(),
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of results (default from config)",
		},
		&cli.Float64Flag{
			Name:  "min-similarity",
			Usage: "Minimum cosine similarity (default from config)",
		},
		&cli.BoolFlag{
			Name:  "exact",
			Usage: "Scan every record instead of using the vector index",
		},
	}
	return &cli.Command{
		Name:      "search",
		Usage:     "Find stored texts similar to a query",
		ArgsUsage: "<query>",
		Action:    searchCommand,
		Flags:     append(flags, embeddingFlags()...),
	}
}

func searchCommand(c *cli.Context) error {
	words := c.Args().Slice()
	for _, word := range words {
		if strings.HasPrefix(word, "--") && len(word) > 2 {
			return fmt.Errorf("flags must come before the query, got %q after it", word)
		}
	}
	query := strings.TrimSpace(strings.Join(words, " "))
	if query == "" {
		return errors.New("a query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("limit") {
		cfg.Search.Limit = c.Int("limit")
	}
	if c.IsSet("min-similarity") {
		cfg.Search.MinSimilarity = c.Float64("min-similarity")
	}
	if c.IsSet("exact") {
		cfg.Search.Exact = c.Bool("exact")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(
		search.WithExactSearch(cfg.Search.Exact),
		search.WithCacheTTL(cfg.Search.CacheTTL.Duration),
		search.WithCandidateFactor(cfg.Search.CandidateFactor),
	)
	if err != nil {
		return err
	}
	defer searcher.Close()

	results, err := searcher.Search(c.Context, query, cfg.Search.MinSimilarity, cfg.Search.Limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(c.App.Writer, "%d: '%s' (%d)[%0.3f]\n", i, hit.Record.Text, hit.Record.Id, hit.Score)
	}
	return nil
}
