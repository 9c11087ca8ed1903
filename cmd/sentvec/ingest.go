package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/sentvec/config"
	"github.com/poiesic/sentvec/ingestion"
	"github.com/poiesic/sentvec/metrics"
	"github.com/poiesic/sentvec/source"
)

func ingestCmd() *cli.Command {
	flags := []cli.Flag{
		dbFlag(),
		&cli.StringFlag{
			Name:  "src",
			Usage: "Text file with one item per line",
		},
		&cli.StringFlag{
			Name:  "news",
			Usage: "News queue JSON file; unprocessed articles are ingested",
		},
		&cli.BoolFlag{
			Name:  "mark-processed",
			Usage: "Mark ingested news articles as processed",
			Value: true,
		},
		&cli.IntFlag{
			Name:  "embed-workers",
			Usage: "Number of embed workers (default from config)",
		},
		&cli.IntFlag{
			Name:  "store-workers",
			Usage: "Number of store workers (default from config)",
		},
		&cli.DurationFlag{
			Name:  "rate-limit",
			Usage: "Delay after every embedding call",
		},
		&cli.IntFlag{
			Name:  "queue-capacity",
			Usage: "Bound on buffered items per queue, 0 for unbounded",
		},
		&cli.IntFlag{
			Name:  "embed-retries",
			Usage: "Attempts per embedding call; 1 disables retrying",
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N items",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address, e.g. :9090",
		},
	}
	return &cli.Command{
		Name:   "ingest",
		Usage:  "Embed and store a batch of texts",
		Action: ingestCommand,
		Flags:  append(flags, embeddingFlags()...),
	}
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyIngestFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, total, news, err := selectSource(c)
	if err != nil {
		return err
	}
	var pending map[string]string
	if news != nil {
		if pending, err = news.Pending(); err != nil {
			return err
		}
		for _, text := range pending {
			if text != "" {
				total++
			}
		}
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	progress := ingestion.NewProgressTracker(c.App.ErrWriter, total, cfg.Pipeline.ReportInterval)
	opts := []ingestion.Option{
		ingestion.WithEmbedWorkers(cfg.Pipeline.EmbedWorkers),
		ingestion.WithStoreWorkers(cfg.Pipeline.StoreWorkers),
		ingestion.WithRateLimit(cfg.Pipeline.RateLimit.Duration),
		ingestion.WithQueueCapacity(cfg.Pipeline.QueueCapacity),
		ingestion.WithShutdownTimeout(cfg.Pipeline.ShutdownTimeout.Duration),
		ingestion.WithProgress(progress),
	}
	failed := newFailedTexts()
	if news != nil {
		opts = append(opts, ingestion.WithFailureHandler(failed.record))
	}

	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, ingestion.WithMetrics(metrics.New(reg)))

		stop, err := serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	pipeline, err := db.NewPipeline(opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Store.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	progress.Start()
	summary, err := pipeline.Run(ctx, src)
	progress.Finish()
	printSummary(c, summary)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if len(pending) > 0 && c.Bool("mark-processed") {
		return markStored(c, news, pending, failed)
	}
	return nil
}

// markStored flags the articles whose text was embedded and stored. Failed
// articles stay in the queue for the next run.
func markStored(c *cli.Context, news *source.NewsSource, pending map[string]string, failed *failedTexts) error {
	ids := make([]string, 0, len(pending))
	for id, text := range pending {
		if !failed.contains(text) {
			ids = append(ids, id)
		}
	}
	if err := news.MarkProcessed(ids...); err != nil {
		return fmt.Errorf("marking articles processed: %w", err)
	}

	remaining, err := news.Unprocessed()
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		fmt.Fprintf(c.App.ErrWriter, "Left in news queue after failures: %d\n", len(remaining))
	}
	return nil
}

// failedTexts collects the texts of items that failed to embed or store.
type failedTexts struct {
	mu    sync.Mutex
	texts map[string]struct{}
}

func newFailedTexts() *failedTexts {
	return &failedTexts{texts: make(map[string]struct{})}
}

func (f *failedTexts) record(err error) {
	var (
		embedErr *ingestion.EmbedError
		storeErr *ingestion.StoreError
		text     string
	)
	switch {
	case errors.As(err, &embedErr):
		text = embedErr.Text
	case errors.As(err, &storeErr):
		text = storeErr.Text
	default:
		return
	}
	f.mu.Lock()
	f.texts[text] = struct{}{}
	f.mu.Unlock()
}

func (f *failedTexts) contains(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.texts[text]
	return ok
}

// applyIngestFlags overrides config values with flags given on the command line.
func applyIngestFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("embed-workers") {
		cfg.Pipeline.EmbedWorkers = c.Int("embed-workers")
	}
	if c.IsSet("store-workers") {
		cfg.Pipeline.StoreWorkers = c.Int("store-workers")
	}
	if c.IsSet("rate-limit") {
		cfg.Pipeline.RateLimit.Duration = c.Duration("rate-limit")
	}
	if c.IsSet("queue-capacity") {
		cfg.Pipeline.QueueCapacity = c.Int("queue-capacity")
	}
	if c.IsSet("embed-retries") {
		cfg.Embedding.Retries = c.Int("embed-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Embedding.RetryDelay.Duration = c.Duration("retry-delay")
	}
	if c.IsSet("report-interval") {
		cfg.Pipeline.ReportInterval = c.Int("report-interval")
	}
}

// selectSource picks the news queue, a text file or the built-in sample, in
// that order. total is 0 when the item count is not known up front.
func selectSource(c *cli.Context) (src source.Source, total int, news *source.NewsSource, err error) {
	switch {
	case c.String("news") != "" && c.String("src") != "":
		return nil, 0, nil, errors.New("--news and --src are mutually exclusive")
	case c.String("news") != "":
		news = source.NewNewsSource(c.String("news"))
		return news, 0, news, nil
	case c.String("src") != "":
		return source.NewFileSource(c.String("src")), 0, nil, nil
	default:
		return source.SliceSource(sampleSentences), len(sampleSentences), nil, nil
	}
}

func printSummary(c *cli.Context, s ingestion.Summary) {
	w := c.App.Writer
	fmt.Fprintf(w, "Submitted: %d\n", s.Submitted)
	fmt.Fprintf(w, "Embedded:  %d (%d failed)\n", s.Embedded, s.EmbedFailed)
	fmt.Fprintf(w, "Stored:    %d (%d failed)\n", s.Stored, s.StoreFailed)
	fmt.Fprintf(w, "Elapsed:   %s\n", s.Elapsed.Round(time.Millisecond))
}

// serveMetrics exposes reg on addr until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
