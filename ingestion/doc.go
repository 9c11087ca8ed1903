// Package ingestion provides the bulk ingestion pipeline that turns text
// items into stored embeddings.
//
// A Pipeline owns two queues and two worker pools:
//   - the embed stage (default 1 worker) calls the Embedder once per item,
//     optionally pausing after every call to respect a rate limit
//   - the store stage (default 25 workers) persists each embedded item
//
// Every queue keeps a pending count that is incremented on enqueue and
// decremented once per dequeued item, whatever the outcome. AwaitDrain
// returns when both counts are zero, meaning every item has been attempted.
//
// Failures are isolated per item: an EmbedError or StoreError is logged,
// counted in the Summary and handed to the optional failure handler, and
// the item is dropped. Nothing is retried unless the Embedder itself
// retries (see ai.RetryingEmbedder).
//
// Typical use:
//
//	p, err := ingestion.NewPipeline(repo, embedder, ingestion.WithRateLimit(500*time.Millisecond))
//	if err != nil {
//	    return err
//	}
//	summary, err := p.Run(ctx, source.NewFileSource("sentences.txt"))
package ingestion
