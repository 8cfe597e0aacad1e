// Package casegraph turns a corpus of enriched case email records into a property
// graph.
//
// Each corpus record wraps one case. The case payload is normalized, its emails are
// walked (forwarded messages included) and every entity is merged into the graph under
// a natural key, so importing the same corpus twice leaves the graph unchanged.
//
// # Basic Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	d, err := casegraph.NewDriver(cfg.Database)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := casegraph.NewClient(d, nil, cfg, nil, slog.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	summary, err := client.ImportFile(ctx, "cases.jsonl")
//
// # Enrichment
//
// Before import, records can be enriched by the batch pipeline: the corpus is split into
// batch files, each email body is sent to an LLM for structured extraction and the
// enriched batches are written next to per-batch checkpoints. Batches whose enrichment
// failed are found and re-run with Recover.
//
//	extractor, err := casegraph.NewEnricher(cfg.LLM, reg, logger)
//	client, err := casegraph.NewClient(d, extractor, cfg, reg, logger)
//	run, err := client.Enrich(ctx)
//	rec, err := client.Recover(ctx)
package casegraph
