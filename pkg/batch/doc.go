// Package batch splits a corpus into batch files, enriches them with bounded
// parallelism, records per-batch state and re-runs batches whose output carries
// enrichment errors.
package batch
