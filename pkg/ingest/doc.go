// Package ingest converts normalized case documents into graph writes.
//
// Engine walks a case, its emails and every forwarded message (iteratively, so forward
// chains of any depth are safe) and issues MERGE-style writes keyed by natural identity.
// Re-ingesting the same record leaves the graph unchanged, except for the Decision,
// Concern, Event and Financial fact nodes, which are created per occurrence.
//
// Importer reads a corpus (JSON array or one record per line), writes one transaction
// per case and isolates failures: a record that cannot be normalized is skipped and a
// case whose transaction fails is counted, logged and rolled back while the import
// continues. Only an unreachable graph store or cancellation stops an import early.
package ingest
