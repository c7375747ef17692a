// Package ingestion turns document chunks into vector records and graph
// structure.
//
// A Pipeline runs every chunk of a document independently on a worker pool:
// the chunk is validated, embedded and stored, then its entities and
// relations are extracted, resolved against the canonical registry and
// written as nodes and edges by a Builder. A chunk that fails at any stage
// is reported in the IngestReport; its siblings continue and nothing already
// written is rolled back.
package ingestion
