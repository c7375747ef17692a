// Package reembed provides maintenance runs over the stored chunks.
//
// Reembedder re-embeds every chunk with a new or updated embedding model.
// Rebuilder re-runs extraction, resolution and graph building over every
// chunk. Both walk the chunk store in batches, retry AI calls with
// exponential backoff, report progress and record a checkpoint after each
// batch so an interrupted run can resume where it stopped.
package reembed
