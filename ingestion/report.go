package ingestion

import (
	"fmt"
	"time"
)

// Stage names the step at which a chunk failed.
type Stage string

const (
	StageSchedule Stage = "schedule"
	StageValidate Stage = "validate"
	StageEmbed    Stage = "embed"
	StageStore    Stage = "store"
	StageExtract  Stage = "extract"
	StageBuild    Stage = "build"
)

// ChunkFailure records why one chunk was not fully ingested.
type ChunkFailure struct {
	ChunkId string
	Stage   Stage
	Err     error
}

func (f ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %s: %s: %v", f.ChunkId, f.Stage, f.Err)
}

func (f ChunkFailure) Unwrap() error {
	return f.Err
}

// ChunkOutcome counts what building one chunk changed in the graph.
type ChunkOutcome struct {
	ChunkId          string
	EntitiesCreated  int
	EntitiesUpdated  int
	EdgesCreated     int
	EdgesUpdated     int
	RelationsDropped int
	// ItemsRejected counts extraction output and mentions dropped as invalid.
	ItemsRejected int
}

// IngestReport summarizes one IngestDocument call.
type IngestReport struct {
	DocumentId       string
	RunId            string
	ChunksProcessed  int
	EntitiesCreated  int
	EntitiesUpdated  int
	EdgesCreated     int
	EdgesUpdated     int
	RelationsDropped int
	// ItemsRejected counts extraction output dropped at validation.
	ItemsRejected int
	Failures      []ChunkFailure
	Duration      time.Duration
}

// Failed reports whether any chunk failed.
func (r *IngestReport) Failed() bool {
	return len(r.Failures) > 0
}

func (r *IngestReport) add(o *ChunkOutcome) {
	r.ChunksProcessed++
	r.EntitiesCreated += o.EntitiesCreated
	r.EntitiesUpdated += o.EntitiesUpdated
	r.EdgesCreated += o.EdgesCreated
	r.EdgesUpdated += o.EdgesUpdated
	r.RelationsDropped += o.RelationsDropped
	r.ItemsRejected += o.ItemsRejected
}
