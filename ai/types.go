package ai

// ExtractionRequest is one passage plus the vocabulary the model must use.
type ExtractionRequest struct {
	Text        string
	EntityTypes []string
	Relations   []string
}

// ExtractedEntity is an entity as reported by the model.
type ExtractedEntity struct {
	Name        string
	Type        string
	Description string
	// Confidence is nil when the model omitted it.
	Confidence *float64
}

// ExtractedRelation links two entities by name.
type ExtractedRelation struct {
	From       string
	To         string
	Type       string
	Confidence *float64
}

// Extraction is the raw result of one extraction call.
type Extraction struct {
	Entities  []ExtractedEntity
	Relations []ExtractedRelation
}

// Confidence is a convenience for building extractions in code.
func Confidence(v float64) *float64 {
	return &v
}
