package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays canned responses, one per call.
type scriptedModel struct {
	responses []string
	err       error
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	idx := min(m.calls-1, len(m.responses)-1)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[idx]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

var testRequest = ai.ExtractionRequest{
	Text:        "Rust affects wheat.",
	EntityTypes: []string{"Crop", "Disease"},
	Relations:   []string{"AFFECTS"},
}

func TestExtract_ParsesResponse(t *testing.T) {
	model := &scriptedModel{responses: []string{"```json\n" + `{
		"entities": [
			{"name": "rust", "type": "Disease", "confidence": 0.9},
			{"name": " wheat ", "type": "Crop"}
		],
		"relations": [{"from": "rust", "to": "wheat", "type": "AFFECTS", "confidence": 0.8}]
	}` + "\n```"}}
	extractor := newExtractorWithModel(model, 3)

	out, err := extractor.Extract(context.Background(), testRequest)
	require.NoError(t, err)
	require.Len(t, out.Entities, 2)
	assert.Equal(t, "wheat", out.Entities[1].Name)
	require.NotNil(t, out.Entities[0].Confidence)
	assert.Equal(t, 0.9, *out.Entities[0].Confidence)
	assert.Nil(t, out.Entities[1].Confidence)
	require.Len(t, out.Relations, 1)
	assert.Equal(t, "AFFECTS", out.Relations[0].Type)
	assert.Equal(t, 1, model.calls)
}

func TestExtract_RetriesMalformedThenSucceeds(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`not json at all`,
		`{"entities": [{"name": "rust", "type": "Disease"}], "relations": []}`,
	}}
	extractor := newExtractorWithModel(model, 3)

	out, err := extractor.Extract(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Len(t, out.Entities, 1)
	assert.Equal(t, 2, model.calls)
}

func TestExtract_MalformedAfterRetries(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"entities": [`}}
	extractor := newExtractorWithModel(model, 3)

	_, err := extractor.Extract(context.Background(), testRequest)
	assert.ErrorIs(t, err, core.ErrMalformedExtraction)
	assert.Equal(t, 3, model.calls)
}

func TestExtract_TransportError(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	extractor := newExtractorWithModel(model, 3)

	_, err := extractor.Extract(context.Background(), testRequest)
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
	assert.Equal(t, 1, model.calls)
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt([]string{"Crop", "Disease"}, []string{"AFFECTS", "TREATED_BY"})
	assert.Contains(t, prompt, "Entity type must be exactly one of: Crop, Disease.")
	assert.Contains(t, prompt, "Relation type must be exactly one of: AFFECTS, TREATED_BY.")
	assert.False(t, strings.Contains(prompt, "%!"), "format verbs left in prompt")
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid json untouched", `{"name":"rust"}`, `{"name":"rust"}`},
		{"missing opening quote", `{"name":"rust", type":"Disease"}`, `{"name":"rust", "type":"Disease"}`},
		{"trailing comma in object", `{"name":"rust",}`, `{"name":"rust"}`},
		{"trailing comma in array", `{"entities":[1,2, ]}`, `{"entities":[1,2 ]}`},
		{"comma inside string kept", `{"d":"a, b"}`, `{"d":"a, b"}`},
		{"first key unquoted", `{ crop":"wheat"}`, `{ "crop":"wheat"}`},
		{"escaped quote in value", `{"d":"say \"hi\", ok",}`, `{"d":"say \"hi\", ok"}`},
		{"bare word not followed by colon", `{"a":[x, y]}`, `{"a":[x, y]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, repairJSON(tt.input))
		})
	}
}
