package openai

import (
	"fmt"
	"strings"
)

const extractionResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"},
          "description": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["name", "type"],
        "additionalProperties": false
      }
    },
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"},
          "type": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["from", "to", "type"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities", "relations"],
  "additionalProperties": false
}`

const extractionPromptTemplate = `You are an agricultural knowledge extraction system. Extract entities and the relations between them from the given text and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Entity type must be exactly one of: %s.
- Relation type must be exactly one of: %s.
- Use the entity name as written in the text. Keep scientific names and product names intact.
- Every relation "from" and "to" must be the name of an entity in the "entities" list.
- Confidence is a number from 0 (guess) to 1 (stated explicitly in the text).
- Description is one short sentence about the entity drawn from the text, or empty.
- Include only entities and relations that are explicitly mentioned or clearly implied. Do not hallucinate.
- If nothing can be identified, return {"entities": [], "relations": []}.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Stem rust, caused by Puccinia graminis, affects wheat across Punjab. Farmers control it with propiconazole."
Output:
{
  "entities": [
    {"name":"stem rust","type":"Disease","description":"A fungal disease of wheat.","confidence":0.95},
    {"name":"Puccinia graminis","type":"Pest","description":"The fungus that causes stem rust.","confidence":0.9},
    {"name":"wheat","type":"Crop","description":"","confidence":0.95},
    {"name":"Punjab","type":"Region","description":"","confidence":0.9},
    {"name":"propiconazole","type":"Input","description":"A fungicide used against stem rust.","confidence":0.85}
  ],
  "relations": [
    {"from":"Puccinia graminis","to":"stem rust","type":"CAUSES","confidence":0.9},
    {"from":"stem rust","to":"wheat","type":"AFFECTS","confidence":0.95},
    {"from":"stem rust","to":"Punjab","type":"OCCURS_IN","confidence":0.8},
    {"from":"stem rust","to":"propiconazole","type":"TREATED_BY","confidence":0.85}
  ]
}`

// buildSystemPrompt creates the system prompt with the vocabulary embedded.
func buildSystemPrompt(entityTypes, relations []string) string {
	return fmt.Sprintf(extractionPromptTemplate,
		extractionResponseSchema,
		strings.Join(entityTypes, ", "),
		strings.Join(relations, ", "))
}
