package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["structure_score", "content_score", "logic_score", "expression_score", "feedback", "suggestions"],
  "properties": {
    "structure_score":  {"type": "integer", "minimum": 0, "maximum": 25},
    "content_score":    {"type": "integer", "minimum": 0, "maximum": 30},
    "logic_score":      {"type": "integer", "minimum": 0, "maximum": 25},
    "expression_score": {"type": "integer", "minimum": 0, "maximum": 20},
    "feedback":         {"type": "string", "minLength": 1},
    "suggestions":      {"type": "array", "items": {"type": "string"}},
    "structure_evaluation":  {"type": "string"},
    "content_evaluation":    {"type": "string"},
    "logic_evaluation":      {"type": "string"},
    "expression_evaluation": {"type": "string"}
  }
}`

var schema = jsonschema.MustCompileString("ronbun://llm/response.json", responseSchema)

// response mirrors responseSchema.
type response struct {
	Structure   int      `json:"structure_score"`
	Content     int      `json:"content_score"`
	Logic       int      `json:"logic_score"`
	Expression  int      `json:"expression_score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`

	StructureEvaluation  string `json:"structure_evaluation"`
	ContentEvaluation    string `json:"content_evaluation"`
	LogicEvaluation      string `json:"logic_evaluation"`
	ExpressionEvaluation string `json:"expression_evaluation"`
}

// parseResponse pulls the single JSON object out of free-form model output and
// validates it. Out-of-range scores are rejected, not clamped.
func parseResponse(content string) (response, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return response{}, fmt.Errorf("%w: no json object", ErrMalformedResponse)
	}
	raw := []byte(content[start : end+1])

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return response{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return response{}, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return response{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return r, nil
}
