package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// segmentSchema is the structured-output contract for a segment call. The
// model is asked to return exactly this shape; the response is validated
// locally before any record reaches the aggregator.
const segmentSchema = `{
  "type": "object",
  "properties": {
    "header": {
      "type": "object",
      "properties": {
        "state": {"type": "string"},
        "constituency_name": {"type": "string"},
        "constituency_number": {"type": "integer"},
        "part_number": {"type": "integer"},
        "polling_station": {"type": "string"},
        "language": {"type": "string"}
      }
    },
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "serial_number": {"type": "string"},
          "name": {"type": "string"},
          "relative_name": {"type": "string"},
          "relation_type": {"type": "string"},
          "house_number": {"type": "string"},
          "gender": {"type": "string"},
          "age": {"type": "string"},
          "photo_id": {"type": "string"},
          "location_name": {"type": "string"},
          "page": {"type": "integer"}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["records"]
}`

var compiledSegmentSchema = mustCompileSchema(segmentSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("segment.json", bytes.NewReader([]byte(raw))); err != nil {
		panic(fmt.Sprintf("invalid segment schema: %v", err))
	}
	schema, err := compiler.Compile("segment.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile segment schema: %v", err))
	}
	return schema
}

// parseSegmentJSON parses JSON from model output with lightweight recovery
// for markdown code fences and surrounding commentary.
func parseSegmentJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONObject(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize model output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse JSON from model output")
}

// validateSegmentJSON checks parsed output against the segment schema.
func validateSegmentJSON(parsed json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode output for validation: %w", err)
	}
	if err := compiledSegmentSchema.Validate(doc); err != nil {
		return fmt.Errorf("output does not match segment schema: %w", err)
	}
	return nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

// segmentResponse mirrors segmentSchema for decoding.
type segmentResponse struct {
	Header  *headerResponse  `json:"header,omitempty"`
	Records []recordResponse `json:"records"`
}

type headerResponse struct {
	State              string `json:"state,omitempty"`
	ConstituencyName   string `json:"constituency_name,omitempty"`
	ConstituencyNumber int    `json:"constituency_number,omitempty"`
	PartNumber         int    `json:"part_number,omitempty"`
	PollingStation     string `json:"polling_station,omitempty"`
	Language           string `json:"language,omitempty"`
}

type recordResponse struct {
	SerialNumber string `json:"serial_number,omitempty"`
	Name         string `json:"name,omitempty"`
	RelativeName string `json:"relative_name,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
	HouseNumber  string `json:"house_number,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Age          string `json:"age,omitempty"`
	PhotoID      string `json:"photo_id,omitempty"`
	LocationName string `json:"location_name,omitempty"`
	Page         int    `json:"page,omitempty"`
}
