package content

import (
	"fmt"
	"strings"
)

// Wire is the flat shape requested from the model. Strict structured output
// needs every property present, so all kinds share one object and unused
// fields come back empty.
type Wire struct {
	Type     string   `json:"type"`
	MD       string   `json:"md"`
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Filename string   `json:"filename"`
	Format   string   `json:"format"`
	Source   string   `json:"source"`
	Caption  string   `json:"caption"`
	LaTeX    string   `json:"latex"`
	Style    string   `json:"style"`
	Items    []string `json:"items"`
}

// FromWire converts and validates model output into typed blocks.
func FromWire(in []Wire) (Blocks, error) {
	out := make(Blocks, 0, len(in))
	for i, w := range in {
		var b Block
		switch Kind(strings.ToLower(strings.TrimSpace(w.Type))) {
		case KindText:
			b = Text{MD: w.MD}
		case KindCode:
			b = Code{Language: w.Language, Code: w.Code, Filename: w.Filename}
		case KindDiagram:
			b = Diagram{Format: strings.ToLower(w.Format), Source: w.Source, Caption: w.Caption}
		case KindFormula:
			b = Formula{LaTeX: w.LaTeX, Caption: w.Caption}
		case KindList:
			b = List{Style: strings.ToLower(w.Style), Items: w.Items}
		default:
			return nil, fmt.Errorf("block %d: unknown type %q", i, w.Type)
		}
		out = append(out, b)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// WireSchema is the JSON schema for one Wire block.
func WireSchema() map[string]any {
	str := map[string]any{"type": "string"}
	kinds := make([]any, 0, len(Kinds))
	for _, k := range Kinds {
		kinds = append(kinds, string(k))
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"type", "md", "language", "code", "filename", "format", "source", "caption", "latex", "style", "items"},
		"properties": map[string]any{
			"type":     map[string]any{"type": "string", "enum": kinds},
			"md":       str,
			"language": str,
			"code":     str,
			"filename": str,
			"format":   str,
			"source":   str,
			"caption":  str,
			"latex":    str,
			"style":    str,
			"items":    map[string]any{"type": "array", "items": str},
		},
	}
}
