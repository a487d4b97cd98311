package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type Kind string

const (
	KindText    Kind = "text"
	KindCode    Kind = "code"
	KindDiagram Kind = "diagram"
	KindFormula Kind = "formula"
	KindList    Kind = "list"
)

var Kinds = []Kind{KindText, KindCode, KindDiagram, KindFormula, KindList}

// Block is one typed unit of chapter content. The set of implementations is closed.
type Block interface {
	Kind() Kind
	Validate() error
}

type Text struct {
	MD string `json:"md"`
}

type Code struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
}

type Diagram struct {
	Format  string `json:"format"` // mermaid | graphviz | ascii
	Source  string `json:"source"`
	Caption string `json:"caption,omitempty"`
}

type Formula struct {
	LaTeX   string `json:"latex"`
	Caption string `json:"caption,omitempty"`
}

type List struct {
	Style string   `json:"style"` // bullet | numbered
	Items []string `json:"items"`
}

func (Text) Kind() Kind    { return KindText }
func (Code) Kind() Kind    { return KindCode }
func (Diagram) Kind() Kind { return KindDiagram }
func (Formula) Kind() Kind { return KindFormula }
func (List) Kind() Kind    { return KindList }

func (b Text) Validate() error {
	if strings.TrimSpace(b.MD) == "" {
		return errors.New("md required")
	}
	return nil
}

func (b Code) Validate() error {
	if strings.TrimSpace(b.Language) == "" {
		return errors.New("language required")
	}
	if strings.TrimSpace(b.Code) == "" {
		return errors.New("code required")
	}
	return nil
}

func (b Diagram) Validate() error {
	switch b.Format {
	case "mermaid", "graphviz", "ascii":
	default:
		return fmt.Errorf("unsupported diagram format %q", b.Format)
	}
	if strings.TrimSpace(b.Source) == "" {
		return errors.New("source required")
	}
	return nil
}

func (b Formula) Validate() error {
	if strings.TrimSpace(b.LaTeX) == "" {
		return errors.New("latex required")
	}
	return nil
}

func (b List) Validate() error {
	if b.Style != "bullet" && b.Style != "numbered" {
		return fmt.Errorf("unsupported list style %q", b.Style)
	}
	if len(b.Items) == 0 {
		return errors.New("items required")
	}
	for i, it := range b.Items {
		if strings.TrimSpace(it) == "" {
			return fmt.Errorf("item %d empty", i)
		}
	}
	return nil
}

// Blocks is the persisted, ordered content of a chapter. It encodes as a JSON
// array of objects carrying a "type" discriminator.
type Blocks []Block

func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(bs))
	for i, b := range bs {
		if b == nil {
			return nil, fmt.Errorf("block %d is nil", i)
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		m := map[string]any{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		m["type"] = string(b.Kind())
		out = append(out, m)
	}
	return json.Marshal(out)
}

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		b, err := decodeKind(head.Type, raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

func decodeKind(k Kind, raw []byte) (Block, error) {
	switch k {
	case KindText:
		var b Text
		err := json.Unmarshal(raw, &b)
		return b, err
	case KindCode:
		var b Code
		err := json.Unmarshal(raw, &b)
		return b, err
	case KindDiagram:
		var b Diagram
		err := json.Unmarshal(raw, &b)
		return b, err
	case KindFormula:
		var b Formula
		err := json.Unmarshal(raw, &b)
		return b, err
	case KindList:
		var b List
		err := json.Unmarshal(raw, &b)
		return b, err
	default:
		return nil, fmt.Errorf("unknown block type %q", k)
	}
}

// Validate checks the whole sequence. A chapter must carry at least one block.
func Validate(bs Blocks) error {
	if len(bs) == 0 {
		return errors.New("content has no blocks")
	}
	for i, b := range bs {
		if b == nil {
			return fmt.Errorf("block %d is nil", i)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("block %d (%s): %w", i, b.Kind(), err)
		}
	}
	return nil
}

// Hash is a stable digest of the canonical encoding, used to skip no-op rewrites.
func Hash(bs Blocks) (string, error) {
	raw, err := json.Marshal(bs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// PlainText flattens blocks for embedding and summaries.
func PlainText(bs Blocks, limit int) string {
	var sb strings.Builder
	for _, b := range bs {
		switch v := b.(type) {
		case Text:
			sb.WriteString(v.MD)
		case Code:
			sb.WriteString(v.Language + " code")
		case Diagram:
			sb.WriteString(v.Caption)
		case Formula:
			sb.WriteString(v.Caption)
		case List:
			sb.WriteString(strings.Join(v.Items, "; "))
		}
		sb.WriteString("\n")
		if limit > 0 && sb.Len() >= limit {
			break
		}
	}
	s := strings.TrimSpace(sb.String())
	if limit > 0 {
		s = Clip(s, limit)
	}
	return s
}

// Clip cuts s to at most n bytes, backing up to a rune boundary.
func Clip(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
