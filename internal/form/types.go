package form

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldKind is the closed set of field types a template may contain.
// Anything else falls back to the text rendering path.
type FieldKind string

const (
	KindText      FieldKind = "text"
	KindParagraph FieldKind = "paragraph"
	KindCheckbox  FieldKind = "checkbox"
	KindSignature FieldKind = "signature"
	KindPhoto     FieldKind = "photo"
)

// FieldID identifies a field within one template and joins submitted
// values and uploads back to their field. The editor stores ids as
// numbers, the submission payloads as strings; both decode to the
// same identifier.
type FieldID string

// UnmarshalJSON accepts a JSON string or number.
func (id *FieldID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = FieldID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field id must be a string or number: %w", err)
	}
	// Strip a trailing ".0" style fraction so 1 and 1.0 join the same key.
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		*id = FieldID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = FieldID(n.String())
	return nil
}

// MarshalJSON writes the id back as a string.
func (id FieldID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Point is a top-left-origin canvas position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair, in pixels on the canvas side and in
// points on the document side.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Minimum usable field dimensions in pixels. Anything smaller is
// stretched so labels and content stay legible.
const (
	MinFieldWidthPx  = 160.0
	MinFieldHeightPx = 48.0
)

// TemplateField is one positioned field of a form template. Order in
// the template slice is significant: later fields paint over earlier
// ones where they overlap.
type TemplateField struct {
	ID            FieldID   `json:"id"`
	Kind          FieldKind `json:"kind"`
	Label         string    `json:"label"`
	Placeholder   string    `json:"placeholder,omitempty"`
	CheckboxLabel string    `json:"checkboxLabel,omitempty"`
	Required      bool      `json:"required,omitempty"`
	Position      Point     `json:"position"`
	Size          Size      `json:"size"`
	DependsOn     *FieldID  `json:"dependsOn,omitempty"`
}

// DisplayLabel returns the label, or "Field {id}" when none was set.
func (f TemplateField) DisplayLabel() string {
	if s := strings.TrimSpace(f.Label); s != "" {
		return s
	}
	return fmt.Sprintf("Field %s", string(f.ID))
}

// OptionLabel returns the checkbox caption, or "Option" when unset.
func (f TemplateField) OptionLabel() string {
	if s := strings.TrimSpace(f.CheckboxLabel); s != "" {
		return s
	}
	return "Option"
}

// ClampedSize applies the minimum field dimensions.
func (f TemplateField) ClampedSize() Size {
	s := f.Size
	if s.Width < MinFieldWidthPx {
		s.Width = MinFieldWidthPx
	}
	if s.Height < MinFieldHeightPx {
		s.Height = MinFieldHeightPx
	}
	return s
}

// Meta carries the optional template heading drawn above the canvas.
type Meta struct {
	TemplateName        string `json:"templateName,omitempty"`
	TemplateDescription string `json:"templateDescription,omitempty"`
}

// HasHeading reports whether a heading block must be reserved.
func (m Meta) HasHeading() bool {
	return strings.TrimSpace(m.TemplateName) != "" || strings.TrimSpace(m.TemplateDescription) != ""
}

// Template is the JSON document stored in a template's Fields column.
type Template struct {
	Fields []TemplateField `json:"fields"`
}

// ParseTemplate decodes the stored field list.
func ParseTemplate(raw []byte) (Template, error) {
	var t Template
	if len(raw) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return Template{}, fmt.Errorf("parse template fields: %w", err)
	}
	return t, nil
}
