package pdf

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"formforge/internal/form"
)

// Reserved submission keys. "files" carries the raw attachment array;
// keys with the signature prefix are internal signature storage and
// never surface in the rendered appendix.
const (
	filesKey           = "files"
	signatureKeyPrefix = "signature_"
)

// ValueKind tags the shape of a submitted value.
type ValueKind int

const (
	ValueAbsent ValueKind = iota
	ValueText
	ValueFlag
	ValueAttachments
	ValueRaw
)

// Value is the render-ready form of one submitted field value,
// resolved against the field's declared kind rather than inferred from
// the runtime shape.
type Value struct {
	Kind ValueKind
	Text string
	Flag bool
	Raw  any
}

// Attachment references one uploaded file tied to a photo field. Path
// points at a readable staged copy on disk; Data may carry raw bytes
// instead when no file was staged.
type Attachment struct {
	FieldID form.FieldID
	Name    string
	Path    string
	Data    []byte
}

// ExtraEntry is a submitted key with no matching template field. These
// are preserved and rendered in the "Additional data" appendix.
type ExtraEntry struct {
	Key   string
	Value any
}

// Label derives a display label from the raw key: underscores become
// spaces and each word is title-cased.
func (e ExtraEntry) Label() string {
	words := strings.Fields(strings.ReplaceAll(e.Key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Submission is the normalizer output: one value per field id, the
// attachment group per field id, and the leftover untracked entries in
// sorted key order.
type Submission struct {
	Values      map[form.FieldID]Value
	Attachments map[form.FieldID][]Attachment
	Extra       []ExtraEntry
}

// NormalizeSubmission reconciles the template field list, the flat
// submitted value map and the signatures map into a render-ready
// structure. The reserved files key is stripped out and redistributed
// by each attachment's own field association; entries without one are
// dropped, since they cannot be attributed to any field.
func NormalizeSubmission(fields []form.TemplateField, values map[string]any, signatures map[string]string) Submission {
	sub := Submission{
		Values:      make(map[form.FieldID]Value, len(fields)),
		Attachments: parseAttachments(values[filesKey]),
	}

	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[string(f.ID)] = struct{}{}
		sub.Values[f.ID] = resolveValue(f, values[string(f.ID)], signatures[string(f.ID)])
	}

	extraKeys := make([]string, 0)
	for key := range values {
		if key == filesKey || strings.HasPrefix(key, signatureKeyPrefix) {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		sub.Extra = append(sub.Extra, ExtraEntry{Key: key, Value: values[key]})
	}

	return sub
}

func resolveValue(f form.TemplateField, raw any, signature string) Value {
	switch f.Kind {
	case form.KindCheckbox:
		return Value{Kind: ValueFlag, Flag: truthy(raw)}
	case form.KindSignature:
		if strings.TrimSpace(signature) == "" {
			return Value{Kind: ValueAbsent}
		}
		return Value{Kind: ValueText, Text: signature}
	case form.KindPhoto:
		if raw == nil {
			return Value{Kind: ValueAbsent}
		}
		return Value{Kind: ValueRaw, Raw: raw}
	default:
		// text, paragraph and any unknown kind render as text.
		if raw == nil {
			return Value{Kind: ValueAbsent}
		}
		return Value{Kind: ValueText, Text: DisplayText(raw)}
	}
}

// DisplayText renders an arbitrary submitted value as display text:
// arrays joined with ", ", objects as compact JSON, numbers without a
// trailing fraction when integral.
func DisplayText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, DisplayText(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "0", "no", "off":
			return false
		}
		return true
	default:
		return true
	}
}

// parseAttachments redistributes the raw files array into per-field
// groups. Tolerates both fieldId/field and name/fileName spellings;
// malformed entries are silently dropped.
func parseAttachments(raw any) map[form.FieldID][]Attachment {
	groups := make(map[form.FieldID][]Attachment)
	list, ok := raw.([]any)
	if !ok {
		return groups
	}
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fieldID := attachmentFieldID(entry)
		if fieldID == "" {
			continue
		}
		att := Attachment{
			FieldID: fieldID,
			Name:    firstString(entry, "name", "fileName", "filename"),
			Path:    firstString(entry, "path", "filePath"),
		}
		groups[fieldID] = append(groups[fieldID], att)
	}
	return groups
}

func attachmentFieldID(entry map[string]any) form.FieldID {
	for _, key := range []string{"fieldId", "field"} {
		switch v := entry[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return form.FieldID(s)
			}
		case float64:
			return form.FieldID(strconv.FormatFloat(v, 'f', -1, 64))
		case json.Number:
			return form.FieldID(v.String())
		}
	}
	return ""
}

func firstString(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
