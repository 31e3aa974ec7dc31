package form

import (
	"encoding/json"
	"testing"
)

func TestFieldIDUnmarshal(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want FieldID
	}{
		{"string", `"abc"`, "abc"},
		{"numeric string", `"17"`, "17"},
		{"integer", `7`, "7"},
		{"integral float", `1.0`, "1"},
		{"large integer", `1719849600000`, "1719849600000"},
		{"null", `null`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id FieldID
			if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
				t.Fatalf("unmarshal %q: %v", tc.raw, err)
			}
			if id != tc.want {
				t.Fatalf("got %q, want %q", id, tc.want)
			}
		})
	}
}

func TestFieldIDUnmarshalRejectsObjects(t *testing.T) {
	var id FieldID
	if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
		t.Fatal("expected error for object id")
	}
}

func TestClampedSize(t *testing.T) {
	f := TemplateField{Size: Size{Width: 10, Height: 10}}
	got := f.ClampedSize()
	if got.Width != MinFieldWidthPx || got.Height != MinFieldHeightPx {
		t.Fatalf("got %+v, want minimums", got)
	}

	f = TemplateField{Size: Size{Width: 300, Height: 120}}
	got = f.ClampedSize()
	if got != f.Size {
		t.Fatalf("size above the minimums changed: %+v", got)
	}
}

func TestLabelFallbacks(t *testing.T) {
	f := TemplateField{ID: "42"}
	if got := f.DisplayLabel(); got != "Field 42" {
		t.Fatalf("DisplayLabel = %q", got)
	}
	f.Label = "  Full name  "
	if got := f.DisplayLabel(); got != "Full name" {
		t.Fatalf("DisplayLabel = %q", got)
	}

	if got := f.OptionLabel(); got != "Option" {
		t.Fatalf("OptionLabel = %q", got)
	}
	f.CheckboxLabel = "I agree"
	if got := f.OptionLabel(); got != "I agree" {
		t.Fatalf("OptionLabel = %q", got)
	}
}

func TestParseTemplate(t *testing.T) {
	raw := []byte(`{"fields":[{"id":1,"kind":"text","label":"Name","position":{"x":10,"y":20},"size":{"width":200,"height":60}}]}`)
	tpl, err := ParseTemplate(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tpl.Fields) != 1 {
		t.Fatalf("got %d fields", len(tpl.Fields))
	}
	f := tpl.Fields[0]
	if f.ID != "1" || f.Kind != KindText || f.Position.X != 10 || f.Size.Height != 60 {
		t.Fatalf("unexpected field: %+v", f)
	}

	if _, err := ParseTemplate([]byte(`{"fields":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}

	tpl, err = ParseTemplate(nil)
	if err != nil || len(tpl.Fields) != 0 {
		t.Fatalf("empty input: %+v, %v", tpl, err)
	}
}
