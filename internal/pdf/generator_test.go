package pdf

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"formforge/internal/form"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 1x1 white PNG.
const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	if err != nil {
		t.Fatalf("decode test png: %v", err)
	}
	return data
}

func inspectionTemplate() []form.TemplateField {
	return []form.TemplateField{
		{ID: "1", Kind: form.KindText, Label: "Inspector", Required: true,
			Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 60}},
		{ID: "2", Kind: form.KindParagraph, Label: "Findings", Placeholder: "Describe the site",
			Position: form.Point{X: 40, Y: 120}, Size: form.Size{Width: 680, Height: 160}},
		{ID: "3", Kind: form.KindCheckbox, Label: "Safety", CheckboxLabel: "Site cleared",
			Position: form.Point{X: 40, Y: 300}, Size: form.Size{Width: 320, Height: 48}},
		{ID: "4", Kind: form.KindSignature, Label: "Sign-off",
			Position: form.Point{X: 400, Y: 300}, Size: form.Size{Width: 320, Height: 100}},
		{ID: "5", Kind: form.KindPhoto, Label: "Evidence",
			Position: form.Point{X: 40, Y: 420}, Size: form.Size{Width: 680, Height: 240}},
	}
}

func TestGenerateWritesValidPDF(t *testing.T) {
	dir := t.TempDir()
	photoPath := filepath.Join(dir, "roof.png")
	if err := os.WriteFile(photoPath, tinyPNG(t), 0o644); err != nil {
		t.Fatalf("write test photo: %v", err)
	}

	values := map[string]any{
		"1": "R. Ortega",
		"2": "Two loose tiles on the north slope.\nGutters clear.",
		"3": true,
		"files": []any{
			map[string]any{"fieldId": "5", "name": "roof.png", "path": photoPath},
		},
		"weather": "overcast",
	}
	signatures := map[string]string{"4": "data:image/png;base64," + tinyPNGBase64}

	outPath := filepath.Join(dir, "out", "report.pdf")
	path, report, err := GenerateWithReport(values, signatures, Options{
		OutputPath: outPath,
		Template:   inspectionTemplate(),
		Meta:       form.Meta{TemplateName: "Roof inspection", TemplateDescription: "Quarterly walk-through"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if path != outPath {
		t.Fatalf("path = %q, want %q", path, outPath)
	}
	if !Validate(path) {
		t.Fatal("output failed validation")
	}
	if report.HasFallback() {
		t.Fatalf("unexpected fallbacks: %v", report.Fallbacks)
	}
	for id, outcome := range report.Outcomes {
		if outcome != OutcomeRendered {
			t.Fatalf("field %s outcome = %v", id, outcome)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output does not start with a PDF header: %q", data[:8])
	}
}

func TestGenerateCorruptSignatureFallsBack(t *testing.T) {
	template := []form.TemplateField{
		{ID: "sig", Kind: form.KindSignature, Label: "Sign-off",
			Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 100}},
	}
	signatures := map[string]string{"sig": "data:image/png;base64,@@not-base64@@"}

	outPath := filepath.Join(t.TempDir(), "report.pdf")
	_, report, err := GenerateWithReport(nil, signatures, Options{
		OutputPath: outPath,
		Template:   template,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !Validate(outPath) {
		t.Fatal("document must survive a bad signature image")
	}
	if len(report.Fallbacks) != 1 || report.Fallbacks[0] != "sig" {
		t.Fatalf("fallbacks = %v", report.Fallbacks)
	}
}

func TestGenerateTypedSignatureIsNotFallback(t *testing.T) {
	template := []form.TemplateField{
		{ID: "sig", Kind: form.KindSignature,
			Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 100}},
	}
	// Not a data URI, so the placeholder box is drawn instead.
	signatures := map[string]string{"sig": "J. Smith"}

	outPath := filepath.Join(t.TempDir(), "report.pdf")
	_, report, err := GenerateWithReport(nil, signatures, Options{
		OutputPath: outPath,
		Template:   template,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.HasFallback() {
		t.Fatalf("placeholder must not count as a fallback: %v", report.Fallbacks)
	}
	if report.Outcomes["sig"] != OutcomeRendered {
		t.Fatalf("outcome = %v", report.Outcomes["sig"])
	}
}

func TestGenerateUnreadablePhotoFallsBack(t *testing.T) {
	template := []form.TemplateField{
		{ID: "ph", Kind: form.KindPhoto,
			Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 200}},
	}
	values := map[string]any{
		"files": []any{
			map[string]any{"fieldId": "ph", "name": "gone.png", "path": filepath.Join(t.TempDir(), "missing.png")},
		},
	}

	outPath := filepath.Join(t.TempDir(), "report.pdf")
	_, report, err := GenerateWithReport(values, nil, Options{
		OutputPath: outPath,
		Template:   template,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !Validate(outPath) {
		t.Fatal("document must survive a missing attachment")
	}
	if len(report.Fallbacks) != 1 || report.Fallbacks[0] != "ph" {
		t.Fatalf("fallbacks = %v", report.Fallbacks)
	}
}

func TestGenerateSkipsOffPageFields(t *testing.T) {
	template := []form.TemplateField{
		{ID: "off", Kind: form.KindText,
			Position: form.Point{X: -5000, Y: 40}, Size: form.Size{Width: 160, Height: 48}},
		{ID: "on", Kind: form.KindText,
			Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 60}},
	}

	outPath := filepath.Join(t.TempDir(), "report.pdf")
	_, report, err := GenerateWithReport(map[string]any{"on": "v"}, nil, Options{
		OutputPath: outPath,
		Template:   template,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Outcomes["off"] != OutcomeSkipped {
		t.Fatalf("off-page outcome = %v", report.Outcomes["off"])
	}
	if report.Outcomes["on"] != OutcomeRendered {
		t.Fatalf("on-page outcome = %v", report.Outcomes["on"])
	}
	if report.HasFallback() {
		t.Fatalf("skips are not fallbacks: %v", report.Fallbacks)
	}
}

func TestGenerateRequiresOutputPath(t *testing.T) {
	if _, err := Generate(nil, nil, Options{OutputPath: "  "}); err == nil {
		t.Fatal("expected error for blank output path")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	if Validate(filepath.Join(dir, "absent.pdf")) {
		t.Fatal("missing file validated")
	}

	empty := filepath.Join(dir, "empty.pdf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if Validate(empty) {
		t.Fatal("empty file validated")
	}

	full := filepath.Join(dir, "full.pdf")
	if err := os.WriteFile(full, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !Validate(full) {
		t.Fatal("non-empty file rejected")
	}
}

// renderCheckboxDoc draws one checkbox field into an uncompressed
// document and returns the raw bytes for stream inspection.
func renderCheckboxDoc(t *testing.T, checked bool) []byte {
	t.Helper()
	field := form.TemplateField{
		ID: "cb", Kind: form.KindCheckbox, CheckboxLabel: "Cleared",
		Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 320, Height: 48},
	}

	rc := newRenderContext("unused.pdf", []form.TemplateField{field}, form.Meta{})
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetCompression(false)
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	renderer := newFieldRenderer(doc, &rc, discardLogger())
	val := Value{Kind: ValueFlag, Flag: checked}
	if outcome := renderer.Render(field, val, nil); outcome != OutcomeRendered {
		t.Fatalf("outcome = %v", outcome)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("output: %v", err)
	}
	return buf.Bytes()
}

func TestCheckboxDrawsStrokeOnlyWhenChecked(t *testing.T) {
	checked := renderCheckboxDoc(t, true)
	unchecked := renderCheckboxDoc(t, false)

	// The check mark is two extra stroked line segments.
	checkedLines := strings.Count(string(checked), " l S")
	uncheckedLines := strings.Count(string(unchecked), " l S")
	if checkedLines != uncheckedLines+2 {
		t.Fatalf("stroke ops: checked %d, unchecked %d", checkedLines, uncheckedLines)
	}
}
