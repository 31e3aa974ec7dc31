// Package pdf renders filled, signed form submissions to fixed-layout
// A4 documents. The layout mirrors the editor canvas: fields keep
// their absolute positions and sizes, scaled so the whole template
// always fits one page.
package pdf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"

	"formforge/internal/form"
)

// Options configures one generation call.
type Options struct {
	// OutputPath is the target file; intermediate directories are
	// created. Callers must use distinct paths per call.
	OutputPath string
	// Template is the ordered field list. Order is z-order: later
	// fields paint over earlier ones where they overlap.
	Template []form.TemplateField
	Meta     form.Meta
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Report collects the per-field render outcomes of one call.
type Report struct {
	Outcomes  map[form.FieldID]RenderOutcome
	Fallbacks []form.FieldID
}

// HasFallback reports whether any field fell back to a placeholder.
func (r Report) HasFallback() bool {
	return len(r.Fallbacks) > 0
}

// Generate renders the submission to opts.OutputPath and returns the
// path once the file is fully written. Per-field content failures are
// rendered as placeholders; only stream-level failures return an error.
func Generate(values map[string]any, signatures map[string]string, opts Options) (string, error) {
	path, _, err := GenerateWithReport(values, signatures, opts)
	return path, err
}

// GenerateWithReport is Generate plus the render outcome report.
func GenerateWithReport(values map[string]any, signatures map[string]string, opts Options) (string, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := Report{Outcomes: make(map[form.FieldID]RenderOutcome, len(opts.Template))}

	if strings.TrimSpace(opts.OutputPath) == "" {
		return "", report, fmt.Errorf("output path is required")
	}
	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", report, fmt.Errorf("create output directory: %w", err)
		}
	}

	rc := newRenderContext(opts.OutputPath, opts.Template, opts.Meta)
	sub := NormalizeSubmission(opts.Template, values, signatures)

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	drawHeading(doc, opts.Meta)
	drawBackdrop(doc, &rc)

	renderer := newFieldRenderer(doc, &rc, logger)
	for _, field := range opts.Template {
		outcome := renderer.Render(field, sub.Values[field.ID], sub.Attachments[field.ID])
		report.Outcomes[field.ID] = outcome
		if outcome == OutcomeFallback {
			report.Fallbacks = append(report.Fallbacks, field.ID)
		}
	}

	drawAdditionalData(doc, &rc, sub.Extra)
	drawFooter(doc)

	if doc.Err() {
		return "", report, fmt.Errorf("compose document: %w", doc.Error())
	}
	if err := doc.OutputFileAndClose(opts.OutputPath); err != nil {
		return "", report, fmt.Errorf("write %s: %w", opts.OutputPath, err)
	}

	logger.Info("form pdf generated",
		slog.String("path", opts.OutputPath),
		slog.Int("fields", len(opts.Template)),
		slog.Int("fallbacks", len(report.Fallbacks)),
	)
	return opts.OutputPath, report, nil
}

// Validate is a minimal smoke check: the file exists and is non-empty.
func Validate(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func drawHeading(doc *fpdf.Fpdf, meta form.Meta) {
	if !meta.HasHeading() {
		return
	}
	w := PageWidthPt - 2*PageMarginPt
	y := PageMarginPt + 6

	if name := strings.TrimSpace(meta.TemplateName); name != "" {
		doc.SetFont("Helvetica", "B", 15)
		doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
		doc.SetXY(PageMarginPt, y)
		doc.CellFormat(w, 18, name, "", 0, "CM", false, 0, "")
		y += 20
	}
	if desc := strings.TrimSpace(meta.TemplateDescription); desc != "" {
		doc.SetFont("Helvetica", "", 9)
		doc.SetTextColor(colorLabel[0], colorLabel[1], colorLabel[2])
		doc.SetXY(PageMarginPt, y)
		doc.CellFormat(w, 12, desc, "", 0, "CM", false, 0, "")
	}
}

func drawBackdrop(doc *fpdf.Fpdf, rc *RenderContext) {
	x, y, w, h := rc.CanvasRect()
	doc.SetFillColor(colorCellFill[0], colorCellFill[1], colorCellFill[2])
	doc.SetDrawColor(colorBorder[0], colorBorder[1], colorBorder[2])
	doc.SetLineWidth(0.5)
	doc.RoundedRect(x, y, w, h, 6, "1234", "FD")
}

func drawAdditionalData(doc *fpdf.Fpdf, rc *RenderContext, extras []ExtraEntry) {
	if len(extras) == 0 {
		return
	}

	_, _, _, canvasH := rc.CanvasRect()
	y := rc.Origin.Y + canvasH + 16
	maxY := PageHeightPt - PageMarginPt
	w := PageWidthPt - 2*PageMarginPt

	const lineH = 13.0
	advance := func(need float64) {
		if y+need > maxY {
			doc.AddPage()
			y = PageMarginPt
		}
	}

	advance(lineH * 2)
	doc.SetFont("Helvetica", "B", 10)
	doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
	doc.SetXY(PageMarginPt, y)
	doc.CellFormat(w, lineH, "Additional data", "", 0, "LM", false, 0, "")
	y += lineH + 2

	for _, entry := range extras {
		advance(lineH)
		doc.SetFont("Helvetica", "B", 8.5)
		doc.SetTextColor(colorLabel[0], colorLabel[1], colorLabel[2])
		label := entry.Label() + ": "
		doc.SetXY(PageMarginPt, y)
		doc.CellFormat(doc.GetStringWidth(label)+2, lineH, label, "", 0, "LM", false, 0, "")

		doc.SetFont("Helvetica", "", 8.5)
		doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
		doc.CellFormat(0, lineH, DisplayText(entry.Value), "", 0, "LM", false, 0, "")
		y += lineH
	}
}

func drawFooter(doc *fpdf.Fpdf) {
	stamp := fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02 15:04:05"))
	doc.SetFont("Helvetica", "", 7)
	doc.SetTextColor(colorPlaceholder[0], colorPlaceholder[1], colorPlaceholder[2])
	doc.SetXY(PageMarginPt, PageHeightPt-PageMarginPt+4)
	doc.CellFormat(PageWidthPt-2*PageMarginPt, 10, stamp, "", 0, "RM", false, 0, "")
}
