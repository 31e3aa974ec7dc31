package pdf

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"formforge/internal/form"
)

// RenderOutcome tags how one field's draw call ended. A fallback means
// some content (an image, an attachment) could not be used and a
// placeholder was drawn instead; the document itself always survives.
type RenderOutcome int

const (
	OutcomeRendered RenderOutcome = iota
	OutcomeFallback
	OutcomeSkipped
)

const signatureDataPrefix = "data:image"

// Palette. Values mirror the editor canvas so the PDF reads like the
// on-screen form.
var (
	colorBorder      = [3]int{203, 213, 225}
	colorLabel       = [3]int{71, 85, 105}
	colorValue       = [3]int{15, 23, 42}
	colorPlaceholder = [3]int{148, 163, 184}
	colorBadge       = [3]int{220, 38, 38}
	colorFieldFill   = [3]int{255, 255, 255}
	colorCellFill    = [3]int{248, 250, 252}
)

type fieldRenderer struct {
	doc      *fpdf.Fpdf
	rc       *RenderContext
	logger   *slog.Logger
	imageSeq int
}

func newFieldRenderer(doc *fpdf.Fpdf, rc *RenderContext, logger *slog.Logger) *fieldRenderer {
	return &fieldRenderer{doc: doc, rc: rc, logger: logger}
}

// Render draws one field: frame, label, required badge, then the
// kind-specific content. Content failures never abort the document.
func (r *fieldRenderer) Render(f form.TemplateField, val Value, files []Attachment) RenderOutcome {
	x, y, w, h := r.rc.FieldRect(f)
	if x+w < 0 || y+h < 0 || x > PageWidthPt || y > PageHeightPt {
		r.logger.Warn("field lies outside the page, skipped", slog.String("field_id", string(f.ID)))
		return OutcomeSkipped
	}

	z := r.rc.Zoom
	pad := 6 * z

	r.drawFrame(f, x, y, w, h)
	r.drawLabel(f, x, y, w, pad)
	if f.Required {
		r.drawRequiredBadge(x, y, w)
	}

	// Content area sits below the label line.
	cx := x + pad
	cy := y + pad + 10*z
	cw := w - 2*pad
	ch := h - (cy - y) - pad
	if cw <= 0 || ch <= 0 {
		return OutcomeRendered
	}

	switch f.Kind {
	case form.KindCheckbox:
		r.drawCheckbox(f, val, cx, cy, cw, ch)
		return OutcomeRendered
	case form.KindSignature:
		return r.drawSignature(f, val, cx, cy, cw, ch)
	case form.KindPhoto:
		return r.drawPhoto(f, val, files, cx, cy, cw, ch)
	default:
		// text, paragraph and unknown kinds share the text path.
		r.drawText(f, val, cx, cy, cw, ch)
		return OutcomeRendered
	}
}

func (r *fieldRenderer) drawFrame(f form.TemplateField, x, y, w, h float64) {
	z := r.rc.Zoom
	r.doc.SetFillColor(colorFieldFill[0], colorFieldFill[1], colorFieldFill[2])
	r.doc.SetDrawColor(colorBorder[0], colorBorder[1], colorBorder[2])
	r.doc.SetLineWidth(0.75 * z)
	if f.Kind == form.KindSignature {
		r.doc.SetDashPattern([]float64{3 * z, 2 * z}, 0)
		r.doc.RoundedRect(x, y, w, h, 3*z, "1234", "FD")
		r.doc.SetDashPattern([]float64{}, 0)
		return
	}
	r.doc.RoundedRect(x, y, w, h, 3*z, "1234", "FD")
}

func (r *fieldRenderer) drawLabel(f form.TemplateField, x, y, w, pad float64) {
	z := r.rc.Zoom
	labelW := w - 2*pad
	if f.Required {
		labelW -= r.badgeWidth() + 2*z
	}
	if labelW <= 0 {
		return
	}
	r.doc.SetFont("Helvetica", "B", 7.5*z)
	r.doc.SetTextColor(colorLabel[0], colorLabel[1], colorLabel[2])
	r.doc.ClipRect(x+pad, y+2*z, labelW, 9*z, false)
	r.doc.SetXY(x+pad, y+2*z)
	r.doc.CellFormat(labelW, 9*z, f.DisplayLabel(), "", 0, "LM", false, 0, "")
	r.doc.ClipEnd()
}

func (r *fieldRenderer) badgeWidth() float64 {
	z := r.rc.Zoom
	r.doc.SetFont("Helvetica", "B", 5.5*z)
	return r.doc.GetStringWidth("REQUIRED") + 6*z
}

func (r *fieldRenderer) drawRequiredBadge(x, y, w float64) {
	z := r.rc.Zoom
	bw := r.badgeWidth()
	bh := 8 * z
	bx := x + w - bw - 3*z
	by := y + 2*z
	r.doc.SetFillColor(colorBadge[0], colorBadge[1], colorBadge[2])
	r.doc.RoundedRect(bx, by, bw, bh, bh/2, "1234", "F")
	r.doc.SetFont("Helvetica", "B", 5.5*z)
	r.doc.SetTextColor(255, 255, 255)
	r.doc.SetXY(bx, by)
	r.doc.CellFormat(bw, bh, "REQUIRED", "", 0, "CM", false, 0, "")
}

func (r *fieldRenderer) drawText(f form.TemplateField, val Value, cx, cy, cw, ch float64) {
	z := r.rc.Zoom
	text := ""
	if val.Kind == ValueText {
		text = strings.TrimSpace(val.Text)
	}

	if text == "" {
		r.doc.SetFont("Helvetica", "I", 8*z)
		r.doc.SetTextColor(colorPlaceholder[0], colorPlaceholder[1], colorPlaceholder[2])
		placeholder := strings.TrimSpace(f.Placeholder)
		if placeholder == "" {
			placeholder = "No answer"
		}
		r.clippedMultiCell(cx, cy, cw, ch, 10*z, placeholder)
		return
	}

	r.doc.SetFont("Helvetica", "", 8.5*z)
	r.doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
	// Overflowing paragraph text clips at the box edge; the box never
	// grows past its template size.
	r.clippedMultiCell(cx, cy, cw, ch, 11*z, text)
}

func (r *fieldRenderer) clippedMultiCell(cx, cy, cw, ch, lineH float64, text string) {
	r.doc.ClipRect(cx, cy, cw, ch, false)
	r.doc.SetXY(cx, cy)
	r.doc.MultiCell(cw, lineH, text, "", "L", false)
	r.doc.ClipEnd()
}

func (r *fieldRenderer) drawCheckbox(f form.TemplateField, val Value, cx, cy, cw, ch float64) {
	z := r.rc.Zoom
	box := 11 * z
	if box > ch {
		box = ch
	}
	by := cy + (ch-box)/2

	r.doc.SetDrawColor(colorLabel[0], colorLabel[1], colorLabel[2])
	r.doc.SetLineWidth(0.9 * z)
	r.doc.Rect(cx, by, box, box, "D")

	if val.Kind == ValueFlag && val.Flag {
		// Three-point polyline check mark.
		r.doc.SetLineCapStyle("round")
		r.doc.SetLineWidth(1.3 * z)
		x1, y1 := cx+0.22*box, by+0.55*box
		x2, y2 := cx+0.42*box, by+0.78*box
		x3, y3 := cx+0.80*box, by+0.26*box
		r.doc.Line(x1, y1, x2, y2)
		r.doc.Line(x2, y2, x3, y3)
		r.doc.SetLineCapStyle("butt")
	}

	labelX := cx + box + 4*z
	labelW := cw - box - 4*z
	if labelW <= 0 {
		return
	}
	r.doc.SetFont("Helvetica", "", 8*z)
	r.doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
	r.doc.ClipRect(labelX, by, labelW, box, false)
	r.doc.SetXY(labelX, by)
	r.doc.CellFormat(labelW, box, f.OptionLabel(), "", 0, "LM", false, 0, "")
	r.doc.ClipEnd()
}

func (r *fieldRenderer) drawSignature(f form.TemplateField, val Value, cx, cy, cw, ch float64) RenderOutcome {
	z := r.rc.Zoom

	if val.Kind != ValueText || !strings.HasPrefix(val.Text, signatureDataPrefix) {
		r.doc.SetFont("Helvetica", "I", 8*z)
		r.doc.SetTextColor(colorPlaceholder[0], colorPlaceholder[1], colorPlaceholder[2])
		r.doc.SetXY(cx, cy)
		r.doc.CellFormat(cw, ch, "Sign inside the box", "", 0, "CM", false, 0, "")
		return OutcomeRendered
	}

	data, imgType, err := decodeDataURI(val.Text)
	if err != nil {
		r.logger.Warn("signature image rejected",
			slog.String("field_id", string(f.ID)),
			slog.Any("error", err),
		)
		return OutcomeFallback
	}
	if err := r.drawImageFit(data, imgType, cx, cy, cw, ch); err != nil {
		r.logger.Warn("signature image rejected",
			slog.String("field_id", string(f.ID)),
			slog.Any("error", err),
		)
		return OutcomeFallback
	}
	return OutcomeRendered
}

func (r *fieldRenderer) drawPhoto(f form.TemplateField, val Value, files []Attachment, cx, cy, cw, ch float64) RenderOutcome {
	z := r.rc.Zoom

	if len(files) > 0 {
		return r.drawPhotoGrid(f, files, cx, cy, cw, ch)
	}

	// No readable attachments; a raw value may still list file names.
	if val.Kind == ValueRaw {
		if names := fileNameList(val.Raw); len(names) > 0 {
			var b strings.Builder
			for i, name := range names {
				fmt.Fprintf(&b, "%d. %s\n", i+1, name)
			}
			r.doc.SetFont("Helvetica", "", 8*z)
			r.doc.SetTextColor(colorValue[0], colorValue[1], colorValue[2])
			r.clippedMultiCell(cx, cy, cw, ch, 11*z, strings.TrimRight(b.String(), "\n"))
			return OutcomeRendered
		}
	}

	r.doc.SetFont("Helvetica", "I", 8*z)
	r.doc.SetTextColor(colorPlaceholder[0], colorPlaceholder[1], colorPlaceholder[2])
	r.doc.SetXY(cx, cy)
	r.doc.CellFormat(cw, ch, "No files uploaded", "", 0, "CM", false, 0, "")
	return OutcomeRendered
}

func (r *fieldRenderer) drawPhotoGrid(f form.TemplateField, files []Attachment, cx, cy, cw, ch float64) RenderOutcome {
	z := r.rc.Zoom
	gap := 4 * z
	cols := 1
	if len(files) > 1 {
		cols = 2
	}
	rows := (len(files) + cols - 1) / cols
	cellW := (cw - float64(cols-1)*gap) / float64(cols)
	cellH := (ch - float64(rows-1)*gap) / float64(rows)
	captionH := 9 * z

	outcome := OutcomeRendered
	for i, att := range files {
		col := i % cols
		row := i / cols
		x := cx + float64(col)*(cellW+gap)
		y := cy + float64(row)*(cellH+gap)

		r.doc.SetFillColor(colorCellFill[0], colorCellFill[1], colorCellFill[2])
		r.doc.SetDrawColor(colorBorder[0], colorBorder[1], colorBorder[2])
		r.doc.SetLineWidth(0.6 * z)
		r.doc.Rect(x, y, cellW, cellH, "FD")

		data, imgType, err := attachmentImage(att)
		if err != nil {
			r.logger.Warn("photo attachment unreadable",
				slog.String("field_id", string(f.ID)),
				slog.String("name", att.Name),
				slog.Any("error", err),
			)
			outcome = OutcomeFallback
			continue
		}

		imgH := cellH - captionH
		if err := r.drawImageFit(data, imgType, x+2*z, y+2*z, cellW-4*z, imgH-4*z); err != nil {
			r.logger.Warn("photo attachment rejected",
				slog.String("field_id", string(f.ID)),
				slog.String("name", att.Name),
				slog.Any("error", err),
			)
			outcome = OutcomeFallback
			continue
		}

		caption := att.Name
		if caption == "" {
			caption = filepath.Base(att.Path)
		}
		r.doc.SetFont("Helvetica", "", 6.5*z)
		r.doc.SetTextColor(colorLabel[0], colorLabel[1], colorLabel[2])
		r.doc.ClipRect(x+2*z, y+cellH-captionH, cellW-4*z, captionH, false)
		r.doc.SetXY(x+2*z, y+cellH-captionH)
		r.doc.CellFormat(cellW-4*z, captionH, caption, "", 0, "CM", false, 0, "")
		r.doc.ClipEnd()
	}
	return outcome
}

// drawImageFit registers image bytes under a fresh name and draws them
// scaled to fit the given box, aspect ratio preserved, centered.
func (r *fieldRenderer) drawImageFit(data []byte, imgType string, x, y, w, h float64) error {
	if w <= 0 || h <= 0 {
		return errors.New("image box has no area")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("image has no pixels")
	}

	ratio := float64(cfg.Width) / float64(cfg.Height)
	dw, dh := w, w/ratio
	if dh > h {
		dh = h
		dw = h * ratio
	}
	dx := x + (w-dw)/2
	dy := y + (h-dh)/2

	r.imageSeq++
	name := fmt.Sprintf("field-img-%d", r.imageSeq)
	opts := fpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	r.doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if r.doc.Err() {
		err := r.doc.Error()
		r.doc.ClearError()
		return fmt.Errorf("register image: %w", err)
	}
	r.doc.ImageOptions(name, dx, dy, dw, dh, false, opts, 0, "")
	if r.doc.Err() {
		err := r.doc.Error()
		r.doc.ClearError()
		return fmt.Errorf("place image: %w", err)
	}
	return nil
}

// decodeDataURI splits a data:image URI and decodes the base64 payload
// after the comma.
func decodeDataURI(uri string) ([]byte, string, error) {
	head, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, "", errors.New("data uri has no payload")
	}

	imgType := ""
	switch {
	case strings.Contains(head, "png"):
		imgType = "PNG"
	case strings.Contains(head, "jpeg"), strings.Contains(head, "jpg"):
		imgType = "JPG"
	case strings.Contains(head, "gif"):
		imgType = "GIF"
	default:
		return nil, "", fmt.Errorf("unsupported image mime in %q", head)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, imgType, nil
}

// attachmentImage resolves an attachment to raw bytes plus the fpdf
// image type tag.
func attachmentImage(att Attachment) ([]byte, string, error) {
	data := att.Data
	if data == nil {
		if strings.TrimSpace(att.Path) == "" {
			return nil, "", errors.New("attachment has no path and no bytes")
		}
		var err error
		data, err = os.ReadFile(att.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read attachment: %w", err)
		}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("sniff attachment image: %w", err)
	}
	switch format {
	case "png":
		return data, "PNG", nil
	case "jpeg":
		return data, "JPG", nil
	case "gif":
		return data, "GIF", nil
	default:
		return nil, "", fmt.Errorf("unsupported attachment format %q", format)
	}
}

func fileNameList(raw any) []string {
	var names []string
	switch t := raw.(type) {
	case []any:
		for _, item := range t {
			switch v := item.(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					names = append(names, v)
				}
			case map[string]any:
				if name := firstString(v, "name", "fileName", "filename"); name != "" {
					names = append(names, name)
				}
			}
		}
	case []string:
		names = append(names, t...)
	case string:
		if strings.TrimSpace(t) != "" {
			names = append(names, t)
		}
	}
	return names
}
