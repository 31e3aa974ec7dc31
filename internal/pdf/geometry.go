package pdf

import (
	"math"

	"formforge/internal/form"
)

// Page and canvas geometry. The canvas is the fixed design surface the
// editor positions fields against: 795 px wide at 96 DPI with an A4
// aspect ratio. The output page is A4 portrait in points.
const (
	CanvasWidthPx = 795.0

	PageWidthPt  = 595.28
	PageHeightPt = 841.89

	// 15 mm page margin expressed in points.
	PageMarginPt = 15.0 * 72.0 / 25.4

	// Vertical space reserved above the canvas for the title block.
	headingBlockPt      = 72.0
	headingBlockEmptyPt = 24.0

	// Canvas pixels are 96 DPI, PDF points are 72 DPI.
	pointsPerPixelBase = 72.0 / 96.0
)

// CanvasHeightPx is CanvasWidthPx × √2 (the A4 aspect ratio).
var CanvasHeightPx = CanvasWidthPx * math.Sqrt2

// Converter maps canvas pixel coordinates to document points for one
// generation call. Conversions are purely multiplicative; rounding is
// left to the drawing calls so errors never compound.
type Converter struct {
	scale float64
}

// NewConverter builds a converter from a points-per-pixel scale.
func NewConverter(scale float64) Converter {
	return Converter{scale: scale}
}

// ToPoints converts a pixel measure to points.
func (c Converter) ToPoints(px float64) float64 {
	return px * c.scale
}

// ToPixels is the inverse of ToPoints.
func (c Converter) ToPixels(pt float64) float64 {
	return pt / c.scale
}

// Scale returns the points-per-pixel factor.
func (c Converter) Scale() float64 {
	return c.scale
}

func headingHeight(hasHeading bool) float64 {
	if hasHeading {
		return headingBlockPt
	}
	return headingBlockEmptyPt
}

// RenderContext is the per-call geometry: output target, computed
// scale and the origin of the scaled canvas inside the printable area.
// Each Generate call owns exactly one of these; nothing is shared
// between concurrent renders.
type RenderContext struct {
	OutputPath string

	Bounds  Bounds // field bounding box, pixels
	Conv    Converter
	Zoom    float64 // fit ratio normalized against the empty-canvas fit
	Origin  form.Point
	Heading float64 // reserved heading block height, points
}

func newRenderContext(outputPath string, fields []form.TemplateField, meta form.Meta) RenderContext {
	bounds := LayoutBounds(fields)
	hasHeading := meta.HasHeading()
	scale := FitScale(bounds, hasHeading)

	printableW := PageWidthPt - 2*PageMarginPt
	originX := PageMarginPt + (printableW-bounds.Width*scale)/2
	originY := PageMarginPt + headingHeight(hasHeading)

	return RenderContext{
		OutputPath: outputPath,
		Bounds:     bounds,
		Conv:       NewConverter(scale),
		Zoom:       Zoom(bounds, hasHeading),
		Origin:     form.Point{X: originX, Y: originY},
		Heading:    headingHeight(hasHeading),
	}
}

// FieldRect returns the scaled document-space rectangle of a field.
func (rc RenderContext) FieldRect(f form.TemplateField) (x, y, w, h float64) {
	size := f.ClampedSize()
	x = rc.Origin.X + rc.Conv.ToPoints(f.Position.X)
	y = rc.Origin.Y + rc.Conv.ToPoints(f.Position.Y)
	w = rc.Conv.ToPoints(size.Width)
	h = rc.Conv.ToPoints(size.Height)
	return x, y, w, h
}

// CanvasRect returns the document-space rectangle of the backdrop.
func (rc RenderContext) CanvasRect() (x, y, w, h float64) {
	return rc.Origin.X, rc.Origin.Y, rc.Conv.ToPoints(rc.Bounds.Width), rc.Conv.ToPoints(rc.Bounds.Height)
}
