package pdf

import (
	"math"

	"formforge/internal/form"
)

// Bounds is the smallest rectangle anchored at the canvas origin that
// contains every field, in pixels. It is floored at the base canvas
// size so an empty or sparse template still yields a full-page layout.
type Bounds struct {
	Width  float64
	Height float64
}

// LayoutBounds computes the field bounding box for a template.
func LayoutBounds(fields []form.TemplateField) Bounds {
	b := Bounds{Width: CanvasWidthPx, Height: CanvasHeightPx}
	for _, f := range fields {
		size := f.ClampedSize()
		if right := f.Position.X + size.Width; right > b.Width {
			b.Width = right
		}
		if bottom := f.Position.Y + size.Height; bottom > b.Height {
			b.Height = bottom
		}
	}
	return b
}

// FitScale returns the points-per-pixel factor that fits the whole
// bounding box, plus the heading block, onto one physical page. Dense
// templates shrink below their natural size rather than paginate.
func FitScale(b Bounds, hasHeading bool) float64 {
	printableW := PageWidthPt - 2*PageMarginPt
	availableH := PageHeightPt - 2*PageMarginPt - headingHeight(hasHeading)
	return math.Min(printableW/b.Width, availableH/b.Height)
}

// Zoom is the fit scale normalized against the empty-canvas baseline:
// 1.0 when every field lies inside the base canvas, strictly below 1.0
// once any field extends past it.
func Zoom(b Bounds, hasHeading bool) float64 {
	base := Bounds{Width: CanvasWidthPx, Height: CanvasHeightPx}
	return FitScale(b, hasHeading) / FitScale(base, hasHeading)
}
