package pdf

import (
	"math"
	"testing"

	"formforge/internal/form"
)

func TestConverterRoundTrip(t *testing.T) {
	conv := NewConverter(0.613)
	for _, px := range []float64{0, 1, 160, 795, 1124.3} {
		pt := conv.ToPoints(px)
		back := conv.ToPixels(pt)
		if math.Abs(back-px) > 1e-9 {
			t.Fatalf("round trip %v -> %v -> %v", px, pt, back)
		}
	}
	if conv.Scale() != 0.613 {
		t.Fatalf("Scale = %v", conv.Scale())
	}
}

func TestLayoutBoundsEmptyTemplate(t *testing.T) {
	b := LayoutBounds(nil)
	if b.Width != CanvasWidthPx || b.Height != CanvasHeightPx {
		t.Fatalf("empty bounds = %+v", b)
	}
}

func TestLayoutBoundsClampsTinyFields(t *testing.T) {
	fields := []form.TemplateField{
		{Position: form.Point{X: 700, Y: 0}, Size: form.Size{Width: 10, Height: 10}},
	}
	b := LayoutBounds(fields)
	// 700 + clamped minimum width extends past the base canvas.
	if want := 700 + form.MinFieldWidthPx; b.Width != want {
		t.Fatalf("width = %v, want %v", b.Width, want)
	}
	if b.Height != CanvasHeightPx {
		t.Fatalf("height = %v, want base", b.Height)
	}
}

func TestZoomInBoundsIsOne(t *testing.T) {
	fields := []form.TemplateField{
		{Position: form.Point{X: 40, Y: 40}, Size: form.Size{Width: 300, Height: 80}},
		{Position: form.Point{X: 40, Y: 160}, Size: form.Size{Width: 600, Height: 120}},
	}
	b := LayoutBounds(fields)
	for _, hasHeading := range []bool{true, false} {
		if z := Zoom(b, hasHeading); math.Abs(z-1.0) > 1e-9 {
			t.Fatalf("in-bounds zoom (heading=%v) = %v, want 1", hasHeading, z)
		}
	}
}

func TestZoomShrinksOverflowingTemplate(t *testing.T) {
	fields := []form.TemplateField{
		{Position: form.Point{X: 900, Y: 40}, Size: form.Size{Width: 300, Height: 80}},
	}
	b := LayoutBounds(fields)
	z := Zoom(b, false)
	if z >= 1.0 {
		t.Fatalf("overflow zoom = %v, want < 1", z)
	}

	// The scaled bounding box must still fit the printable area.
	scale := FitScale(b, false)
	printableW := PageWidthPt - 2*PageMarginPt
	if b.Width*scale > printableW+1e-9 {
		t.Fatalf("scaled width %v exceeds printable %v", b.Width*scale, printableW)
	}
}

func TestRenderContextCentersCanvas(t *testing.T) {
	rc := newRenderContext("out.pdf", nil, form.Meta{})

	x, _, w, _ := rc.CanvasRect()
	leftGap := x - PageMarginPt
	rightGap := (PageWidthPt - PageMarginPt) - (x + w)
	if math.Abs(leftGap-rightGap) > 1e-6 {
		t.Fatalf("canvas not centered: left %v right %v", leftGap, rightGap)
	}
	if rc.Heading != headingBlockEmptyPt {
		t.Fatalf("heading reserve without meta = %v", rc.Heading)
	}

	rc = newRenderContext("out.pdf", nil, form.Meta{TemplateName: "Visit report"})
	if rc.Heading != headingBlockPt {
		t.Fatalf("heading reserve with meta = %v", rc.Heading)
	}
	if rc.Origin.Y != PageMarginPt+headingBlockPt {
		t.Fatalf("origin y = %v", rc.Origin.Y)
	}
}

func TestFieldRectAppliesClampAndOrigin(t *testing.T) {
	f := form.TemplateField{
		Position: form.Point{X: 100, Y: 200},
		Size:     form.Size{Width: 10, Height: 10},
	}
	rc := newRenderContext("out.pdf", []form.TemplateField{f}, form.Meta{})

	x, y, w, h := rc.FieldRect(f)
	if wantX := rc.Origin.X + rc.Conv.ToPoints(100); math.Abs(x-wantX) > 1e-9 {
		t.Fatalf("x = %v, want %v", x, wantX)
	}
	if wantY := rc.Origin.Y + rc.Conv.ToPoints(200); math.Abs(y-wantY) > 1e-9 {
		t.Fatalf("y = %v, want %v", y, wantY)
	}
	if w != rc.Conv.ToPoints(form.MinFieldWidthPx) || h != rc.Conv.ToPoints(form.MinFieldHeightPx) {
		t.Fatalf("clamped rect = %v x %v", w, h)
	}
}
