package stext

import "context"

// Source supplies the glyph placements of one rendered page. It is the
// boundary to the PDF engine: document parsing, content interpretation and
// font handling all happen behind it.
type Source interface {
	Layout(ctx context.Context) (*Layout, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Layout, error)

// Layout implements Source.
func (f SourceFunc) Layout(ctx context.Context) (*Layout, error) {
	return f(ctx)
}

// Layout is the raw output of a page render pass.
type Layout struct {
	// Bounds is the page's media box in device space.
	Bounds Rect

	// Glyphs are in content stream order.
	Glyphs []Glyph

	// Images are non-text regions, positioned relative to Glyphs.
	Images []Image
}

// Glyph is a single glyph placement as reported by the engine.
type Glyph struct {
	// Text is what the glyph maps back to. It may hold several runes for a
	// ligature, or a lone combining mark.
	Text string

	Quad    Quad
	Origin  Point
	Advance float64
	Size    float64
	Font    string
	Color   [3]float32

	// Vertical is set for glyphs shown in vertical writing mode.
	Vertical bool

	// Dir is the reading direction in device space. A zero value means +X.
	Dir Point
}

// Image is a non-text region of the page.
type Image struct {
	BBox Rect

	// Before is the index of the first glyph drawn after the image.
	// len(Glyphs) places the image after all text.
	Before int
}

// Glyph boxes built from a font size alone extend this far above and below
// the baseline.
const (
	ascentRatio  = 0.8
	descentRatio = 0.2
)
