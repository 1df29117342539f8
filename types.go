package stext

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/bidi"
)

// Point is a position in device space (origin top-left, y grows downward).
type Point struct {
	X float64
	Y float64
}

// Rect represents an axis-aligned bounding box in device space.
type Rect struct {
	X0 float64 // Left
	Y0 float64 // Top
	X1 float64 // Right
	Y1 float64 // Bottom
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

// IsValid reports whether the corners are ordered.
func (r Rect) IsValid() bool {
	return r.X0 <= r.X1 && r.Y0 <= r.Y1
}

// Union returns the smallest rectangle containing both r and o.
// A zero Rect is treated as unset.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o == (Rect{}) {
		return r
	}
	return mergeRects(r, o)
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return rectContains(r, o)
}

// Quad returns the four corners of the rectangle.
func (r Rect) Quad() Quad {
	return Quad{
		UL: Point{r.X0, r.Y0},
		UR: Point{r.X1, r.Y0},
		LL: Point{r.X0, r.Y1},
		LR: Point{r.X1, r.Y1},
	}
}

// Quad is a four-cornered, possibly rotated, bounding polygon.
// Callers must not assume the corners are axis aligned.
type Quad struct {
	UL Point
	UR Point
	LL Point
	LR Point
}

// Rect returns the axis-aligned bounding box of the quad.
func (q Quad) Rect() Rect {
	return Rect{
		X0: math.Min(math.Min(q.UL.X, q.UR.X), math.Min(q.LL.X, q.LR.X)),
		Y0: math.Min(math.Min(q.UL.Y, q.UR.Y), math.Min(q.LL.Y, q.LR.Y)),
		X1: math.Max(math.Max(q.UL.X, q.UR.X), math.Max(q.LL.X, q.LR.X)),
		Y1: math.Max(math.Max(q.UL.Y, q.UR.Y), math.Max(q.LL.Y, q.LR.Y)),
	}
}

// AlignedQuad returns the smallest quad with sides parallel and
// perpendicular to dir that covers every quad in qs. UL is the corner at the
// start of the reading direction on the side lines advance away from.
func AlignedQuad(dir Point, qs ...Quad) Quad {
	if len(qs) == 0 {
		return Quad{}
	}
	dir = unitVector(dir)
	perp := lineProgression(dir)

	u0, u1 := math.Inf(1), math.Inf(-1)
	v0, v1 := math.Inf(1), math.Inf(-1)
	for _, q := range qs {
		for _, p := range [4]Point{q.UL, q.UR, q.LL, q.LR} {
			u, v := dot(p, dir), dot(p, perp)
			u0, u1 = math.Min(u0, u), math.Max(u1, u)
			v0, v1 = math.Min(v0, v), math.Max(v1, v)
		}
	}
	return orientedQuad(dir, perp, u0, u1, v0, v1)
}

// orientedQuad maps the box [u0,u1]x[v0,v1] in the (dir, perp) frame back
// to device space.
func orientedQuad(dir, perp Point, u0, u1, v0, v1 float64) Quad {
	at := func(u, v float64) Point {
		return Point{X: dir.X*u + perp.X*v, Y: dir.Y*u + perp.Y*v}
	}
	return Quad{UL: at(u0, v0), UR: at(u1, v0), LL: at(u0, v1), LR: at(u1, v1)}
}

// extent returns the span of q along axis.
func (q Quad) extent(axis Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range [4]Point{q.UL, q.UR, q.LL, q.LR} {
		v := dot(p, axis)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Matrix is a PDF style affine transform [a b c d e f].
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the identity transform.
var Identity = Matrix{A: 1, D: 1}

// TransformPoint applies the matrix to p.
func (m Matrix) TransformPoint(p Point) Point {
	return Point{
		X: p.X*m.A + p.Y*m.C + m.E,
		Y: p.X*m.B + p.Y*m.D + m.F,
	}
}

// TransformQuad applies the matrix to every corner of q.
func (m Matrix) TransformQuad(q Quad) Quad {
	return Quad{
		UL: m.TransformPoint(q.UL),
		UR: m.TransformPoint(q.UR),
		LL: m.TransformPoint(q.LL),
		LR: m.TransformPoint(q.LR),
	}
}

// Concat returns m followed by n.
func (m Matrix) Concat(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.B*n.C,
		B: m.A*n.B + m.B*n.D,
		C: m.C*n.A + m.D*n.C,
		D: m.C*n.B + m.D*n.D,
		E: m.E*n.A + m.F*n.C + n.E,
		F: m.E*n.B + m.F*n.D + n.F,
	}
}

// RotateAbout returns a rotation of deg degrees around the point c.
func RotateAbout(c Point, deg float64) Matrix {
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	toOrigin := Matrix{A: 1, D: 1, E: -c.X, F: -c.Y}
	rot := Matrix{A: cos, B: sin, C: -sin, D: cos}
	back := Matrix{A: 1, D: 1, E: c.X, F: c.Y}
	return toOrigin.Concat(rot).Concat(back)
}

// BlockType tags the kind of layout unit a Block represents.
type BlockType int

const (
	BlockText BlockType = iota
	BlockImage
	BlockList
	BlockTable
)

func (t BlockType) String() string {
	switch t {
	case BlockText:
		return "text"
	case BlockImage:
		return "image"
	case BlockList:
		return "list"
	case BlockTable:
		return "table"
	default:
		return "unknown"
	}
}

// WritingMode is the logical reading direction of a line.
type WritingMode int

const (
	HorizontalLTR WritingMode = iota
	HorizontalRTL
	VerticalTTB
	VerticalBTT
)

func (m WritingMode) String() string {
	switch m {
	case HorizontalLTR:
		return "ltr"
	case HorizontalRTL:
		return "rtl"
	case VerticalTTB:
		return "ttb"
	case VerticalBTT:
		return "btt"
	default:
		return "unknown"
	}
}

// IsVertical reports whether lines in this mode advance along the Y axis.
func (m WritingMode) IsVertical() bool {
	return m == VerticalTTB || m == VerticalBTT
}

// Character is a single rendered glyph mapped back to one Unicode code point.
type Character struct {
	Rune     rune
	Quad     Quad
	Size     float64 // Font size in points
	Font     string
	Color    [3]float32 // Device RGB, 0..1
	Origin   Point
	Advance  float64
	Bidi     bidi.Class
	Language language.Tag

	// Synthetic is set for spaces inserted by the builder where the page
	// had a visible gap but no space glyph.
	Synthetic bool
}

// IsSpace reports whether the character is whitespace for search purposes.
func (c Character) IsSpace() bool {
	return isSpaceRune(c.Rune)
}

// Line is one line of text at a single writing mode and baseline.
// Characters are stored in logical order.
type Line struct {
	Mode     WritingMode
	BBox     Rect
	Baseline float64 // Y for horizontal modes, X for vertical modes
	Dir      Point   // Unit vector of the reading direction
	Chars    []Character
}

// Text returns the characters of the line as a string.
func (l Line) Text() string {
	runes := make([]rune, len(l.Chars))
	for i, ch := range l.Chars {
		runes[i] = ch.Rune
	}
	return string(runes)
}

// Block is a layout unit: a paragraph, list, table or image region.
type Block struct {
	Type  BlockType
	BBox  Rect
	Lines []Line // Empty for image blocks
}

// HasText reports whether the block carries any characters.
func (b Block) HasText() bool {
	for _, line := range b.Lines {
		if len(line.Chars) > 0 {
			return true
		}
	}
	return false
}

// Page is the root of the structured text hierarchy for one rendered page.
// A Page is immutable once built and safe for concurrent readers.
type Page struct {
	BBox   Rect
	Blocks []Block
}

// CharCount returns the number of characters on the page.
func (p *Page) CharCount() int {
	n := 0
	for _, block := range p.Blocks {
		for _, line := range block.Lines {
			n += len(line.Chars)
		}
	}
	return n
}

// Hit is one quad of a search result. A match that spans several lines is
// reported as consecutive hits sharing the same Mark.
type Hit struct {
	Quad Quad
	Mark int
}
