package stext

import (
	"context"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/bidi"
	"golang.org/x/text/unicode/norm"
)

// checkInterval is how many glyphs are processed between cancellation checks.
const checkInterval = 64

// Build extracts the structured text of the page behind src.
//
// The returned page's BBox equals the layout bounds reported by the source.
// Build fails with ErrInvalidHandle for a nil source and with
// ErrExtractionFailed when the source fails, the bounds are not valid, ctx is
// cancelled or opts.Cookie is aborted.
func Build(ctx context.Context, src Source, opts Options) (*Page, error) {
	if src == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "nil page source")
	}
	opts = opts.withDefaults()

	if err := checkCancelled(ctx, opts.Cookie); err != nil {
		return nil, err
	}

	layout, err := src.Layout(ctx)
	if err != nil {
		return nil, errors.Wrap(asExtractionFailed(err), "failed to lay out page")
	}
	if layout == nil {
		return nil, errors.Wrap(ErrExtractionFailed, "source returned no layout")
	}
	if !layout.Bounds.IsValid() {
		return nil, errors.Wrapf(ErrExtractionFailed, "page bounds %v are not valid", layout.Bounds)
	}

	b := &builder{opts: opts}
	if err := b.run(ctx, layout); err != nil {
		return nil, err
	}

	opts.Cookie.setProgress(1, 1)

	return &Page{
		BBox:   layout.Bounds,
		Blocks: b.blocks,
	}, nil
}

// checkCancelled reports context cancellation and cookie aborts as
// extraction failures.
func checkCancelled(ctx context.Context, cookie *Cookie) error {
	if cookie.IsAborted() {
		return errors.WithStack(ErrAborted)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(asExtractionFailed(err), "extraction cancelled")
	}
	return nil
}

// builder turns the glyph stream into blocks. It holds the line currently
// being assembled and the finished lines not yet grouped into blocks.
type builder struct {
	opts    Options
	blocks  []Block
	pending []Line
	line    *lineState
}

func (b *builder) run(ctx context.Context, layout *Layout) error {
	images := make([]Image, len(layout.Images))
	copy(images, layout.Images)
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Before < images[j].Before
	})

	total := len(layout.Glyphs)
	for i, g := range layout.Glyphs {
		if i%checkInterval == 0 {
			if err := checkCancelled(ctx, b.opts.Cookie); err != nil {
				return err
			}
			b.opts.Cookie.setProgress(i, total)
		}

		for len(images) > 0 && images[0].Before <= i {
			b.addImage(images[0])
			images = images[1:]
		}

		b.addGlyph(g)
	}

	for _, img := range images {
		b.addImage(img)
	}
	b.flushBlocks()

	return nil
}

// addImage closes the running text and emits an image block.
func (b *builder) addImage(img Image) {
	b.flushBlocks()
	if img.BBox.IsEmpty() {
		return
	}
	b.blocks = append(b.blocks, Block{Type: BlockImage, BBox: img.BBox})
}

// flushLine moves the line under construction to the pending list.
func (b *builder) flushLine() {
	if b.line == nil {
		return
	}
	if line, ok := b.line.finish(); ok {
		b.pending = append(b.pending, line)
	}
	b.line = nil
}

// flushBlocks groups pending lines into blocks.
func (b *builder) flushBlocks() {
	b.flushLine()
	if len(b.pending) == 0 {
		return
	}
	b.blocks = append(b.blocks, groupLinesIntoBlocks(b.pending, b.opts)...)
	b.pending = nil
}

// glyphDirection returns the unit reading direction of g.
func glyphDirection(g Glyph) Point {
	if g.Dir == (Point{}) {
		if g.Vertical {
			return Point{Y: 1}
		}
		return Point{X: 1}
	}
	return unitVector(g.Dir)
}

// expandGlyph converts a glyph into one Character per code point. Glyphs
// mapping to several code points are split evenly along the glyph's advance.
func (b *builder) expandGlyph(g Glyph, dir Point) []Character {
	text := norm.NFC.String(g.Text)
	if !b.opts.PreserveLigatures {
		text = expandLigatures(text)
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil
	}

	chars := make([]Character, 0, n)
	k := 0
	for _, r := range text {
		t0 := float64(k) / float64(n)
		t1 := float64(k+1) / float64(n)
		q := Quad{
			UL: lerp(g.Quad.UL, g.Quad.UR, t0),
			UR: lerp(g.Quad.UL, g.Quad.UR, t1),
			LL: lerp(g.Quad.LL, g.Quad.LR, t0),
			LR: lerp(g.Quad.LL, g.Quad.LR, t1),
		}
		chars = append(chars, Character{
			Rune:  r,
			Quad:  q,
			Size:  g.Size,
			Font:  g.Font,
			Color: g.Color,
			Origin: Point{
				X: g.Origin.X + dir.X*g.Advance*t0,
				Y: g.Origin.Y + dir.Y*g.Advance*t0,
			},
			Advance:  g.Advance / float64(n),
			Bidi:     bidiClass(r),
			Language: b.opts.Language,
		})
		k++
	}
	return chars
}

// bidiClass looks up the bidirectional class of r.
func bidiClass(r rune) bidi.Class {
	props, _ := bidi.LookupRune(r)
	return props.Class()
}

// isMark reports whether r is a combining mark that attaches to the
// preceding character.
func isMark(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Me)
}

// composeMark folds a combining mark into base when NFC yields a single
// code point. It reports whether the composition happened.
func composeMark(base *Character, mark Character) bool {
	composed := norm.NFC.String(string([]rune{base.Rune, mark.Rune}))
	r, size := utf8.DecodeRuneInString(composed)
	if size != len(composed) || r == utf8.RuneError {
		return false
	}
	base.Rune = r
	base.Bidi = bidiClass(r)
	base.Quad = unionQuad(base.Quad, mark.Quad)
	return true
}

// unionQuad grows an axis-aligned q to cover o. Rotated quads are returned
// unchanged.
func unionQuad(q, o Quad) Quad {
	if q.UL.Y != q.UR.Y || q.UL.X != q.LL.X {
		return q
	}
	return q.Rect().Union(o.Rect()).Quad()
}

// ligatureMap maps ligature unicode codepoints to their expanded forms
var ligatureMap = map[rune]string{
	0xFB00: "ff",
	0xFB01: "fi",
	0xFB02: "fl",
	0xFB03: "ffi",
	0xFB04: "ffl",
	0xFB05: "ft",
	0xFB06: "st",
}

// expandLigatures replaces ligature code points with their component letters.
func expandLigatures(text string) string {
	hasLigature := false
	for _, r := range text {
		if _, ok := ligatureMap[r]; ok {
			hasLigature = true
			break
		}
	}
	if !hasLigature {
		return text
	}

	var expanded []rune
	for _, r := range text {
		if expansion, ok := ligatureMap[r]; ok {
			expanded = append(expanded, []rune(expansion)...)
		} else {
			expanded = append(expanded, r)
		}
	}
	return string(expanded)
}
