package stext

import (
	"math"
	"slices"
	"unicode"

	"golang.org/x/text/unicode/bidi"
)

// directionTolerance is the minimum cosine between two reading directions
// for glyphs to share a line.
const directionTolerance = 0.95

// lineState accumulates the characters of the line being built.
type lineState struct {
	chars      []Character
	dir        Point
	vertical   bool
	lastOrigin Point
	pen        Point // Where the next glyph is expected to start
	lastSize   float64

	// reverse is set once a right-to-left run has been laid out against
	// dir, each glyph to the left of the one before it.
	reverse bool
}

// addGlyph places g on the current line or starts a new one.
func (b *builder) addGlyph(g Glyph) {
	dir := glyphDirection(g)
	chars := b.expandGlyph(g, dir)
	if len(chars) == 0 {
		return
	}

	// Marks attach to whatever precedes them on the line.
	if b.line != nil && isMark(chars[0].Rune) {
		b.line.appendChars(chars)
		return
	}

	whitespace := allSpace(chars)
	back := b.line != nil && b.line.backward(g, chars[0])

	if b.line != nil && b.startsNewLine(g, dir, back) {
		if whitespace {
			return
		}
		b.flushLine()
	}

	if b.line == nil {
		// Whitespace never opens a line.
		if whitespace {
			return
		}
		b.line = &lineState{dir: dir, vertical: g.Vertical}
		back = false
	} else if !b.opts.PreserveSpacing && !whitespace {
		b.maybeInsertSpace(g, dir, chars[0], back)
	}
	if back {
		b.line.reverse = true
	}

	b.line.appendChars(chars)
	b.line.lastOrigin = g.Origin
	b.line.pen = Point{X: g.Origin.X + dir.X*g.Advance, Y: g.Origin.Y + dir.Y*g.Advance}
	b.line.lastSize = g.Size
}

// startsNewLine applies the line-splitting rules: a change of writing mode or
// direction, a baseline shift beyond the tolerance, or a jump backward or far
// forward along the reading direction. For a glyph continuing a right-to-left
// run (back), the gap is measured from its trailing edge to the previous
// glyph instead.
func (b *builder) startsNewLine(g Glyph, dir Point, back bool) bool {
	l := b.line
	if g.Vertical != l.vertical {
		return true
	}
	if dot(dir, l.dir) < directionTolerance {
		return true
	}

	size := math.Max(math.Max(g.Size, l.lastSize), 1)

	// Perpendicular distance between this origin and the previous one.
	d := sub(g.Origin, l.lastOrigin)
	perp := math.Abs(d.X*l.dir.Y - d.Y*l.dir.X)
	if perp > b.opts.LineTolerance*size {
		return true
	}

	along := dot(sub(g.Origin, l.pen), l.dir)
	if back {
		along = l.backGap(g, dir)
	}
	if along < -size || along > b.opts.ColumnGap*size {
		return true
	}
	return false
}

// backward reports whether g continues a right-to-left run stored in
// logical order but placed leftward along the line direction.
func (l *lineState) backward(g Glyph, first Character) bool {
	if dot(sub(g.Origin, l.lastOrigin), l.dir) >= 0 {
		return false
	}
	if l.reverse {
		return first.Bidi != bidi.L
	}
	return isStrongRTL(first.Bidi) && l.endsRTL()
}

// backGap is the distance from the trailing edge of g to the origin of the
// previous glyph along the line direction.
func (l *lineState) backGap(g Glyph, dir Point) float64 {
	end := Point{X: g.Origin.X + dir.X*g.Advance, Y: g.Origin.Y + dir.Y*g.Advance}
	return dot(sub(l.lastOrigin, end), l.dir)
}

// endsRTL reports whether the last non-space character is strongly
// right-to-left.
func (l *lineState) endsRTL() bool {
	for i := len(l.chars) - 1; i >= 0; i-- {
		if !l.chars[i].IsSpace() {
			return isStrongRTL(l.chars[i].Bidi)
		}
	}
	return false
}

func isStrongRTL(c bidi.Class) bool {
	return c == bidi.R || c == bidi.AL
}

// maybeInsertSpace adds a synthetic space when the gap before next is wider
// than the space threshold and the line does not already end in whitespace.
// The space covers the gap between the two glyphs, which lies to the left of
// last when back is set.
func (b *builder) maybeInsertSpace(g Glyph, dir Point, next Character, back bool) {
	l := b.line
	last := l.chars[len(l.chars)-1]
	if last.IsSpace() {
		return
	}

	size := math.Max(math.Max(g.Size, l.lastSize), 1)
	gap := dot(sub(g.Origin, l.pen), dir)
	if back {
		gap = l.backGap(g, dir)
	}
	if gap <= b.opts.SpaceGap*size {
		return
	}

	perp := lineProgression(dir)
	lastLo, lastHi := last.Quad.extent(dir)
	nextLo, nextHi := next.Quad.extent(dir)
	u0, u1 := lastHi, nextLo
	origin := l.pen
	if back {
		u0, u1 = nextHi, lastLo
		origin = Point{X: g.Origin.X + dir.X*g.Advance, Y: g.Origin.Y + dir.Y*g.Advance}
	}
	u1 = math.Max(u0, u1)
	v0, v1 := last.Quad.extent(perp)
	lo, hi := next.Quad.extent(perp)
	v0, v1 = math.Min(v0, lo), math.Max(v1, hi)

	l.chars = append(l.chars, Character{
		Rune:      ' ',
		Quad:      orientedQuad(dir, perp, u0, u1, v0, v1),
		Size:      last.Size,
		Font:      last.Font,
		Color:     last.Color,
		Origin:    origin,
		Advance:   gap,
		Bidi:      bidiClass(' '),
		Language:  last.Language,
		Synthetic: true,
	})
}

// appendChars adds chars to the line, composing combining marks with the
// preceding character where NFC allows.
func (l *lineState) appendChars(chars []Character) {
	for _, ch := range chars {
		if isMark(ch.Rune) && len(l.chars) > 0 {
			if composeMark(&l.chars[len(l.chars)-1], ch) {
				continue
			}
		}
		l.chars = append(l.chars, ch)
	}
}

// finish converts the accumulated state into a Line. Trailing whitespace is
// dropped; a line left without characters is discarded.
func (l *lineState) finish() (Line, bool) {
	chars := l.chars
	for len(chars) > 0 && chars[len(chars)-1].IsSpace() {
		chars = chars[:len(chars)-1]
	}
	if len(chars) == 0 {
		return Line{}, false
	}

	var bbox Rect
	var baseline float64
	mode := l.writingMode(chars)
	for _, ch := range chars {
		bbox = bbox.Union(ch.Quad.Rect())
		if mode.IsVertical() {
			baseline += ch.Origin.X
		} else {
			baseline += ch.Origin.Y
		}
	}

	return Line{
		Mode:     mode,
		BBox:     bbox,
		Baseline: baseline / float64(len(chars)),
		Dir:      l.dir,
		Chars:    chars,
	}, true
}

// writingMode derives the line's mode from its direction, then flags
// horizontal lines dominated by right-to-left scripts. Characters are never
// reordered.
func (l *lineState) writingMode(chars []Character) WritingMode {
	if l.vertical {
		if l.dir.Y >= 0 {
			return VerticalTTB
		}
		return VerticalBTT
	}

	mode := inferWritingMode(l.dir)
	if mode == HorizontalLTR && rtlDominant(chars) {
		return HorizontalRTL
	}
	return mode
}

// rtlDominant reports whether strong right-to-left characters outnumber
// strong left-to-right ones.
func rtlDominant(chars []Character) bool {
	var rtl, ltr int
	for _, ch := range chars {
		switch ch.Bidi {
		case bidi.R, bidi.AL:
			rtl++
		case bidi.L:
			ltr++
		}
	}
	return rtl > ltr
}

func allSpace(chars []Character) bool {
	for _, ch := range chars {
		if !ch.IsSpace() {
			return false
		}
	}
	return true
}

// groupLinesIntoBlocks groups consecutive lines into blocks using adaptive spacing.
func groupLinesIntoBlocks(lines []Line, opts Options) []Block {
	if len(lines) == 0 {
		return nil
	}

	threshold := calculateDynamicThreshold(lines, opts.BlockGap)

	var blocks []Block
	current := []Line{lines[0]}
	blockBox := lines[0].BBox

	for _, line := range lines[1:] {
		prev := current[len(current)-1]
		if startsNewBlock(prev, line, blockBox, current, threshold) {
			blocks = append(blocks, newTextBlock(current, blockBox))
			current = []Line{line}
			blockBox = line.BBox
			continue
		}
		current = append(current, line)
		blockBox = blockBox.Union(line.BBox)
	}
	blocks = append(blocks, newTextBlock(current, blockBox))

	return blocks
}

// startsNewBlock decides whether line continues the block ending with prev.
func startsNewBlock(prev, line Line, blockBox Rect, block []Line, threshold float64) bool {
	if line.Mode != prev.Mode {
		return true
	}

	avgFontSize := getAverageFontSize(block)
	if avgFontSize == 0 {
		avgFontSize = 12.0
	}

	// Significant font size change
	fontSizeRatio := getLineFontSize(line) / avgFontSize
	if fontSizeRatio < 0.8 || fontSizeRatio > 1.2 {
		return true
	}

	// Lines advance perpendicular to the reading direction.
	perp := lineProgression(prev.Dir)
	prevStart, prevEnd := project(prev.BBox, perp)
	lineStart, lineEnd := project(line.BBox, perp)
	if lineEnd < prevStart {
		// Line sits before the previous one, e.g. the top of a new column.
		return true
	}
	gap := lineStart - prevEnd
	if gap/avgFontSize > threshold {
		return true
	}

	// Lines must overlap along the reading direction.
	blockStart, blockEnd := project(blockBox, prev.Dir)
	start, end := project(line.BBox, prev.Dir)
	return end < blockStart || start > blockEnd
}

// lineProgression returns the direction successive lines advance in for a
// reading direction dir: down the page for left-to-right text, leftward for
// top-to-bottom columns.
func lineProgression(dir Point) Point {
	return Point{X: -dir.Y, Y: dir.X}
}

// project returns the extent of r along axis.
func project(r Rect, axis Point) (float64, float64) {
	return r.Quad().extent(axis)
}

// calculateDynamicThreshold calculates adaptive block spacing threshold
func calculateDynamicThreshold(lines []Line, fallback float64) float64 {
	if len(lines) < 3 {
		return fallback
	}

	var gaps []float64
	var fontSizes []float64

	for i := 0; i < len(lines)-1; i++ {
		if lines[i].Mode != lines[i+1].Mode {
			continue
		}
		perp := lineProgression(lines[i].Dir)
		_, end := project(lines[i].BBox, perp)
		start, _ := project(lines[i+1].BBox, perp)
		gaps = append(gaps, start-end)
		fontSizes = append(fontSizes, getLineFontSize(lines[i]))
	}

	if len(gaps) == 0 {
		return fallback
	}

	medianGap := calculateMedian(gaps)
	stdDev := calculateStdDev(gaps)
	medianFontSize := calculateMedian(fontSizes)

	if medianFontSize == 0 {
		medianFontSize = 12.0
	}

	// Block break threshold: median + 1.5 * stdDev, normalized by font size
	threshold := (medianGap + 1.5*stdDev) / medianFontSize

	// Clamp to reasonable bounds (0.6x to 1.5x font size)
	return clamp(threshold, 0.6, 1.5)
}

// getLineFontSize returns the average font size of a line.
func getLineFontSize(line Line) float64 {
	if len(line.Chars) == 0 {
		return 0
	}
	var total float64
	for _, ch := range line.Chars {
		total += ch.Size
	}
	return total / float64(len(line.Chars))
}

// getAverageFontSize calculates the average font size in a set of lines.
func getAverageFontSize(lines []Line) float64 {
	var sizes []float64
	for _, line := range lines {
		if s := getLineFontSize(line); s > 0 {
			sizes = append(sizes, s)
		}
	}
	return average(sizes)
}

func newTextBlock(lines []Line, box Rect) Block {
	block := Block{
		Type:  BlockText,
		BBox:  box,
		Lines: lines,
	}
	if isListMarker(lines[0]) {
		block.Type = BlockList
	}
	return block
}

// listBullets are the characters that open a bulleted list item.
var listBullets = []rune{'•', '◦', '▪', '▫', '–', '-', '*', '→'}

// isListMarker checks if the line opens with a list marker: a bullet, or a
// number followed by a period or parenthesis.
func isListMarker(line Line) bool {
	var word []rune
	for _, ch := range line.Chars {
		if ch.IsSpace() {
			break
		}
		word = append(word, ch.Rune)
	}
	if len(word) == 0 || len(word) == len(line.Chars) {
		// A lone token is not an item: there is nothing after the marker.
		return false
	}

	if len(word) == 1 && slices.Contains(listBullets, word[0]) {
		return true
	}

	if len(word) >= 2 {
		last := word[len(word)-1]
		if last != '.' && last != ')' {
			return false
		}
		for _, r := range word[:len(word)-1] {
			if !unicode.IsDigit(r) {
				return false
			}
		}
		return true
	}

	return false
}
