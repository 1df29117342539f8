package stext

import (
	"context"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxHits is the hit limit used by callers that do not choose one.
const DefaultMaxHits = 500

// searchCheckInterval is how many start positions are tried between
// cancellation checks.
const searchCheckInterval = 1024

type unitKind uint8

const (
	unitChar unitKind = iota
	unitLineBreak
	unitBlockBreak
)

// unit is one element of the flattened search stream. Breaks carry no
// character.
type unit struct {
	kind  unitKind
	r     rune
	block int
	line  int
	char  int
}

func (u unit) isSpace() bool {
	return u.kind != unitChar || isSpaceRune(u.r)
}

// flatten lays out the page as a single stream in document order. A line
// break inside a block and a boundary between text blocks each become one
// break unit.
func (p *Page) flatten() []unit {
	stream := make([]unit, 0, p.CharCount()+len(p.Blocks))
	started := false
	for bi, block := range p.Blocks {
		if !block.HasText() {
			continue
		}
		if started {
			stream = append(stream, unit{kind: unitBlockBreak, block: bi})
		}
		started = true

		for li, line := range block.Lines {
			if li > 0 {
				stream = append(stream, unit{kind: unitLineBreak, block: bi, line: li})
			}
			for ci, ch := range line.Chars {
				stream = append(stream, unit{kind: unitChar, r: ch.Rune, block: bi, line: li, char: ci})
			}
		}
	}
	return stream
}

// token is one element of a compiled needle: a literal rune, or a run of
// whitespace that matches one or more whitespace units.
type token struct {
	r     rune
	space bool
}

func compileNeedle(needle string) []token {
	var tokens []token
	for _, r := range norm.NFC.String(needle) {
		if unicode.IsSpace(r) {
			if len(tokens) > 0 && tokens[len(tokens)-1].space {
				continue
			}
			tokens = append(tokens, token{space: true})
			continue
		}
		tokens = append(tokens, token{r: r})
	}
	return tokens
}

// Search finds needle in the page and returns one hit per line fragment of
// each match, stopping once maxHits hits have been collected.
//
// Matching is case sensitive. A run of whitespace in needle matches any run
// of spaces, line breaks and block breaks. A hyphen that ends a line may be
// skipped along with the line break, so "hyphenation" matches "hyphen-" on
// one line followed by "ation" on the next within the same block. A hyphen
// in needle joins the lines instead, so "well-known" matches "well-" followed
// by "known". Block breaks are never skipped.
func (p *Page) Search(needle string, maxHits int) ([]Hit, error) {
	return p.SearchContext(context.Background(), needle, maxHits)
}

// SearchContext is Search with cancellation.
func (p *Page) SearchContext(ctx context.Context, needle string, maxHits int) ([]Hit, error) {
	if needle == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "empty search needle")
	}
	if maxHits < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "max hits must not be negative, got %d", maxHits)
	}
	hits := []Hit{}
	if maxHits == 0 {
		return hits, nil
	}

	tokens := compileNeedle(needle)
	stream := p.flatten()
	mark := 0

	for start, tries := 0, 0; start < len(stream); tries++ {
		if tries%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "search cancelled")
			}
		}

		end := matchAt(stream, start, tokens)
		if end < 0 {
			start++
			continue
		}

		fragments := p.fragments(stream[start:end])
		if len(fragments) > 0 {
			for _, q := range fragments {
				hits = append(hits, Hit{Quad: q, Mark: mark})
				if len(hits) == maxHits {
					return hits, nil
				}
			}
			mark++
		}
		start = end
	}

	return hits, nil
}

// matchAt tries to match tokens against the stream starting at start. It
// returns the index one past the last unit consumed, or -1.
func matchAt(stream []unit, start int, tokens []token) int {
	i := start
	// Set after a hyphen matched a hyphen that ends a line: the compound
	// continues on the next line of the block without a space.
	joined := false
	for _, t := range tokens {
		if t.space {
			n := i
			for n < len(stream) && stream[n].isSpace() {
				n++
			}
			if n == i {
				return -1
			}
			i = n
			joined = false
			continue
		}

		if joined && i < len(stream) && stream[i].kind == unitLineBreak {
			i++
		}
		joined = false

		if i >= len(stream) {
			return -1
		}
		u := stream[i]
		if u.kind == unitChar && u.r == t.r {
			i++
			joined = isHyphen(u.r)
			continue
		}
		if skip := softHyphenSkip(stream, i, t.r); skip > 0 {
			i += skip + 1
			continue
		}
		return -1
	}
	return i
}

// softHyphenSkip reports how many units to skip when stream[i] is a hyphen
// ending a line and the unit after the line break is r. It returns 0 when no
// skip applies.
func softHyphenSkip(stream []unit, i int, r rune) int {
	if isHyphen(r) || i+2 >= len(stream) {
		return 0
	}
	hyphen, brk, next := stream[i], stream[i+1], stream[i+2]
	if hyphen.kind != unitChar || !isHyphen(hyphen.r) {
		return 0
	}
	if brk.kind != unitLineBreak {
		return 0
	}
	if next.kind != unitChar || next.r != r {
		return 0
	}
	return 2
}

// fragments returns one quad per physical line touched by the matched
// units, covering every matched character of that line and aligned with the
// line's reading direction.
func (p *Page) fragments(units []unit) []Quad {
	var quads []Quad
	var run []Quad
	var dir Point
	block, line := -1, -1

	emit := func() {
		if len(run) > 0 {
			quads = append(quads, AlignedQuad(dir, run...))
		}
		run = run[:0]
	}

	for _, u := range units {
		if u.kind != unitChar {
			continue
		}
		if u.block != block || u.line != line {
			emit()
			block, line = u.block, u.line
			dir = p.Blocks[block].Lines[line].Dir
		}
		run = append(run, p.Blocks[u.block].Lines[u.line].Chars[u.char].Quad)
	}
	emit()

	return quads
}
