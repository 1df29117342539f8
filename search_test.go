package stext

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sameBlock lays out lines 12pt apart so they group into one block.
func sameBlock(lines ...string) [][]Glyph {
	runs := make([][]Glyph, len(lines))
	for i, l := range lines {
		runs[i] = textRun(l, 72, 100+float64(i)*12, 10)
	}
	return runs
}

// separateBlocks lays out lines 100pt apart so each becomes its own block.
func separateBlocks(lines ...string) [][]Glyph {
	runs := make([][]Glyph, len(lines))
	for i, l := range lines {
		runs[i] = textRun(l, 72, 100+float64(i)*100, 10)
	}
	return runs
}

func TestSearch_LiteralMatch(t *testing.T) {
	page := buildRuns(t, textRun("Hello World", 72, 100, 10))

	hits, err := page.Search("World", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// Characters 6 through 10, 5pt each, starting at x=72.
	r := hits[0].Quad.Rect()
	assert.InDelta(t, 72.0+6*5, r.X0, 1e-9)
	assert.InDelta(t, 72.0+11*5, r.X1, 1e-9)
	assert.InDelta(t, 92.0, r.Y0, 1e-9)
	assert.InDelta(t, 102.0, r.Y1, 1e-9)
	assert.Equal(t, 0, hits[0].Mark)
}

func TestSearch_NoMatch(t *testing.T) {
	page := buildRuns(t, textRun("Hello World", 72, 100, 10))

	hits, err := page.Search("zzzz_not_present", 10)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearch_InvalidArguments(t *testing.T) {
	page := buildRuns(t, textRun("Hello World", 72, 100, 10))

	_, err := page.Search("", 10)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = page.Search("Hello", -1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	hits, err := page.Search("Hello", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_Truncation(t *testing.T) {
	line := strings.TrimSpace(strings.Repeat("the ", 5))
	page := buildRuns(t, sameBlock(line, line, line, line)...)
	require.Len(t, page.Blocks, 1)

	hits, err := page.Search("the", 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	for i, hit := range hits {
		assert.Equal(t, i, hit.Mark)
	}

	all, err := page.Search("the", 100)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestSearch_TruncationSplitsMatch(t *testing.T) {
	page := buildRuns(t, sameBlock("one PDF", "file two")...)

	hits, err := page.Search("PDF file", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1, "the first fragment alone fills the limit")
}

func TestSearch_MultiLineMatch(t *testing.T) {
	page := buildRuns(t, sameBlock("PDF", "file")...)
	require.Len(t, page.Blocks, 1)
	require.Equal(t, "PDF\nfile", page.Text())

	hits, err := page.Search("PDF file", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, hits[0].Mark, hits[1].Mark)

	first := hits[0].Quad.Rect()
	assert.InDelta(t, 72.0, first.X0, 1e-9)
	assert.InDelta(t, 72.0+3*5, first.X1, 1e-9)
	assert.InDelta(t, 92.0, first.Y0, 1e-9)

	second := hits[1].Quad.Rect()
	assert.InDelta(t, 72.0, second.X0, 1e-9)
	assert.InDelta(t, 72.0+4*5, second.X1, 1e-9)
	assert.InDelta(t, 104.0, second.Y0, 1e-9)

	hits, err = page.Search("PDFfile", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "line breaks are not elided")
}

func TestSearch_CrossBlockSeparation(t *testing.T) {
	page := buildRuns(t, separateBlocks("PDF", "file")...)
	require.Len(t, page.Blocks, 2)
	require.Equal(t, "PDF\n\nfile", page.Text())

	hits, err := page.Search("PDFfile", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = page.Search("PDF file", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Mark)
	assert.Equal(t, 0, hits[1].Mark)
}

func TestSearch_WhitespaceRuns(t *testing.T) {
	page := buildRuns(t, textRun("portable  document format", 72, 100, 10))

	tests := []struct {
		name   string
		needle string
		want   int
	}{
		{"single space", "portable document", 1},
		{"several spaces", "document    format", 1},
		{"tab", "document\tformat", 1},
		{"no space", "portabledocument", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := page.Search(tt.needle, 10)
			require.NoError(t, err)
			assert.Len(t, hits, tt.want)
		})
	}
}

func TestSearch_SoftHyphenation(t *testing.T) {
	page := buildRuns(t, sameBlock("a hyphen-", "ation test")...)
	require.Len(t, page.Blocks, 1)

	hits, err := page.Search("hyphenation", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Mark, hits[1].Mark)

	first := hits[0].Quad.Rect()
	assert.InDelta(t, 72.0+2*5, first.X0, 1e-9)
	assert.InDelta(t, 72.0+9*5, first.X1, 1e-9, "the hyphen is part of the fragment")

	second := hits[1].Quad.Rect()
	assert.InDelta(t, 72.0+5*5, second.X1, 1e-9)

	// The literal text still matches as written.
	hits, err = page.Search("hyphen- ation", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_HyphenatedCompound(t *testing.T) {
	page := buildRuns(t, sameBlock("a well-", "known fact")...)

	for _, needle := range []string{"well-known", "wellknown", "well- known"} {
		hits, err := page.Search(needle, 10)
		require.NoError(t, err)
		require.Len(t, hits, 2, needle)
		assert.Equal(t, 0, hits[0].Mark)
		assert.Equal(t, 0, hits[1].Mark)

		first := hits[0].Quad.Rect()
		assert.InDelta(t, 72.0+2*5, first.X0, 1e-9, needle)
		assert.InDelta(t, 72.0+7*5, first.X1, 1e-9, needle)
		second := hits[1].Quad.Rect()
		assert.InDelta(t, 72.0, second.X0, 1e-9, needle)
		assert.InDelta(t, 72.0+5*5, second.X1, 1e-9, needle)
	}

	hits, err := page.Search("well-known fact", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_HyphenNotSkippedAcrossBlocks(t *testing.T) {
	page := buildRuns(t, separateBlocks("hyphen-", "ation")...)
	require.Len(t, page.Blocks, 2)

	hits, err := page.Search("hyphenation", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_CaseSensitive(t *testing.T) {
	page := buildRuns(t, textRun("Go go GO", 72, 100, 10))

	hits, err := page.Search("go", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 72.0+3*5, hits[0].Quad.Rect().X0, 1e-9)
}

func TestSearch_NonOverlapping(t *testing.T) {
	page := buildRuns(t, textRun("aaaa", 72, 100, 10))

	hits, err := page.Search("aa", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Mark)
	assert.Equal(t, 1, hits[1].Mark)
	assert.InDelta(t, 72.0, hits[0].Quad.Rect().X0, 1e-9)
	assert.InDelta(t, 72.0+2*5, hits[1].Quad.Rect().X0, 1e-9)
}

func TestSearch_NormalisesNeedle(t *testing.T) {
	page := buildRuns(t, textRun("caf\u00e9 au lait", 72, 100, 10))

	hits, err := page.Search("cafe\u0301", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_SkipsImageBlocks(t *testing.T) {
	first := textRun("before", 72, 100, 10)
	layout := layoutOf(first, textRun("after", 72, 400, 10))
	layout.Images = []Image{{BBox: Rect{X0: 72, Y0: 120, X1: 300, Y1: 380}, Before: len(first)}}

	page := buildLayout(t, layout)
	require.Len(t, page.Blocks, 3)

	hits, err := page.Search("before after", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_Cancelled(t *testing.T) {
	page := buildRuns(t, textRun("Hello World", 72, 100, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := page.SearchContext(ctx, "World", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// cancelAfterFirstCheck reports cancellation from its second Err call on.
type cancelAfterFirstCheck struct {
	context.Context
	calls int
}

func (c *cancelAfterFirstCheck) Err() error {
	c.calls++
	if c.calls > 1 {
		return context.Canceled
	}
	return nil
}

func TestSearch_CancelledBetweenMatches(t *testing.T) {
	// Every match advances three units, so match starts rarely land on a
	// multiple of the check interval.
	page := buildRuns(t, textRun(strings.Repeat("abc", 1000), 0, 100, 10))

	ctx := &cancelAfterFirstCheck{Context: context.Background()}
	_, err := page.SearchContext(ctx, "abc", 5000)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Greater(t, ctx.calls, 1)
}

func TestSearch_Concurrent(t *testing.T) {
	line := strings.TrimSpace(strings.Repeat("needle hay ", 6))
	page := buildRuns(t, sameBlock(line, line, line)...)

	want, err := page.Search("needle", 100)
	require.NoError(t, err)
	require.Len(t, want, 18)

	var wg sync.WaitGroup
	results := make([][]Hit, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hits, err := page.Search("needle", 100)
			if err == nil {
				results[i] = hits
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestSearch_RightToLeftLine(t *testing.T) {
	for name, dir := range map[string]Point{
		"engine direction": {},
		"leftward":         {X: -1},
	} {
		t.Run(name, func(t *testing.T) {
			page := buildRuns(t, rtlRun("שלום", 200, 100, 10, 6, dir))

			hits, err := page.Search("שלום", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)

			r := hits[0].Quad.Rect()
			assert.InDelta(t, 176.0, r.X0, 1e-9, "leftmost glyph is covered")
			assert.InDelta(t, 200.0, r.X1, 1e-9, "rightmost glyph is covered")
			assert.InDelta(t, 92.0, r.Y0, 1e-9)
			assert.InDelta(t, 102.0, r.Y1, 1e-9)

			hits, err = page.Search("לו", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			r = hits[0].Quad.Rect()
			assert.InDelta(t, 182.0, r.X0, 1e-9)
			assert.InDelta(t, 194.0, r.X1, 1e-9)
		})
	}

	page := buildRuns(t,
		rtlRun("שלום", 200, 100, 10, 6, Point{}),
		rtlRun("עולם", 172, 100, 10, 6, Point{}),
	)
	hits, err := page.Search("שלום עולם", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	r := hits[0].Quad.Rect()
	assert.InDelta(t, 148.0, r.X0, 1e-9)
	assert.InDelta(t, 200.0, r.X1, 1e-9)
}

func TestSearch_VerticalLine(t *testing.T) {
	var glyphs []Glyph
	for i, r := range "縦書き" {
		y := 100 + float64(i)*10
		glyphs = append(glyphs, Glyph{
			Text:     string(r),
			Quad:     Rect{X0: 300, Y0: y, X1: 310, Y1: y + 10}.Quad(),
			Origin:   Point{X: 305, Y: y},
			Advance:  10,
			Size:     10,
			Vertical: true,
		})
	}
	page := buildRuns(t, glyphs)

	hits, err := page.Search("書き", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// The quad is the glyph column, not a skewed parallelogram.
	q := hits[0].Quad
	assert.Equal(t, Rect{X0: 300, Y0: 110, X1: 310, Y1: 130}, q.Rect())
	assert.InDelta(t, q.UL.Y, q.LL.Y, 1e-9)
	assert.InDelta(t, q.UR.Y, q.LR.Y, 1e-9)
	assert.InDelta(t, q.UL.X, q.UR.X, 1e-9)
}
