package stext

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/bidi"
)

const (
	// LineSeparator joins the lines of a block in plain text.
	LineSeparator = "\n"
	// BlockSeparator joins blocks in plain text, leaving a blank line.
	BlockSeparator = "\n\n"
)

// Text returns the plain text of the page. Lines are joined by a newline and
// blocks by a blank line; blocks without text are skipped. An empty page
// yields "".
func (p *Page) Text() string {
	var sb strings.Builder
	p.writeText(&sb)
	return sb.String()
}

// WriteText writes the plain text of the page to w.
func (p *Page) WriteText(w io.Writer) error {
	var buf bytes.Buffer
	p.writeText(&buf)
	if _, err := buf.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write text")
	}
	return nil
}

type stringWriter interface {
	WriteString(s string) (int, error)
	WriteRune(r rune) (int, error)
}

func (p *Page) writeText(w stringWriter) {
	first := true
	for _, block := range p.Blocks {
		if !block.HasText() {
			continue
		}
		if !first {
			w.WriteString(BlockSeparator)
		}
		first = false

		for i, line := range block.Lines {
			if i > 0 {
				w.WriteString(LineSeparator)
			}
			for _, ch := range line.Chars {
				w.WriteRune(ch.Rune)
			}
		}
	}
}

// Buffer holds a plain text serialisation. It is independent of the page it
// was produced from.
type Buffer struct {
	data []byte
}

// NewBuffer serialises p into a new Buffer.
func NewBuffer(p *Page) *Buffer {
	var buf bytes.Buffer
	p.writeText(&buf)
	return &Buffer{data: buf.Bytes()}
}

// Bytes returns the buffer contents. The slice must not be modified.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// String returns the buffer contents as a string.
func (b *Buffer) String() string {
	return string(b.data)
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

type jsonPage struct {
	BBox   jsonRect    `json:"bbox"`
	Blocks []jsonBlock `json:"blocks"`
}

type jsonRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type jsonBlock struct {
	Type  string     `json:"type"`
	BBox  jsonRect   `json:"bbox"`
	Lines []jsonLine `json:"lines,omitempty"`
}

type jsonLine struct {
	WMode    string     `json:"wmode"`
	BBox     jsonRect   `json:"bbox"`
	Baseline float64    `json:"baseline"`
	Dir      [2]float64 `json:"dir"`
	Text     string     `json:"text"`
	Chars    []jsonChar `json:"chars"`
}

type jsonChar struct {
	C         string     `json:"c"`
	Quad      [8]float64 `json:"quad"`
	Origin    [2]float64 `json:"origin"`
	Advance   float64    `json:"advance"`
	Size      float64    `json:"size"`
	Font      string     `json:"font"`
	Color     [3]float32 `json:"color"`
	Bidi      string     `json:"bidi"`
	Language  string     `json:"lang"`
	Synthetic bool       `json:"synthetic,omitempty"`
}

func toJSONRect(r Rect) jsonRect {
	return jsonRect{X: r.X0, Y: r.Y0, W: r.Width(), H: r.Height()}
}

// WriteJSON writes the page hierarchy as JSON.
func (p *Page) WriteJSON(w io.Writer) error {
	out := jsonPage{
		BBox:   toJSONRect(p.BBox),
		Blocks: make([]jsonBlock, 0, len(p.Blocks)),
	}

	for _, block := range p.Blocks {
		jb := jsonBlock{
			Type: block.Type.String(),
			BBox: toJSONRect(block.BBox),
		}
		for _, line := range block.Lines {
			jl := jsonLine{
				WMode:    line.Mode.String(),
				BBox:     toJSONRect(line.BBox),
				Baseline: line.Baseline,
				Dir:      [2]float64{line.Dir.X, line.Dir.Y},
				Text:     line.Text(),
				Chars:    make([]jsonChar, 0, len(line.Chars)),
			}
			for _, ch := range line.Chars {
				q := ch.Quad
				jl.Chars = append(jl.Chars, jsonChar{
					C:         string(ch.Rune),
					Quad:      [8]float64{q.UL.X, q.UL.Y, q.UR.X, q.UR.Y, q.LL.X, q.LL.Y, q.LR.X, q.LR.Y},
					Origin:    [2]float64{ch.Origin.X, ch.Origin.Y},
					Advance:   ch.Advance,
					Size:      ch.Size,
					Font:      ch.Font,
					Color:     ch.Color,
					Bidi:      bidiClassName(ch.Bidi),
					Language:  ch.Language.String(),
					Synthetic: ch.Synthetic,
				})
			}
			jb.Lines = append(jb.Lines, jl)
		}
		out.Blocks = append(out.Blocks, jb)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to encode page")
	}
	return nil
}

var bidiClassNames = map[bidi.Class]string{
	bidi.L:   "L",
	bidi.R:   "R",
	bidi.EN:  "EN",
	bidi.ES:  "ES",
	bidi.ET:  "ET",
	bidi.AN:  "AN",
	bidi.CS:  "CS",
	bidi.B:   "B",
	bidi.S:   "S",
	bidi.WS:  "WS",
	bidi.ON:  "ON",
	bidi.BN:  "BN",
	bidi.NSM: "NSM",
	bidi.AL:  "AL",
	bidi.LRO: "LRO",
	bidi.RLO: "RLO",
	bidi.LRE: "LRE",
	bidi.RLE: "RLE",
	bidi.PDF: "PDF",
	bidi.LRI: "LRI",
	bidi.RLI: "RLI",
	bidi.FSI: "FSI",
	bidi.PDI: "PDI",
}

// bidiClassName returns the Unicode short name of a bidi class.
func bidiClassName(c bidi.Class) string {
	if name, ok := bidiClassNames[c]; ok {
		return name
	}
	return "ON"
}
