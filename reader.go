package stext

import (
	"context"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// Letter size, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// ReaderDocument is a PDF read by the pure Go content stream parser. It
// needs no native engine but only sees text runs, not image objects.
type ReaderDocument struct {
	reader *pdf.Reader
	closer io.Closer
}

// OpenReaderDocument opens the PDF at path.
func OpenReaderDocument(path string) (*ReaderDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, errors.Wrap(asExtractionFailed(err), "failed to open PDF document")
	}
	return &ReaderDocument{reader: r, closer: f}, nil
}

// NewReaderDocument reads a PDF from r, which holds size bytes. The caller
// keeps ownership of r.
func NewReaderDocument(r io.ReaderAt, size int64) (*ReaderDocument, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(asExtractionFailed(err), "failed to read PDF document")
	}
	return &ReaderDocument{reader: reader}, nil
}

// PageCount returns the number of pages.
func (d *ReaderDocument) PageCount() int {
	return d.reader.NumPage()
}

// Page returns the page at index (0-based).
func (d *ReaderDocument) Page(index int) (Source, error) {
	if index < 0 || index >= d.PageCount() {
		return nil, errors.Wrapf(ErrInvalidArgument, "page %d out of range [0, %d)", index, d.PageCount())
	}
	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return nil, errors.Wrapf(ErrExtractionFailed, "page %d has no page object", index+1)
	}
	return &ReaderPage{page: page}, nil
}

// Close releases the underlying file, if the document owns one.
func (d *ReaderDocument) Close() error {
	if d.closer == nil {
		return nil
	}
	return errors.Wrap(d.closer.Close(), "failed to close PDF document")
}

// ReaderPage is a page of a ReaderDocument.
type ReaderPage struct {
	page pdf.Page
}

// Layout implements Source. Each text run becomes one glyph whose quad spans
// the run's advance width and a box derived from its font size.
func (p *ReaderPage) Layout(ctx context.Context) (layout *Layout, err error) {
	// The parser panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			layout = nil
			err = errors.Wrapf(ErrExtractionFailed, "content stream: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "layout cancelled")
	}

	bounds := mediaBox(p.page)
	layout = &Layout{Bounds: Rect{X1: bounds.Width(), Y1: bounds.Height()}}

	content := p.page.Content()
	layout.Glyphs = make([]Glyph, 0, len(content.Text))

	for i, t := range content.Text {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "layout cancelled")
			}
		}
		if t.S == "" {
			continue
		}

		size := t.FontSize
		if size <= 0 {
			size = 12.0
		}

		// Convert PDF coordinates (origin bottom-left) to standard (origin top-left)
		origin := Point{
			X: t.X - bounds.X0,
			Y: bounds.Y1 - t.Y,
		}
		box := Rect{
			X0: origin.X,
			Y0: origin.Y - ascentRatio*size,
			X1: origin.X + t.W,
			Y1: origin.Y + descentRatio*size,
		}

		layout.Glyphs = append(layout.Glyphs, Glyph{
			Text:    t.S,
			Quad:    box.Quad(),
			Origin:  origin,
			Advance: t.W,
			Size:    size,
			Font:    t.Font,
		})
	}

	return layout, nil
}

// mediaBox returns the page's MediaBox in PDF space, following the page
// tree for inherited boxes.
func mediaBox(page pdf.Page) Rect {
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() < 4 {
			continue
		}
		r := Rect{
			X0: box.Index(0).Float64(),
			Y0: box.Index(1).Float64(),
			X1: box.Index(2).Float64(),
			Y1: box.Index(3).Float64(),
		}
		if r.X0 > r.X1 {
			r.X0, r.X1 = r.X1, r.X0
		}
		if r.Y0 > r.Y1 {
			r.Y0, r.Y1 = r.Y1, r.Y0
		}
		return r
	}
	return Rect{X1: defaultPageWidth, Y1: defaultPageHeight}
}
