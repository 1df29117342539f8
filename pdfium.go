package stext

import (
	"context"
	"math"
	"unicode"
	"unicode/utf16"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

// PdfiumDocument is a PDF opened through a pdfium instance.
type PdfiumDocument struct {
	instance  pdfium.Pdfium
	doc       references.FPDF_DOCUMENT
	pageCount int
}

// OpenPdfiumDocument opens the PDF at path.
func OpenPdfiumDocument(instance pdfium.Pdfium, path string) (*PdfiumDocument, error) {
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		FilePath: &path,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return newPdfiumDocument(instance, doc.Document)
}

// OpenPdfiumBytes opens a PDF held in memory.
func OpenPdfiumBytes(instance pdfium.Pdfium, data []byte) (*PdfiumDocument, error) {
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return newPdfiumDocument(instance, doc.Document)
}

func newPdfiumDocument(instance pdfium.Pdfium, doc references.FPDF_DOCUMENT) (*PdfiumDocument, error) {
	pageCount, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
			Document: doc,
		})
		return nil, errors.Wrap(err, "failed to get page count")
	}

	return &PdfiumDocument{
		instance:  instance,
		doc:       doc,
		pageCount: pageCount.PageCount,
	}, nil
}

// PageCount returns the number of pages.
func (d *PdfiumDocument) PageCount() int {
	return d.pageCount
}

// Page loads the page at index (0-based). The returned source must be
// closed, which LoadPage arranges when it is registered with a Context.
func (d *PdfiumDocument) Page(index int) (Source, error) {
	if index < 0 || index >= d.pageCount {
		return nil, errors.Wrapf(ErrInvalidArgument, "page %d out of range [0, %d)", index, d.pageCount)
	}

	pageResp, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.doc,
		Index:    index,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load page")
	}

	return &PdfiumPage{instance: d.instance, page: pageResp.Page}, nil
}

// Close releases the document.
func (d *PdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	return errors.Wrap(err, "failed to close PDF document")
}

// PdfiumPage is a loaded page that reports its glyphs through pdfium's
// text API.
type PdfiumPage struct {
	instance pdfium.Pdfium
	page     references.FPDF_PAGE
}

// Close releases the page.
func (p *PdfiumPage) Close() error {
	_, err := p.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: p.page,
	})
	return errors.Wrap(err, "failed to close page")
}

// Layout implements Source.
func (p *PdfiumPage) Layout(ctx context.Context) (*Layout, error) {
	pageWidth, err := p.instance.FPDF_GetPageWidthF(&requests.FPDF_GetPageWidthF{
		Page: requests.Page{
			ByReference: &p.page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page width")
	}

	pageHeight, err := p.instance.FPDF_GetPageHeightF(&requests.FPDF_GetPageHeightF{
		Page: requests.Page{
			ByReference: &p.page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page height")
	}

	layout := &Layout{
		Bounds: Rect{X1: float64(pageWidth.PageWidth), Y1: float64(pageHeight.PageHeight)},
	}

	textPage, err := p.instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
		Page: requests.Page{
			ByReference: &p.page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load text page")
	}
	defer p.instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
		TextPage: textPage.TextPage,
	})

	charCount, err := p.instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
		TextPage: textPage.TextPage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count characters")
	}

	layout.Glyphs, err = p.glyphs(ctx, textPage.TextPage, charCount.Count, layout.Bounds.Y1)
	if err != nil {
		return nil, err
	}

	// Image regions are optional: a page whose objects cannot be walked
	// still has text.
	regions, err := p.imageRegions(layout.Bounds.Y1)
	if err == nil {
		layout.Images = placeImages(regions, layout.Glyphs)
	}

	return layout, nil
}

// glyphs reads every character of the text page in content order.
func (p *PdfiumPage) glyphs(ctx context.Context, textPage references.FPDF_TEXTPAGE, count int, pageHeight float64) ([]Glyph, error) {
	glyphs := make([]Glyph, 0, count)

	for i := 0; i < count; i++ {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "layout cancelled")
			}
		}

		unicodeRes, err := p.instance.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil || unicodeRes.Unicode == 0 {
			continue
		}
		r := rune(unicodeRes.Unicode)

		// Characters outside the BMP arrive as two UTF-16 units.
		first := i
		if utf16.IsSurrogate(r) && i+1 < count {
			low, err := p.instance.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
				TextPage: textPage,
				Index:    i + 1,
			})
			if err == nil {
				if decoded := utf16.DecodeRune(r, rune(low.Unicode)); decoded != unicode.ReplacementChar {
					r = decoded
					i++
				}
			}
		}

		// Line breaks generated by pdfium are layout, not content.
		if r == '\r' || r == '\n' {
			continue
		}

		g, ok := p.glyph(textPage, first, r, pageHeight)
		if !ok {
			continue
		}
		glyphs = append(glyphs, g)
	}

	return glyphs, nil
}

// glyph collects the placement and style of the character at index.
func (p *PdfiumPage) glyph(textPage references.FPDF_TEXTPAGE, index int, r rune, pageHeight float64) (Glyph, bool) {
	charBox, err := p.instance.FPDFText_GetCharBox(&requests.FPDFText_GetCharBox{
		TextPage: textPage,
		Index:    index,
	})
	if err != nil {
		return Glyph{}, false
	}

	// Convert PDF coordinates (origin bottom-left) to standard (origin top-left)
	box := Rect{
		X0: charBox.Left,
		Y0: pageHeight - charBox.Top,
		X1: charBox.Right,
		Y1: pageHeight - charBox.Bottom,
	}

	fontSizeVal := box.Height()
	if fontSize, err := p.instance.FPDFText_GetFontSize(&requests.FPDFText_GetFontSize{
		TextPage: textPage,
		Index:    index,
	}); err == nil && fontSize.FontSize > 0 {
		fontSizeVal = fontSize.FontSize
	}
	if fontSizeVal <= 0 {
		fontSizeVal = 12.0
	}

	fontNameVal := ""
	if fontInfo, err := p.instance.FPDFText_GetFontInfo(&requests.FPDFText_GetFontInfo{
		TextPage: textPage,
		Index:    index,
	}); err == nil {
		fontNameVal = fontInfo.FontName
	}

	var color [3]float32
	if fillColor, err := p.instance.FPDFText_GetFillColor(&requests.FPDFText_GetFillColor{
		TextPage: textPage,
		Index:    index,
	}); err == nil {
		color = [3]float32{
			float32(fillColor.R) / 255,
			float32(fillColor.G) / 255,
			float32(fillColor.B) / 255,
		}
	}

	angleVal := 0.0
	if angle, err := p.instance.FPDFText_GetCharAngle(&requests.FPDFText_GetCharAngle{
		TextPage: textPage,
		Index:    index,
	}); err == nil {
		angleVal = float64(angle.CharAngle)
	}

	origin := Point{X: box.X0, Y: box.Y1 - 0.2*fontSizeVal}
	if o, err := p.instance.FPDFText_GetCharOrigin(&requests.FPDFText_GetCharOrigin{
		TextPage: textPage,
		Index:    index,
	}); err == nil {
		origin = Point{X: o.X, Y: pageHeight - o.Y}
	}

	// pdfium angles are counter-clockwise in y-up space, radians.
	dir := Point{X: math.Cos(angleVal), Y: -math.Sin(angleVal)}

	quad := box.Quad()
	advance := box.Width()
	if math.Abs(angleVal) > 1e-3 {
		advance = unrotatedWidth(box, fontSizeVal, angleVal)
		quad = rotatedGlyphQuad(origin, advance, fontSizeVal, -angleVal*180/math.Pi)
	}

	return Glyph{
		Text:    string(r),
		Quad:    quad,
		Origin:  origin,
		Advance: advance,
		Size:    fontSizeVal,
		Font:    fontNameVal,
		Color:   color,
		Dir:     dir,
	}, true
}

// unrotatedWidth recovers the advance of a glyph of the given height from
// the axis-aligned box of its rotated outline.
func unrotatedWidth(box Rect, height, angle float64) float64 {
	c, s := math.Abs(math.Cos(angle)), math.Abs(math.Sin(angle))
	var w float64
	if c >= s {
		w = (box.Width() - height*s) / c
	} else {
		w = (box.Height() - height*c) / s
	}
	return math.Max(w, 0)
}

// rotatedGlyphQuad builds the quad of a glyph standing on origin, rotated
// by deg degrees in device space.
func rotatedGlyphQuad(origin Point, advance, size, deg float64) Quad {
	q := Rect{
		X0: origin.X,
		Y0: origin.Y - ascentRatio*size,
		X1: origin.X + advance,
		Y1: origin.Y + descentRatio*size,
	}.Quad()
	return RotateAbout(origin, deg).TransformQuad(q)
}

// imageRegions returns the bounds of the page's image objects.
func (p *PdfiumPage) imageRegions(pageHeight float64) ([]Rect, error) {
	countResp, err := p.instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{
		Page: requests.Page{
			ByReference: &p.page,
		},
	})
	if err != nil {
		return nil, err
	}

	var regions []Rect

	for i := 0; i < countResp.Count; i++ {
		objResp, err := p.instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page: requests.Page{
				ByReference: &p.page,
			},
			Index: i,
		})
		if err != nil {
			continue
		}

		typeResp, err := p.instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: objResp.PageObject,
		})
		if err != nil || typeResp.Type != enums.FPDF_PAGEOBJ_IMAGE {
			continue
		}

		boundsResp, err := p.instance.FPDFPageObj_GetBounds(&requests.FPDFPageObj_GetBounds{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			continue
		}

		// Convert PDF coordinates (origin bottom-left) to standard (origin top-left)
		region := Rect{
			X0: float64(boundsResp.Left),
			Y0: pageHeight - float64(boundsResp.Top),
			X1: float64(boundsResp.Right),
			Y1: pageHeight - float64(boundsResp.Bottom),
		}
		if !region.IsEmpty() {
			regions = append(regions, region)
		}
	}

	return regions, nil
}

// placeImages positions each region before the first glyph whose baseline
// lies below the region's top edge, so images interleave with text in
// reading order.
func placeImages(regions []Rect, glyphs []Glyph) []Image {
	images := make([]Image, 0, len(regions))
	for _, r := range regions {
		before := len(glyphs)
		for i, g := range glyphs {
			if g.Origin.Y > r.Y0 {
				before = i
				break
			}
		}
		images = append(images, Image{BBox: r, Before: before})
	}
	return images
}
