package stext

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Document is an opened PDF that yields one Source per page. Sources that
// implement io.Closer are closed by the Context once their page is dropped.
type Document interface {
	PageCount() int
	Page(index int) (Source, error)
	Close() error
}

// PageResult is the outcome of extracting one page. Err is set when the
// page's text is unavailable; STextPage is then zero.
type PageResult struct {
	Index     int
	STextPage Handle
	Err       error
}

// Extractor builds stext pages for ranges of a document inside a Context.
type Extractor struct {
	ctx *Context
}

// NewExtractor creates an extractor that registers its pages with c.
func NewExtractor(c *Context) *Extractor {
	return &Extractor{ctx: c}
}

// ExtractPageRange extracts pages startPage..endPage (0-based, inclusive).
// A negative or out of range endPage means the last page. A page that fails
// is reported in its PageResult and does not stop the others; only
// cancellation, a dropped context or an invalid range fail the whole call.
func (e *Extractor) ExtractPageRange(ctx context.Context, doc Document, startPage, endPage int) ([]PageResult, ProcessingMetrics, error) {
	if e.ctx == nil {
		return nil, ProcessingMetrics{}, errors.Wrap(ErrInvalidHandle, "nil context")
	}
	startTime := time.Now()

	pageCount := doc.PageCount()
	if pageCount == 0 {
		return nil, ProcessingMetrics{}, nil
	}

	// Validate range
	if startPage < 0 {
		startPage = 0
	}
	if endPage < 0 || endPage >= pageCount {
		endPage = pageCount - 1
	}
	if startPage > endPage {
		return nil, ProcessingMetrics{}, errors.Wrapf(ErrInvalidArgument, "invalid page range %d-%d", startPage+1, endPage+1)
	}

	results := make([]PageResult, 0, endPage-startPage+1)
	var pageMetrics []PageMetrics
	var stats DocumentStatistics

	for i := startPage; i <= endPage; i++ {
		if err := ctx.Err(); err != nil {
			return results, ProcessingMetrics{}, errors.Wrap(err, "extraction cancelled")
		}

		pageStart := time.Now()
		h, err := e.extractPage(ctx, doc, i)
		pageDuration := time.Since(pageStart)

		if errors.Is(err, ErrInvalidHandle) {
			return results, ProcessingMetrics{}, err
		}

		results = append(results, PageResult{Index: i, STextPage: h, Err: err})
		pageMetrics = append(pageMetrics, PageMetrics{
			PageNumber: i + 1,
			Duration:   pageDuration,
			Failed:     err != nil,
		})

		if err != nil {
			stats.FailedPages++
			e.ctx.logger.Warn("page text unavailable", "page", i+1, "error", err)
			continue
		}
		if p, err := e.ctx.STextPage(h); err == nil {
			stats.add(pageStatistics(p))
		}
	}

	metrics := ProcessingMetrics{
		TotalTime:       time.Since(startTime),
		PageExtractions: pageMetrics,
		Statistics:      stats,
	}
	if e.ctx.cfg.EnableMetricsLogging {
		logProcessingMetrics(e.ctx.logger, metrics)
	}

	return results, metrics, nil
}

// extractPage loads, extracts and releases a single page, keeping only the
// stext page.
func (e *Extractor) extractPage(ctx context.Context, doc Document, index int) (Handle, error) {
	src, err := doc.Page(index)
	if err != nil {
		return 0, errors.Wrapf(asExtractionFailed(err), "failed to load page %d", index+1)
	}

	page, err := e.ctx.LoadPage(src)
	if err != nil {
		closeSource(e.ctx.logger, src)
		return 0, err
	}
	defer func() {
		if err := e.ctx.DropPage(page); err != nil {
			e.ctx.logger.Warn("failed to release page", "page", index+1, "error", err)
		}
	}()

	h, err := e.ctx.NewSTextPage(ctx, page, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to extract page %d", index+1)
	}
	return h, nil
}
