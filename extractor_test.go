package stext

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocument serves prebuilt sources; a nil entry fails to load.
type fakeDocument struct {
	pages []Source
}

func (d *fakeDocument) PageCount() int {
	return len(d.pages)
}

func (d *fakeDocument) Page(index int) (Source, error) {
	if d.pages[index] == nil {
		return nil, errors.Errorf("page %d is corrupt", index)
	}
	return d.pages[index], nil
}

func (d *fakeDocument) Close() error {
	return nil
}

func brokenSource() Source {
	return SourceFunc(func(context.Context) (*Layout, error) {
		return nil, errors.New("unsupported content")
	})
}

func TestExtractor_FailedPagesDoNotStopDocument(t *testing.T) {
	c := newTestContext(t, DefaultConfig())

	doc := &fakeDocument{pages: []Source{
		staticSource(layoutOf(textRun("first page", 72, 100, 10))),
		brokenSource(),
		nil,
		staticSource(layoutOf(textRun("last page", 72, 100, 10))),
	}}

	results, metrics, err := NewExtractor(c).ExtractPageRange(context.Background(), doc, -1, -1)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, ErrExtractionFailed))
	assert.True(t, errors.Is(results[2].Err, ErrExtractionFailed))
	assert.NoError(t, results[3].Err)
	assert.Zero(t, results[1].STextPage)

	p, err := c.STextPage(results[3].STextPage)
	require.NoError(t, err)
	assert.Equal(t, "last page", p.Text())

	assert.Len(t, metrics.PageExtractions, 4)
	assert.True(t, metrics.PageExtractions[1].Failed)
	assert.Equal(t, 2, metrics.Statistics.TotalPages)
	assert.Equal(t, 2, metrics.Statistics.FailedPages)
	assert.Equal(t, 2, metrics.Statistics.TotalBlocks)
	assert.Equal(t, len("first page")+len("last page"), metrics.Statistics.TotalCharacters)
}

func TestExtractor_PageRange(t *testing.T) {
	c := newTestContext(t, DefaultConfig())

	var pages []Source
	for _, s := range []string{"zero", "one", "two", "three"} {
		pages = append(pages, staticSource(layoutOf(textRun(s, 72, 100, 10))))
	}
	doc := &fakeDocument{pages: pages}

	results, _, err := NewExtractor(c).ExtractPageRange(context.Background(), doc, 1, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)

	p, err := c.STextPage(results[1].STextPage)
	require.NoError(t, err)
	assert.Equal(t, "two", p.Text())

	results, _, err = NewExtractor(c).ExtractPageRange(context.Background(), doc, 2, 99)
	require.NoError(t, err)
	assert.Len(t, results, 2, "end past the last page is clamped")

	_, _, err = NewExtractor(c).ExtractPageRange(context.Background(), doc, 3, 1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	results, _, err = NewExtractor(c).ExtractPageRange(context.Background(), &fakeDocument{}, -1, -1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExtractor_ReleasesPages(t *testing.T) {
	c := newTestContext(t, DefaultConfig())

	src := &closingSource{Source: staticSource(layoutOf(textRun("closed", 72, 100, 10)))}
	doc := &fakeDocument{pages: []Source{src}}

	results, _, err := NewExtractor(c).ExtractPageRange(context.Background(), doc, 0, 0)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, src.closeCount())
}

func TestExtractor_Cancelled(t *testing.T) {
	c := newTestContext(t, DefaultConfig())
	doc := &fakeDocument{pages: []Source{staticSource(layoutOf(textRun("x", 72, 100, 10)))}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewExtractor(c).ExtractPageRange(ctx, doc, -1, -1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExtractor_DroppedContext(t *testing.T) {
	c, err := NewContext(DefaultConfig())
	require.NoError(t, err)
	c.Drop()

	src := &closingSource{Source: staticSource(layoutOf(textRun("x", 72, 100, 10)))}
	doc := &fakeDocument{pages: []Source{src}}

	_, _, err = NewExtractor(c).ExtractPageRange(context.Background(), doc, -1, -1)
	assert.True(t, errors.Is(err, ErrInvalidHandle))
	assert.Equal(t, 1, src.closeCount(), "an unregistered page is still closed")
}

func TestExtractor_MetricsLogging(t *testing.T) {
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.EnableMetricsLogging = true
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	c := newTestContext(t, cfg)

	doc := &fakeDocument{pages: []Source{
		staticSource(layoutOf(textRun("• listed item", 72, 100, 10))),
	}}

	_, metrics, err := NewExtractor(c).ExtractPageRange(context.Background(), doc, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Statistics.TotalLists)

	assert.Contains(t, logs.String(), "document processed")
	assert.Contains(t, logs.String(), "statistics.lists=1")
	assert.Contains(t, logs.String(), "page timing")
}

func TestExtractor_ContextDroppedMidPage(t *testing.T) {
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	c, err := NewContext(cfg)
	require.NoError(t, err)

	src := newBlockingSource("busy")
	doc := &fakeDocument{pages: []Source{src}}

	type outcome struct {
		results []PageResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, _, err := NewExtractor(c).ExtractPageRange(context.Background(), doc, -1, -1)
		done <- outcome{results: results, err: err}
	}()

	<-src.started
	c.Drop()
	close(src.proceed)

	out := <-done
	assert.True(t, errors.Is(out.err, ErrInvalidHandle))
	assert.Empty(t, out.results)
	assert.Equal(t, 1, src.closeCount())
	assert.Contains(t, logs.String(), "failed to release page")
}

func TestExtractor_NilContext(t *testing.T) {
	src := &closingSource{Source: staticSource(layoutOf(textRun("x", 72, 100, 10)))}
	doc := &fakeDocument{pages: []Source{src}}

	_, _, err := NewExtractor(nil).ExtractPageRange(context.Background(), doc, -1, -1)
	assert.True(t, errors.Is(err, ErrInvalidHandle))
}
