package stext

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Estimated in-memory footprint of the model, charged against the store.
const (
	charBytes  = 160
	lineBytes  = 96
	blockBytes = 64
	pageBytes  = 64
)

// Context owns pages, stext pages and buffers and hands out Handles for
// them. All methods are safe for concurrent use. Extraction and search run
// outside the context lock, so independent pages are processed in parallel.
type Context struct {
	id     string
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	dropped bool
	used    int64
	pages   arena[*loadedPage]
	stext   arena[*Page]
	buffers arena[*Buffer]
}

// loadedPage is a registered page source. users counts extractions still
// laying it out; a page dropped while in use is closed by the last of them.
type loadedPage struct {
	src     Source
	users   int
	dropped bool
}

// NewContext creates a context. A zero StoreSize selects DefaultStoreSize.
func NewContext(cfg Config) (*Context, error) {
	if cfg.StoreSize < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "store size must not be negative, got %d", cfg.StoreSize)
	}
	if cfg.StoreSize == 0 {
		cfg.StoreSize = DefaultStoreSize
	}
	cfg.Extraction = cfg.Extraction.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.NewString()
	return &Context{
		id:     id,
		cfg:    cfg,
		logger: logger.With("context", id),
	}, nil
}

// ID returns the unique identifier the context logs under.
func (c *Context) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Drop releases everything the context owns. Handles issued by it become
// invalid and further calls fail with ErrInvalidHandle. Dropping twice is a
// no-op.
func (c *Context) Drop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dropped {
		return
	}
	c.dropped = true

	c.pages.drain(c.dropLoaded)
	c.stext.drain(nil)
	c.buffers.drain(nil)
	c.used = 0

	c.logger.Debug("context dropped")
}

// StoreUsed returns the bytes currently charged against the store.
func (c *Context) StoreUsed() int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// LoadPage registers src as a page and returns its handle. If src
// implements io.Closer it is closed when the page is dropped.
func (c *Context) LoadPage(src Source) (Handle, error) {
	if src == nil {
		return 0, errors.Wrap(ErrInvalidArgument, "nil page source")
	}

	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	return c.pages.insert(&loadedPage{src: src}, 0), nil
}

// DropPage releases a page. Stext pages built from it are unaffected. A page
// still being extracted is closed once that extraction finishes.
func (c *Context) DropPage(h Handle) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	lp, _, ok := c.pages.remove(h)
	if !ok {
		c.logger.Debug("drop of unknown page", "handle", h)
		return errors.Wrapf(ErrInvalidHandle, "page %v", h)
	}
	c.dropLoaded(lp)
	return nil
}

// dropLoaded marks lp dropped and closes it unless an extraction is using
// it. Callers hold c.mu.
func (c *Context) dropLoaded(lp *loadedPage) {
	lp.dropped = true
	if lp.users == 0 {
		closeSource(c.logger, lp.src)
	}
}

// release ends one extraction's use of lp. Callers hold c.mu.
func (c *Context) release(lp *loadedPage) {
	lp.users--
	if lp.dropped && lp.users == 0 {
		closeSource(c.logger, lp.src)
	}
}

// NewSTextPage extracts the structured text of a page. A nil opts uses the
// context's configured extraction options.
func (c *Context) NewSTextPage(ctx context.Context, page Handle, opts *Options) (Handle, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	lp, ok := c.pages.get(page)
	if !ok {
		c.mu.Unlock()
		return 0, errors.Wrapf(ErrInvalidHandle, "page %v", page)
	}
	lp.users++
	c.mu.Unlock()

	o := c.cfg.Extraction
	if opts != nil {
		o = *opts
	}

	start := time.Now()
	p, err := Build(ctx, lp.src, o)
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.release(lp)
	if err != nil {
		c.logger.Warn("text extraction failed", "page", page, "error", err)
		return 0, err
	}
	if c.dropped {
		return 0, errors.Wrap(ErrInvalidHandle, "context dropped")
	}

	size := estimateSize(p)
	if err := c.charge(size); err != nil {
		return 0, err
	}
	h := c.stext.insert(p, size)

	if c.cfg.EnableMetricsLogging {
		stats := pageStatistics(p)
		c.logger.Info("page extracted",
			"page", page,
			"stext", h,
			"duration", elapsed,
			"blocks", stats.TotalBlocks,
			"lines", stats.TotalLines,
			"characters", stats.TotalCharacters,
			"store_used", c.used,
		)
	}
	return h, nil
}

// DropSTextPage releases a stext page. Buffers made from it stay valid.
func (c *Context) DropSTextPage(h Handle) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	_, size, ok := c.stext.remove(h)
	if !ok {
		c.logger.Debug("drop of unknown stext page", "handle", h)
		return errors.Wrapf(ErrInvalidHandle, "stext page %v", h)
	}
	c.used -= size
	return nil
}

// STextPage resolves a handle to its page model. The model is immutable
// and may be read concurrently; it must not be used after the handle is
// dropped.
func (c *Context) STextPage(h Handle) (*Page, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	p, ok := c.stext.get(h)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidHandle, "stext page %v", h)
	}
	return p, nil
}

// BoundSTextPage returns the bounds of a stext page.
func (c *Context) BoundSTextPage(h Handle) (Rect, error) {
	p, err := c.STextPage(h)
	if err != nil {
		return Rect{}, err
	}
	return p.BBox, nil
}

// NewBufferFromSTextPage serialises a stext page into a new buffer. The
// buffer is owned separately and must be dropped on its own.
func (c *Context) NewBufferFromSTextPage(h Handle) (Handle, error) {
	p, err := c.STextPage(h)
	if err != nil {
		return 0, err
	}
	buf := NewBuffer(p)
	size := int64(buf.Len())

	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	if err := c.charge(size); err != nil {
		return 0, err
	}
	return c.buffers.insert(buf, size), nil
}

// BufferData returns the contents of a buffer. The slice must not be
// modified.
func (c *Context) BufferData(h Handle) ([]byte, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	buf, ok := c.buffers.get(h)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidHandle, "buffer %v", h)
	}
	return buf.Bytes(), nil
}

// DropBuffer releases a buffer.
func (c *Context) DropBuffer(h Handle) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	_, size, ok := c.buffers.remove(h)
	if !ok {
		c.logger.Debug("drop of unknown buffer", "handle", h)
		return errors.Wrapf(ErrInvalidHandle, "buffer %v", h)
	}
	c.used -= size
	return nil
}

// SearchSTextPage searches a stext page for needle. See Page.Search.
func (c *Context) SearchSTextPage(ctx context.Context, h Handle, needle string, maxHits int) ([]Hit, error) {
	p, err := c.STextPage(h)
	if err != nil {
		return nil, err
	}
	return p.SearchContext(ctx, needle, maxHits)
}

// lock acquires c.mu on a live context. A nil or dropped context fails with
// ErrInvalidHandle and leaves the lock released.
func (c *Context) lock() error {
	if c == nil {
		return errors.Wrap(ErrInvalidHandle, "nil context")
	}
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return errors.Wrap(ErrInvalidHandle, "context dropped")
	}
	return nil
}

// charge reserves size bytes of the store. Callers hold c.mu.
func (c *Context) charge(size int64) error {
	if c.used+size > c.cfg.StoreSize {
		c.logger.Warn("store limit reached", "requested", size, "used", c.used, "limit", c.cfg.StoreSize)
		return errors.Wrapf(ErrAllocationFailed, "need %d bytes, %d of %d in use", size, c.used, c.cfg.StoreSize)
	}
	c.used += size
	return nil
}

func closeSource(logger *slog.Logger, src Source) {
	closer, ok := src.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close page", "error", err)
	}
}

// estimateSize approximates the memory held by p.
func estimateSize(p *Page) int64 {
	size := int64(pageBytes)
	for _, block := range p.Blocks {
		size += blockBytes
		for _, line := range block.Lines {
			size += lineBytes + int64(len(line.Chars))*charBytes
		}
	}
	return size
}
