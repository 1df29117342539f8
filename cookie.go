package stext

import "sync/atomic"

// Cookie is a cooperative progress and abort token for long running
// extraction. A nil *Cookie is valid and never aborts.
type Cookie struct {
	aborted  atomic.Bool
	progress atomic.Int32
}

// NewCookie returns a fresh cookie.
func NewCookie() *Cookie {
	return &Cookie{}
}

// Abort asks the operation holding the cookie to stop at its next check.
func (c *Cookie) Abort() {
	if c != nil {
		c.aborted.Store(true)
	}
}

// IsAborted reports whether Abort has been called.
func (c *Cookie) IsAborted() bool {
	return c != nil && c.aborted.Load()
}

// Progress returns the current progress (0-100).
func (c *Cookie) Progress() int {
	if c == nil {
		return 0
	}
	return int(c.progress.Load())
}

// Reset clears the abort flag and progress so the cookie can be reused.
func (c *Cookie) Reset() {
	if c == nil {
		return
	}
	c.aborted.Store(false)
	c.progress.Store(0)
}

func (c *Cookie) setProgress(done, total int) {
	if c == nil || total <= 0 {
		return
	}
	c.progress.Store(int32(done * 100 / total))
}
