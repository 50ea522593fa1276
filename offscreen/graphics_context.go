package offscreen

import (
	"errors"
	"image"

	"github.com/jamesrr39/goutil/errorsx"
)

// ErrResourceAllocation is the cause of every error from creating or resizing a surface.
var ErrResourceAllocation = errors.New("graphics resource allocation failed")

const DefaultMaxSurfaceSize = 8192

// GraphicsContext is a headless graphics context. It owns every framebuffer created from it,
// and tracks which one is currently bound as the render target.
// It is not safe for concurrent use; it belongs to the goroutine that created it.
type GraphicsContext struct {
	maxSurfaceSize int
	bound          *Framebuffer
	allocations    int
	live           int
	closed         bool
}

func NewGraphicsContext(maxSurfaceSize int) *GraphicsContext {
	if maxSurfaceSize <= 0 {
		maxSurfaceSize = DefaultMaxSurfaceSize
	}
	return &GraphicsContext{maxSurfaceSize: maxSurfaceSize}
}

// Bound returns the current render target, or nil if no framebuffer is bound
func (c *GraphicsContext) Bound() *Framebuffer {
	return c.bound
}

// Allocations counts backing store allocations over the lifetime of the context
func (c *GraphicsContext) Allocations() int {
	return c.allocations
}

func (c *GraphicsContext) NewFramebuffer(width, height int) (*Framebuffer, errorsx.Error) {
	fb := &Framebuffer{ctx: c}
	err := fb.Resize(width, height)
	if err != nil {
		return nil, err
	}

	c.live++

	return fb, nil
}

func (c *GraphicsContext) allocate(width, height int) (*image.RGBA, errorsx.Error) {
	if c.closed {
		return nil, errorsx.Wrap(ErrResourceAllocation, "reason", "context closed")
	}

	if width <= 0 || height <= 0 || width > c.maxSurfaceSize || height > c.maxSurfaceSize {
		return nil, errorsx.Wrap(ErrResourceAllocation, "width", width, "height", height, "maxSurfaceSize", c.maxSurfaceSize)
	}

	c.allocations++

	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

// Close destroys the context. All framebuffers must have been released first.
func (c *GraphicsContext) Close() errorsx.Error {
	if c.closed {
		return nil
	}

	if c.live != 0 {
		return errorsx.Errorf("cannot close graphics context: %d framebuffer(s) still allocated", c.live)
	}

	c.bound = nil
	c.closed = true

	return nil
}
