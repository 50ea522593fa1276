package offscreen

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/llgcode/draw2d/draw2dimg"
)

// Framebuffer is an off-screen render target.
//
// Memory follows the graphics convention: row 0 is the bottom of the viewport.
// Use ScreenRect or NewGraphicContext to draw in top-left screen coordinates.
type Framebuffer struct {
	ctx      *GraphicsContext
	mem      *image.RGBA
	previous *Framebuffer
	released bool
}

// Resize reallocates the backing store. The Framebuffer value itself is kept.
// Resizing to the current size does nothing.
func (fb *Framebuffer) Resize(width, height int) errorsx.Error {
	if fb.released {
		return errorsx.Wrap(ErrResourceAllocation, "reason", "framebuffer released")
	}

	if fb.mem != nil && fb.mem.Rect.Dx() == width && fb.mem.Rect.Dy() == height {
		return nil
	}

	mem, err := fb.ctx.allocate(width, height)
	if err != nil {
		return err
	}

	fb.mem = mem

	return nil
}

func (fb *Framebuffer) Width() int {
	return fb.mem.Rect.Dx()
}

func (fb *Framebuffer) Height() int {
	return fb.mem.Rect.Dy()
}

// Bind makes fb the render target and clears it. The previous target is restored by Unbind.
func (fb *Framebuffer) Bind(clearColor color.Color) {
	fb.previous = fb.ctx.bound
	fb.ctx.bound = fb

	draw.Draw(fb.mem, fb.mem.Rect, image.NewUniform(clearColor), image.Point{}, draw.Src)
}

func (fb *Framebuffer) Unbind() {
	if fb.ctx.bound == fb {
		fb.ctx.bound = fb.previous
	}
	fb.previous = nil
}

// Memory is the raw backing store, bottom row first.
func (fb *Framebuffer) Memory() *image.RGBA {
	return fb.mem
}

// ScreenRect converts a rectangle in top-left screen coordinates into memory coordinates.
func (fb *Framebuffer) ScreenRect(r image.Rectangle) image.Rectangle {
	h := fb.mem.Rect.Dy()
	return image.Rect(r.Min.X, h-r.Max.Y, r.Max.X, h-r.Min.Y)
}

// NewGraphicContext returns a draw2d context that takes top-left screen coordinates.
func (fb *Framebuffer) NewGraphicContext() *draw2dimg.GraphicContext {
	gc := draw2dimg.NewGraphicContext(fb.mem)
	gc.Translate(0, float64(fb.mem.Rect.Dy()))
	gc.Scale(1, -1)
	return gc
}

// DrawScreenImage composites a top-down image (text, icons) with its top-left corner at pt.
func (fb *Framebuffer) DrawScreenImage(src image.Image, pt image.Point) {
	b := src.Bounds()
	h := fb.mem.Rect.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		screenY := pt.Y + y - b.Min.Y
		memY := h - 1 - screenY
		if memY < 0 || memY >= h {
			continue
		}
		row := image.Rect(pt.X, memY, pt.X+b.Dx(), memY+1)
		draw.Draw(fb.mem, row, src, image.Pt(b.Min.X, y), draw.Over)
	}
}

// ReadPixels returns a copy of the framebuffer as tightly packed RGBA8, bottom row first.
func (fb *Framebuffer) ReadPixels() []byte {
	w, h := fb.Width(), fb.Height()
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		src := fb.mem.Pix[y*fb.mem.Stride : y*fb.mem.Stride+w*4]
		copy(pix[y*w*4:], src)
	}
	return pix
}

// Release frees the backing store. The framebuffer can't be used afterwards.
func (fb *Framebuffer) Release() {
	if fb.released {
		return
	}
	fb.Unbind()
	fb.mem = nil
	fb.released = true
	fb.ctx.live--
}

// FlipRows reverses the row order of tightly packed RGBA8 pixels in place.
func FlipRows(pix []byte, width, height int) {
	stride := width * 4
	tmp := make([]byte, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		topRow := pix[top*stride : (top+1)*stride]
		bottomRow := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, topRow)
		copy(topRow, bottomRow)
		copy(bottomRow, tmp)
	}
}
