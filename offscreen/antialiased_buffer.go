package offscreen

import (
	"image"
	"image/color"

	"github.com/jamesrr39/goutil/errorsx"
)

// AntiAliasedBuffer is the pair of framebuffers used for a super-sampled render:
// the engine draws into the high resolution input, Capture downsamples it into the output.
type AntiAliasedBuffer struct {
	ctx         *GraphicsContext
	in          *Framebuffer
	out         *Framebuffer
	downsampler Downsampler
}

func NewAntiAliasedBuffer(ctx *GraphicsContext, downsampler Downsampler) *AntiAliasedBuffer {
	return &AntiAliasedBuffer{ctx: ctx, downsampler: downsampler}
}

// SetSize allocates both framebuffers the first time, and resizes them in place afterwards.
func (b *AntiAliasedBuffer) SetSize(engineWidth, engineHeight, outWidth, outHeight int) errorsx.Error {
	var err errorsx.Error
	if b.in == nil {
		b.in, err = b.ctx.NewFramebuffer(engineWidth, engineHeight)
		if err != nil {
			return errorsx.Wrap(err, "framebuffer", "input")
		}
	} else {
		err = b.in.Resize(engineWidth, engineHeight)
		if err != nil {
			return errorsx.Wrap(err, "framebuffer", "input")
		}
	}

	if b.out == nil {
		b.out, err = b.ctx.NewFramebuffer(outWidth, outHeight)
		if err != nil {
			return errorsx.Wrap(err, "framebuffer", "output")
		}
	} else {
		err = b.out.Resize(outWidth, outHeight)
		if err != nil {
			return errorsx.Wrap(err, "framebuffer", "output")
		}
	}

	return nil
}

func (b *AntiAliasedBuffer) Allocated() bool {
	return b.in != nil && b.out != nil
}

// Input is the high resolution framebuffer the engine renders into
func (b *AntiAliasedBuffer) Input() *Framebuffer {
	return b.in
}

// Bind makes the input framebuffer the render target, cleared to transparent.
func (b *AntiAliasedBuffer) Bind() errorsx.Error {
	if !b.Allocated() {
		return errorsx.Errorf("anti-aliased buffer has no size yet")
	}
	b.in.Bind(color.Transparent)
	return nil
}

func (b *AntiAliasedBuffer) Unbind() {
	if b.in != nil {
		b.in.Unbind()
	}
}

// Capture downsamples the input into the output and reads it back.
// The returned image is right side up: row 0 is the top of the map.
func (b *AntiAliasedBuffer) Capture() (*image.RGBA, errorsx.Error) {
	if !b.Allocated() {
		return nil, errorsx.Errorf("anti-aliased buffer has no size yet")
	}

	b.out.Bind(color.Black)
	b.downsampler.Run(b.out.Memory(), b.in.Memory())
	pix := b.out.ReadPixels()
	b.out.Unbind()

	w, h := b.out.Width(), b.out.Height()

	if !b.downsampler.FlipV {
		FlipRows(pix, w, h)
	}

	return &image.RGBA{
		Pix:    pix,
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}

// Close releases both framebuffers
func (b *AntiAliasedBuffer) Close() {
	if b.in != nil {
		b.in.Release()
		b.in = nil
	}
	if b.out != nil {
		b.out.Release()
		b.out = nil
	}
}
