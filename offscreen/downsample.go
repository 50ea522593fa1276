package offscreen

import (
	"image"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Downsampler is the pass that reduces the super-sampled framebuffer to the output framebuffer.
type Downsampler struct {
	Interpolator xdraw.Interpolator
	// FlipV flips the vertical axis during the pass, so the output memory is top row first.
	FlipV bool
}

func DefaultDownsampler() Downsampler {
	return Downsampler{
		Interpolator: xdraw.BiLinear,
		FlipV:        true,
	}
}

// Run scales all of src onto all of dst, then makes dst fully opaque.
func (d Downsampler) Run(dst, src *image.RGBA) {
	interpolator := d.Interpolator
	if interpolator == nil {
		interpolator = xdraw.BiLinear
	}

	sx := float64(dst.Rect.Dx()) / float64(src.Rect.Dx())
	sy := float64(dst.Rect.Dy()) / float64(src.Rect.Dy())

	m := f64.Aff3{
		sx, 0, float64(dst.Rect.Min.X),
		0, sy, float64(dst.Rect.Min.Y),
	}
	if d.FlipV {
		m = f64.Aff3{
			sx, 0, float64(dst.Rect.Min.X),
			0, -sy, float64(dst.Rect.Max.Y),
		}
	}

	interpolator.Transform(dst, m, src, src.Rect, xdraw.Over, nil)

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
}
