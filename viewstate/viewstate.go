package viewstate

import (
	"fmt"
	"math"
)

const (
	// DefaultSuperSampleFactor is how many engine pixels are rendered per output pixel, along each axis.
	DefaultSuperSampleFactor = 2.0

	DefaultScene   = "scene.yaml"
	DefaultWidth   = 800
	DefaultHeight  = 600
	DefaultDensity = 1.0
)

type LngLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func (ll LngLat) String() string {
	return fmt.Sprintf("(%f, %f)", ll.Lon, ll.Lat)
}

// Size is the logical size of a render, in points, plus the pixel density of the output.
type Size struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Density float64 `json:"density"`
}

// OutputPixels is the size of the image the caller gets back.
func (s Size) OutputPixels() (int, int) {
	return scaled(s.Width, s.Density), scaled(s.Height, s.Density)
}

// EnginePixels is the size of the surface the engine renders into.
func (s Size) EnginePixels(superSample float64) (int, int) {
	return scaled(s.Width, s.Density*superSample), scaled(s.Height, s.Density*superSample)
}

func (s Size) PixelScale(superSample float64) float64 {
	return s.Density * superSample
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0 && s.Density == 0
}

func scaled(logical int, factor float64) int {
	return int(math.Round(float64(logical) * factor))
}

// ClampDensity returns density, or 1 if density is below 1.
func ClampDensity(density float64) float64 {
	if density < 1 {
		return 1
	}
	return density
}

// ViewState is what the renderer is currently configured to show.
// Tilt and Rotation are in degrees.
type ViewState struct {
	Scene    string  `json:"scene"`
	Position LngLat  `json:"position"`
	Zoom     float64 `json:"zoom"`
	Tilt     float64 `json:"tilt"`
	Rotation float64 `json:"rotation"`
	Size     Size    `json:"size"`
}
