package mapengine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	TileSize    = 256
	MaxLatitude = 85.0511287798066

	mercatorWorldWidth = 2 * 20037508.342789244
)

// view maps web mercator metres onto top-left screen pixels
type view struct {
	center     orb.Point
	zoom       float64
	tilt       float64
	rotation   float64
	pixelScale float64
	width      int
	height     int
}

func lngLatToMercator(lon, lat float64) orb.Point {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	return project.WGS84.ToMercator(orb.Point{lon, lat})
}

func (v view) metresPerPixel() float64 {
	pixelScale := v.pixelScale
	if pixelScale <= 0 {
		pixelScale = 1
	}
	return mercatorWorldWidth / (TileSize * math.Exp2(v.zoom) * pixelScale)
}

func (v view) toScreen(p orb.Point) (float64, float64) {
	mpp := v.metresPerPixel()
	dx := (p[0] - v.center[0]) / mpp
	dy := -(p[1] - v.center[1]) / mpp

	sin, cos := math.Sincos(v.rotation)
	rx := dx*cos - dy*sin
	ry := (dx*sin + dy*cos) * math.Cos(v.tilt)

	return float64(v.width)/2 + rx, float64(v.height)/2 + ry
}
