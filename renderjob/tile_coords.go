package renderjob

import (
	"math"

	"github.com/paulmach/osm"
)

const TileSize = 256

type TileCoord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// IsValid reports whether the tile exists at its zoom level
func (tc TileCoord) IsValid() bool {
	if tc.Z < 0 || tc.Z > 30 {
		return false
	}
	n := 1 << uint(tc.Z)
	return tc.X >= 0 && tc.X < n && tc.Y >= 0 && tc.Y < n
}

func num2deg(x, y, zoomLevel int) (lat, lon float64) {
	n := math.Exp2(float64(zoomLevel))
	lon = float64(x)/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	return lat, lon
}

// TileBounds returns the area covered by a slippy map tile.
func TileBounds(tc TileCoord) osm.Bounds {
	// north west corner
	maxLat, minLon := num2deg(tc.X, tc.Y, tc.Z)
	// south east corner
	minLat, maxLon := num2deg(tc.X+1, tc.Y+1, tc.Z)

	return osm.Bounds{
		MinLat: minLat,
		MaxLat: math.Min(maxLat, 90),
		MinLon: minLon,
		MaxLon: math.Min(maxLon, 180),
	}
}

// BoundsCenter is the midpoint of the bounds, in degrees
func BoundsCenter(bounds osm.Bounds) (lon, lat float64) {
	return (bounds.MinLon + bounds.MaxLon) / 2, (bounds.MinLat + bounds.MaxLat) / 2
}
