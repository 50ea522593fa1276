package mapengine

import (
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-paparazzi/fetchqueue"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
)

// Engine is a map renderer driven from a single goroutine.
// Tilt and rotation are in radians. Sizes are in engine pixels.
type Engine interface {
	// LoadSceneAsync starts loading a scene. Update reports done once it (and everything it references) has loaded or failed.
	LoadSceneAsync(path string)
	// SceneFailed reports whether the last scene requested could not be fetched or parsed
	SceneFailed() bool
	SetupGraphicsContext(ctx *offscreen.GraphicsContext) errorsx.Error
	Resize(width, height int)
	SetPixelScale(scale float64)
	SetPosition(lon, lat float64)
	SetZoom(zoom float64)
	SetTilt(radians float64)
	SetRotation(radians float64)
	// Update advances the engine by dt and reports whether the view is complete.
	Update(dt float64) bool
	// Render draws the current view into the bound framebuffer.
	Render() errorsx.Error
	Release()
}

// Fetcher is where the engine sends its document requests
type Fetcher interface {
	Enqueue(location string, callback fetchqueue.Callback) errorsx.Error
}
