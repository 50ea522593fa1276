package mapengine

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/freetype/truetype"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
	"github.com/jamesrr39/ownmap-paparazzi/styling"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

type feature struct {
	geometry     orb.Geometry // web mercator
	properties   map[string]interface{}
	geometryType string // Point, LineString or Polygon, for filters
}

// Map is a software Engine. It loads a YAML scene document, fetches the GeoJSON sources the scene
// references, and draws them with draw2d into whatever framebuffer is bound.
type Map struct {
	logger  *logpkg.Logger
	fetcher Fetcher
	font    *truetype.Font
	gc      *offscreen.GraphicsContext

	view view

	generation     int
	scenePath      string
	scene          *styling.Scene
	sceneSettled   bool
	sceneFailed    bool
	pendingSources int
	sources        map[string][]*feature
}

var _ Engine = (*Map)(nil)

func NewMap(logger *logpkg.Logger, fetcher Fetcher, font *truetype.Font) *Map {
	return &Map{
		logger:       logger,
		fetcher:      fetcher,
		font:         font,
		view:         view{pixelScale: 1},
		sceneSettled: true,
		sources:      make(map[string][]*feature),
	}
}

func (m *Map) LoadSceneAsync(path string) {
	m.generation++
	generation := m.generation

	m.scenePath = path
	m.scene = nil
	m.sceneSettled = false
	m.sceneFailed = false
	m.pendingSources = 0
	m.sources = make(map[string][]*feature)

	err := m.fetcher.Enqueue(path, func(body []byte, err errorsx.Error) {
		if generation != m.generation {
			// a newer scene has been requested since
			return
		}
		m.onSceneFetched(generation, path, body, err)
	})
	if err != nil {
		m.logger.Error("couldn't request scene %q: %s", path, err)
		m.sceneSettled = true
		m.sceneFailed = true
	}
}

func (m *Map) onSceneFetched(generation int, path string, body []byte, fetchErr errorsx.Error) {
	defer func() {
		m.sceneSettled = true
	}()

	if fetchErr != nil {
		m.logger.Warn("couldn't load scene %q: %s", path, fetchErr)
		m.sceneFailed = true
		return
	}

	scene, err := styling.ParseScene(body)
	if err != nil {
		m.logger.Warn("couldn't parse scene %q: %s", path, err)
		m.sceneFailed = true
		return
	}

	m.scene = scene

	var sourceNames []string
	for name := range scene.Sources {
		sourceNames = append(sourceNames, name)
	}
	sort.Strings(sourceNames)

	for _, name := range sourceNames {
		name := name

		location, err := resolveLocation(path, scene.Sources[name].URL)
		if err != nil {
			m.logger.Warn("source %q: %s", name, err)
			continue
		}

		m.pendingSources++
		err = m.fetcher.Enqueue(location, func(body []byte, err errorsx.Error) {
			if generation != m.generation {
				return
			}
			m.onSourceFetched(name, location, body, err)
		})
		if err != nil {
			m.pendingSources--
			m.logger.Warn("couldn't request source %q at %q: %s", name, location, err)
		}
	}
}

func (m *Map) onSourceFetched(name, location string, body []byte, fetchErr errorsx.Error) {
	m.pendingSources--

	if fetchErr != nil {
		m.logger.Warn("couldn't load source %q from %q: %s", name, location, fetchErr)
		return
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		m.logger.Warn("couldn't parse source %q from %q as GeoJSON: %s", name, location, err)
		return
	}

	var features []*feature
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}

		features = append(features, &feature{
			geometry:     project.Geometry(f.Geometry, toMercator),
			properties:   f.Properties,
			geometryType: strings.TrimPrefix(f.Geometry.GeoJSONType(), "Multi"),
		})
	}

	m.sources[name] = features

	m.logger.Debug("source %q loaded: %d features", name, len(features))
}

func toMercator(p orb.Point) orb.Point {
	return lngLatToMercator(p[0], p[1])
}

// resolveLocation resolves ref relative to the scene that references it
func resolveLocation(scenePath, ref string) (string, errorsx.Error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", errorsx.Wrap(err, "ref", ref)
	}

	if refURL.IsAbs() || filepath.IsAbs(ref) {
		return ref, nil
	}

	base, err := url.Parse(scenePath)
	if err == nil && base.Scheme != "" {
		return base.ResolveReference(refURL).String(), nil
	}

	return filepath.Join(filepath.Dir(scenePath), ref), nil
}

func (m *Map) SetupGraphicsContext(ctx *offscreen.GraphicsContext) errorsx.Error {
	if ctx == nil {
		return errorsx.Errorf("no graphics context")
	}
	m.gc = ctx
	return nil
}

func (m *Map) Resize(width, height int) {
	m.view.width = width
	m.view.height = height
}

func (m *Map) SetPixelScale(scale float64) {
	m.view.pixelScale = scale
}

func (m *Map) SetPosition(lon, lat float64) {
	m.view.center = lngLatToMercator(lon, lat)
}

func (m *Map) SetZoom(zoom float64) {
	m.view.zoom = zoom
}

func (m *Map) SetTilt(radians float64) {
	m.view.tilt = radians
}

func (m *Map) SetRotation(radians float64) {
	m.view.rotation = radians
}

// Update reports whether the scene and all of its sources have finished loading.
// There are no animations, so dt is not used.
func (m *Map) Update(dt float64) bool {
	return m.sceneSettled && m.pendingSources == 0
}

func (m *Map) SceneFailed() bool {
	return m.sceneFailed
}

// Release drops the scene. Fetches still in flight are ignored when they complete.
func (m *Map) Release() {
	m.generation++
	m.scene = nil
	m.sources = nil
	m.pendingSources = 0
	m.sceneSettled = true
	m.gc = nil
}

// FeatureCount is the number of features loaded from all sources
func (m *Map) FeatureCount() int {
	count := 0
	for _, features := range m.sources {
		count += len(features)
	}
	return count
}
