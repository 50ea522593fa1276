package styling

import (
	"image/color"
	"sort"

	"github.com/jamesrr39/goutil/errorsx"
	"gopkg.in/yaml.v3"
)

const SourceTypeGeoJSON = "GeoJSON"

// Scene is a scene document:
//
//	scene:
//	  background:
//	    color: '#f0ebeb'
//	sources:
//	  osm:
//	    type: GeoJSON
//	    url: data/places.geojson
//	layers:
//	  water:
//	    data: {source: osm}
//	    filter: {kind: water}
//	    draw:
//	      polygons: {color: '#88bbee', order: 1}
type Scene struct {
	Scene   SceneSettings     `yaml:"scene"`
	Sources map[string]Source `yaml:"sources"`
	Layers  map[string]*Layer `yaml:"layers"`
}

type SceneSettings struct {
	Background Background `yaml:"background"`
}

type Background struct {
	Color *Color `yaml:"color"`
}

type Source struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

type LayerData struct {
	Source string `yaml:"source"`
}

type Layer struct {
	Data    LayerData `yaml:"data"`
	Filter  Filter    `yaml:"filter"`
	MinZoom *float64  `yaml:"min_zoom"`
	MaxZoom *float64  `yaml:"max_zoom"`
	Visible *bool     `yaml:"visible"`
	Draw    Draw      `yaml:"draw"`
}

type Draw struct {
	Polygons *DrawPolygons `yaml:"polygons"`
	Lines    *DrawLines    `yaml:"lines"`
	Points   *DrawPoints   `yaml:"points"`
	Text     *DrawText     `yaml:"text"`
}

type DrawPolygons struct {
	Color *Color `yaml:"color"`
	Order int    `yaml:"order"`
}

type DrawLines struct {
	Color *Color     `yaml:"color"`
	Width *Dimension `yaml:"width"`
	Dash  []float64  `yaml:"dash"`
	Order int        `yaml:"order"`
}

type DrawPoints struct {
	Color *Color     `yaml:"color"`
	Size  *Dimension `yaml:"size"`
	Order int        `yaml:"order"`
}

type DrawText struct {
	TextSource string `yaml:"text_source"`
	Font       Font   `yaml:"font"`
	Order      int    `yaml:"order"`
}

type Font struct {
	Fill *Color     `yaml:"fill"`
	Size *Dimension `yaml:"size"`
}

func ParseScene(data []byte) (*Scene, errorsx.Error) {
	scene := new(Scene)
	err := yaml.Unmarshal(data, scene)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	err = scene.Validate()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return scene, nil
}

func (s *Scene) Validate() errorsx.Error {
	for name, source := range s.Sources {
		if source.Type != SourceTypeGeoJSON {
			return errorsx.Errorf("source %q: unsupported source type %q (only %q is supported)", name, source.Type, SourceTypeGeoJSON)
		}
		if source.URL == "" {
			return errorsx.Errorf("source %q: no url", name)
		}
	}

	for name, layer := range s.Layers {
		if layer == nil {
			return errorsx.Errorf("layer %q is empty", name)
		}
		if _, ok := s.Sources[layer.Data.Source]; !ok {
			return errorsx.Errorf("layer %q: unknown data source %q", name, layer.Data.Source)
		}
		err := layer.Validate()
		if err != nil {
			return errorsx.Wrap(err, "layer", name)
		}
	}

	return nil
}

func (s *Scene) BackgroundColor() color.Color {
	c := s.Scene.Background.Color.Get()
	if c == nil {
		return DefaultBackground
	}
	return c
}

type NamedLayer struct {
	Name string
	*Layer
}

// SortedLayers returns the layers in name order, so drawing is deterministic for equal draw orders.
func (s *Scene) SortedLayers() []NamedLayer {
	var layers []NamedLayer
	for name, layer := range s.Layers {
		layers = append(layers, NamedLayer{name, layer})
	}
	sort.Slice(layers, func(i, j int) bool {
		return layers[i].Name < layers[j].Name
	})
	return layers
}

func (l *Layer) Validate() errorsx.Error {
	if l.MaxZoom != nil && l.MinZoom != nil && *l.MaxZoom < *l.MinZoom {
		return errorsx.Errorf("max zoom is smaller than min zoom")
	}

	if l.MaxZoom != nil && (*l.MaxZoom < 0 || *l.MaxZoom > 24) {
		return errorsx.Errorf("max zoom must be between 0 and 24 (inclusive) but was %f", *l.MaxZoom)
	}

	if l.MinZoom != nil && (*l.MinZoom < 0 || *l.MinZoom > 24) {
		return errorsx.Errorf("min zoom must be between 0 and 24 (inclusive) but was %f", *l.MinZoom)
	}

	return nil
}

func (l *Layer) IsShownAtZoom(zoom float64) bool {
	if l.Visible != nil && !*l.Visible {
		return false
	}
	if l.MinZoom != nil && zoom < *l.MinZoom {
		return false
	}
	if l.MaxZoom != nil && zoom > *l.MaxZoom {
		return false
	}
	return true
}

func (l *Layer) GetPolygonStyle() *WayStyle {
	if l.Draw.Polygons == nil || l.Draw.Polygons.Color == nil {
		return nil
	}

	return &WayStyle{
		FillColor: l.Draw.Polygons.Color.Get(),
		ZIndex:    l.Draw.Polygons.Order,
	}
}

func (l *Layer) GetLineStyle(zoom float64) *WayStyle {
	if l.Draw.Lines == nil || l.Draw.Lines.Color == nil {
		return nil
	}

	width := l.Draw.Lines.Width.AtZoom(zoom, DefaultLineWidth)
	if width <= 0 {
		return nil
	}

	return &WayStyle{
		LineColor:      l.Draw.Lines.Color.Get(),
		LineWidth:      width,
		LineDashPolicy: l.Draw.Lines.Dash,
		ZIndex:         l.Draw.Lines.Order,
	}
}

func (l *Layer) GetPointStyle(zoom float64) *PointStyle {
	if l.Draw.Points == nil || l.Draw.Points.Color == nil {
		return nil
	}

	size := l.Draw.Points.Size.AtZoom(zoom, DefaultPointSize)
	if size <= 0 {
		return nil
	}

	return &PointStyle{
		FillColor: l.Draw.Points.Color.Get(),
		Radius:    size / 2,
		ZIndex:    l.Draw.Points.Order,
	}
}

func (l *Layer) GetTextStyle(zoom float64) *TextStyle {
	if l.Draw.Text == nil {
		return nil
	}

	textColor := l.Draw.Text.Font.Fill.Get()
	if textColor == nil {
		textColor = color.Black
	}

	textSource := l.Draw.Text.TextSource
	if textSource == "" {
		textSource = DefaultTextSource
	}

	return &TextStyle{
		TextSize:   l.Draw.Text.Font.Size.AtZoom(zoom, DefaultTextSize),
		TextColor:  textColor,
		TextSource: textSource,
		ZIndex:     l.Draw.Text.Order,
	}
}
