package styling

import (
	"image/color"
)

type ItemStyle interface {
	GetZIndex() int
}

// WayStyle styles polygons (FillColor) and lines (LineColor)
type WayStyle struct {
	FillColor      color.Color
	LineColor      color.Color
	LineDashPolicy []float64
	LineWidth      float64
	ZIndex         int
}

func (ws *WayStyle) GetZIndex() int {
	return ws.ZIndex
}

type PointStyle struct {
	FillColor color.Color
	Radius    float64
	ZIndex    int
}

func (ps *PointStyle) GetZIndex() int {
	return ps.ZIndex
}

type TextStyle struct {
	TextSize   float64
	TextColor  color.Color
	TextSource string
	ZIndex     int
}

func (ts *TextStyle) GetZIndex() int {
	return ts.ZIndex
}

// DefaultBackground is used when a scene doesn't set a background color
var DefaultBackground color.Color = color.White

const (
	DefaultLineWidth  = 1
	DefaultPointSize  = 4
	DefaultTextSize   = 12
	DefaultTextSource = "name"
)
