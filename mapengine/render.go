package mapengine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/golang/freetype"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
	"github.com/jamesrr39/ownmap-paparazzi/styling"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/paulmach/orb"
)

type itemWithStyleType struct {
	ItemStyle styling.ItemStyle
	Item      *feature
}

func (m *Map) Render() errorsx.Error {
	if m.gc == nil {
		return errorsx.Errorf("no graphics context set up")
	}

	fb := m.gc.Bound()
	if fb == nil {
		return errorsx.Errorf("no framebuffer bound")
	}

	v := m.view
	if v.width != fb.Width() || v.height != fb.Height() {
		m.logger.Debug("engine size %dx%d differs from the bound framebuffer (%dx%d). Rendering at framebuffer size", v.width, v.height, fb.Width(), fb.Height())
		v.width, v.height = fb.Width(), fb.Height()
	}

	bgColor := styling.DefaultBackground
	if m.scene != nil {
		bgColor = m.scene.BackgroundColor()
	}
	draw.Draw(fb.Memory(), fb.Memory().Bounds(), image.NewUniform(bgColor), image.Point{}, draw.Src)

	if m.scene == nil {
		return nil
	}

	itemStyles, err := m.collectItemStyles()
	if err != nil {
		return err
	}

	// lowest zindex first, so the highest is drawn on top
	sort.SliceStable(itemStyles, func(a, b int) bool {
		return itemStyles[a].ItemStyle.GetZIndex() < itemStyles[b].ItemStyle.GetZIndex()
	})

	gc := fb.NewGraphicContext()

	for _, itemStyleAndItem := range itemStyles {
		switch itemStyle := itemStyleAndItem.ItemStyle.(type) {
		case *styling.WayStyle:
			if itemStyle.FillColor != nil {
				drawPolygons(gc, v, itemStyleAndItem.Item.geometry, itemStyle)
			} else {
				drawLines(gc, v, itemStyleAndItem.Item.geometry, itemStyle)
			}
		case *styling.PointStyle:
			drawPoints(gc, v, itemStyleAndItem.Item.geometry, itemStyle)
		case *styling.TextStyle:
			err = m.drawLabel(fb, v, itemStyleAndItem.Item, itemStyle)
			if err != nil {
				return err
			}
		default:
			return errorsx.Errorf("didn't understand style %#v", itemStyleAndItem.ItemStyle)
		}
	}

	return nil
}

func (m *Map) collectItemStyles() ([]itemWithStyleType, errorsx.Error) {
	zoom := m.view.zoom

	var itemStyles []itemWithStyleType
	for _, layer := range m.scene.SortedLayers() {
		if !layer.IsShownAtZoom(zoom) {
			continue
		}

		polygonStyle := layer.GetPolygonStyle()
		lineStyle := layer.GetLineStyle(zoom)
		pointStyle := layer.GetPointStyle(zoom)
		textStyle := layer.GetTextStyle(zoom)

		for _, f := range m.sources[layer.Data.Source] {
			shown, err := styling.IsFeatureShown(layer.Filter, f.properties, f.geometryType)
			if err != nil {
				return nil, errorsx.Wrap(err, "layer", layer.Name)
			}
			if !shown {
				continue
			}

			switch f.geometryType {
			case styling.FilterThingTypePolygon:
				if polygonStyle != nil {
					itemStyles = append(itemStyles, itemWithStyleType{polygonStyle, f})
				}
				if lineStyle != nil {
					itemStyles = append(itemStyles, itemWithStyleType{lineStyle, f})
				}
			case styling.FilterThingTypeLineString:
				if lineStyle != nil {
					itemStyles = append(itemStyles, itemWithStyleType{lineStyle, f})
				}
			case styling.FilterThingTypePoint:
				if pointStyle != nil {
					itemStyles = append(itemStyles, itemWithStyleType{pointStyle, f})
				}
				if textStyle != nil {
					itemStyles = append(itemStyles, itemWithStyleType{textStyle, f})
				}
			}
		}
	}

	return itemStyles, nil
}

func tracePath(gc *draw2dimg.GraphicContext, v view, points []orb.Point, closed bool) {
	for i, p := range points {
		x, y := v.toScreen(p)
		if i == 0 {
			gc.MoveTo(x, y)
		} else {
			gc.LineTo(x, y)
		}
	}
	if closed && len(points) > 0 {
		gc.Close()
	}
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}
	case orb.MultiPolygon:
		return geom
	default:
		return nil
	}
}

func lineStringsOf(g orb.Geometry) []orb.LineString {
	switch geom := g.(type) {
	case orb.LineString:
		return []orb.LineString{geom}
	case orb.MultiLineString:
		return geom
	default:
		// polygon outlines
		var lines []orb.LineString
		for _, polygon := range polygonsOf(g) {
			for _, ring := range polygon {
				lines = append(lines, orb.LineString(ring))
			}
		}
		return lines
	}
}

func pointsOf(g orb.Geometry) []orb.Point {
	switch geom := g.(type) {
	case orb.Point:
		return []orb.Point{geom}
	case orb.MultiPoint:
		return geom
	default:
		return nil
	}
}

func drawPolygons(gc *draw2dimg.GraphicContext, v view, g orb.Geometry, style *styling.WayStyle) {
	gc.SetFillColor(style.FillColor)
	gc.BeginPath()
	for _, polygon := range polygonsOf(g) {
		// outer ring and holes in one path: holes are cut out by the even-odd fill rule
		for _, ring := range polygon {
			tracePath(gc, v, ring, true)
		}
	}
	gc.Fill()
}

func drawLines(gc *draw2dimg.GraphicContext, v view, g orb.Geometry, style *styling.WayStyle) {
	gc.SetStrokeColor(style.LineColor)
	gc.SetLineWidth(style.LineWidth * v.pixelScale)

	var dash []float64
	for _, d := range style.LineDashPolicy {
		dash = append(dash, d*v.pixelScale)
	}
	gc.SetLineDash(dash, 0)

	gc.BeginPath()
	for _, line := range lineStringsOf(g) {
		tracePath(gc, v, line, false)
	}
	gc.Stroke()
}

func drawPoints(gc *draw2dimg.GraphicContext, v view, g orb.Geometry, style *styling.PointStyle) {
	gc.SetFillColor(style.FillColor)
	gc.BeginPath()
	for _, p := range pointsOf(g) {
		x, y := v.toScreen(p)
		draw2dkit.Circle(gc, x, y, style.Radius*v.pixelScale)
	}
	gc.Fill()
}

func (m *Map) drawLabel(fb *offscreen.Framebuffer, v view, f *feature, style *styling.TextStyle) errorsx.Error {
	value, ok := f.properties[style.TextSource]
	if !ok || value == nil {
		return nil
	}

	text := fmt.Sprint(value)
	if text == "" {
		return nil
	}

	size := style.TextSize * v.pixelScale

	for _, p := range pointsOf(f.geometry) {
		labelImg, err := m.generateLabelImage(text, size, style.TextColor)
		if err != nil {
			return err
		}

		x, y := v.toScreen(p)
		bounds := labelImg.Bounds()
		fb.DrawScreenImage(labelImg, image.Pt(int(x)-bounds.Dx()/2, int(y)-bounds.Dy()/2))
	}

	return nil
}

func (m *Map) generateLabelImage(text string, size float64, textColor color.Color) (image.Image, errorsx.Error) {
	height := int(size * 2)
	width := int(size) * len([]rune(text))
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rectangle{}), nil
	}

	fontImg := image.NewRGBA(image.Rect(0, 0, width, height))

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(m.font)
	ctx.SetFontSize(size)
	ctx.SetClip(fontImg.Bounds())
	ctx.SetDst(fontImg)
	ctx.SetSrc(image.NewUniform(textColor))

	end, err := ctx.DrawString(text, freetype.Pt(0, int(size*1.4)))
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	// trim to the advance of the text, so it can be centred
	advance := end.X.Ceil()
	if advance > 0 && advance < width {
		return fontImg.SubImage(image.Rect(0, 0, advance, height)), nil
	}

	return fontImg, nil
}
