package styling

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"gopkg.in/yaml.v3"
)

// Dimension is a size in logical pixels. It is either a single value ("2px", 2)
// or zoom stops ([[10, 1px], [16, 4px]]) that are interpolated linearly between stops.
type Dimension struct {
	Value float64
	Stops []Stop
}

type Stop struct {
	Zoom  float64
	Value float64
}

// AtZoom returns the dimension at zoom. A nil Dimension returns fallback.
func (d *Dimension) AtZoom(zoom, fallback float64) float64 {
	if d == nil {
		return fallback
	}

	if len(d.Stops) == 0 {
		return d.Value
	}

	first := d.Stops[0]
	if zoom <= first.Zoom {
		return first.Value
	}

	for i := 1; i < len(d.Stops); i++ {
		prev, next := d.Stops[i-1], d.Stops[i]
		if zoom <= next.Zoom {
			progress := (zoom - prev.Zoom) / (next.Zoom - prev.Zoom)
			return prev.Value + progress*(next.Value-prev.Value)
		}
	}

	return d.Stops[len(d.Stops)-1].Value
}

func (d *Dimension) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		v, err := parsePixels(value.Value)
		if err != nil {
			return errorsx.Wrap(err, "line", value.Line)
		}
		d.Value = v
		return nil
	case yaml.SequenceNode:
		var stops []Stop
		for _, stopNode := range value.Content {
			if stopNode.Kind != yaml.SequenceNode || len(stopNode.Content) != 2 {
				return errorsx.Errorf("zoom stop must be a [zoom, value] pair (line %d)", stopNode.Line)
			}

			zoom, err := strconv.ParseFloat(stopNode.Content[0].Value, 64)
			if err != nil {
				return errorsx.Wrap(err, "line", stopNode.Line)
			}

			v, err := parsePixels(stopNode.Content[1].Value)
			if err != nil {
				return errorsx.Wrap(err, "line", stopNode.Line)
			}

			stops = append(stops, Stop{zoom, v})
		}

		if len(stops) == 0 {
			return errorsx.Errorf("zoom stops can't be empty (line %d)", value.Line)
		}

		sort.Slice(stops, func(i, j int) bool {
			return stops[i].Zoom < stops[j].Zoom
		})

		d.Stops = stops
		return nil
	default:
		return errorsx.Errorf("dimension must be a value or a list of zoom stops (line %d)", value.Line)
	}
}

func parsePixels(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "px"), 64)
}
