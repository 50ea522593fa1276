package styling

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"gopkg.in/yaml.v3"
)

var namedColors = map[string]color.NRGBA{
	"transparent": {},
	"black":       {0, 0, 0, 0xff},
	"white":       {0xff, 0xff, 0xff, 0xff},
	"red":         {0xff, 0, 0, 0xff},
	"green":       {0, 0x80, 0, 0xff},
	"blue":        {0, 0, 0xff, 0xff},
	"yellow":      {0xff, 0xff, 0, 0xff},
	"orange":      {0xff, 0xa5, 0, 0xff},
	"gray":        {0x80, 0x80, 0x80, 0xff},
	"grey":        {0x80, 0x80, 0x80, 0xff},
	"lightgray":   {0xd3, 0xd3, 0xd3, 0xff},
	"darkgray":    {0xa9, 0xa9, 0xa9, 0xff},
}

// Color is a scene color. In a scene document it can be written as
// a CSS hex string ('#rgb', '#rrggbb', '#rrggbbaa'), rgb()/rgba(), a named color,
// or a list of 3 or 4 floats between 0 and 1.
type Color struct {
	NRGBA color.NRGBA
}

// Get returns nil for a nil Color, so an unset color means "don't draw"
func (c *Color) Get() color.Color {
	if c == nil {
		return nil
	}
	return c.NRGBA
}

func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseColor(value.Value)
		if err != nil {
			return err
		}
		c.NRGBA = parsed
		return nil
	case yaml.SequenceNode:
		var components []float64
		err := value.Decode(&components)
		if err != nil {
			return errorsx.Wrap(err, "line", value.Line)
		}
		parsed, err := colorFromUnitFloats(components)
		if err != nil {
			return errorsx.Wrap(err, "line", value.Line)
		}
		c.NRGBA = parsed
		return nil
	default:
		return errorsx.Errorf("color must be a string or a list of numbers (line %d)", value.Line)
	}
}

func ParseColor(s string) (color.NRGBA, errorsx.Error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if named, ok := namedColors[s]; ok {
		return named, nil
	}

	switch {
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseRGBFunc(s[len("rgba("):len(s)-1], true)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseRGBFunc(s[len("rgb("):len(s)-1], false)
	}

	return color.NRGBA{}, errorsx.Errorf("unrecognised color: %q", s)
}

func parseHexColor(hex string) (color.NRGBA, errorsx.Error) {
	switch len(hex) {
	case 3, 4:
		// #rgb(a): each digit is doubled
		var expanded strings.Builder
		for _, r := range hex {
			expanded.WriteRune(r)
			expanded.WriteRune(r)
		}
		return parseHexColor(expanded.String())
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, errorsx.Errorf("hex color must have 3, 4, 6 or 8 digits, but had %d", len(hex))
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errorsx.Wrap(err, "color", hex)
	}

	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

func parseRGBFunc(args string, withAlpha bool) (color.NRGBA, errorsx.Error) {
	parts := strings.Split(args, ",")

	expectedParts := 3
	if withAlpha {
		expectedParts = 4
	}
	if len(parts) != expectedParts {
		return color.NRGBA{}, errorsx.Errorf("expected %d color components but got %d", expectedParts, len(parts))
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return color.NRGBA{}, errorsx.Wrap(err, "component", i)
		}
		rgb[i] = uint8(v)
	}

	alpha := uint8(0xff)
	if withAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return color.NRGBA{}, errorsx.Wrap(err, "component", "alpha")
		}
		alpha = unitToByte(a)
	}

	return color.NRGBA{rgb[0], rgb[1], rgb[2], alpha}, nil
}

func colorFromUnitFloats(components []float64) (color.NRGBA, error) {
	if len(components) != 3 && len(components) != 4 {
		return color.NRGBA{}, fmt.Errorf("expected 3 or 4 color components but got %d", len(components))
	}

	c := color.NRGBA{
		R: unitToByte(components[0]),
		G: unitToByte(components[1]),
		B: unitToByte(components[2]),
		A: 0xff,
	}
	if len(components) == 4 {
		c.A = unitToByte(components[3])
	}

	return c, nil
}

func unitToByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v*255 + 0.5)
}
