package control

import (
	"testing"

	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		Line     string
		Expected []Command
	}{
		{"set scene foo.yaml", []Command{{Verb: VerbScene, Scene: "foo.yaml"}}},
		{"scene https://example.com/scene.yaml", []Command{{Verb: VerbScene, Scene: "https://example.com/scene.yaml"}}},
		{"set zoom 12; print out.png", []Command{{Verb: VerbZoom, Value: 12}, {Verb: VerbPrint, Path: "out.png"}}},
		{"  zoom   0  ", []Command{{Verb: VerbZoom, Value: 0}}},
		{"set size 800 600", []Command{{Verb: VerbSize, Size: viewstate.Size{Width: 800, Height: 600, Density: 1}}}},
		{"size 256 256 2", []Command{{Verb: VerbSize, Size: viewstate.Size{Width: 256, Height: 256, Density: 2}}}},
		{"size 256 256 0.5", []Command{{Verb: VerbSize, Size: viewstate.Size{Width: 256, Height: 256, Density: 1}}}},
		{"density 3", []Command{{Verb: VerbDensity, Density: 3}}},
		{"position -74.0 40.7", []Command{{Verb: VerbPosition, Position: viewstate.LngLat{Lon: -74, Lat: 40.7}}}},
		{"tilt 45; rotation -10; rotate 20", []Command{{Verb: VerbTilt, Value: 45}, {Verb: VerbRotation, Value: -10}, {Verb: VerbRotation, Value: 20}}},
		{"print", []Command{{Verb: VerbPrint}}},
		{"get status", []Command{{Verb: VerbStatus}}},
		{"status", []Command{{Verb: VerbStatus}}},
		{"quit", []Command{{Verb: VerbQuit}}},
		{"exit", []Command{{Verb: VerbQuit}}},
		{"ZOOM 3", []Command{{Verb: VerbZoom, Value: 3}}},
		{"", nil},
		{" ; ;", nil},
	}

	for _, test := range tests {
		t.Run(test.Line, func(t *testing.T) {
			commands, err := Parse(test.Line)
			require.NoError(t, err)
			assert.Equal(t, test.Expected, commands)
		})
	}
}

func TestParse_errors(t *testing.T) {
	lines := []string{
		"fly 10",
		"zoom",
		"zoom high",
		"zoom 1 2",
		"zoom NaN",
		"scene",
		"size 800",
		"size 0 600",
		"size 800 600 1 1",
		"position 10",
		"print a.png b.png",
		"status now",
		"zoom 3; fly 10",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			commands, err := Parse(line)
			require.Error(t, err)
			assert.Nil(t, commands)
		})
	}
}

func TestVerb_String(t *testing.T) {
	assert.Equal(t, "rotation", VerbRotation.String())
	assert.Equal(t, "unknown verb (99)", Verb(99).String())
}
