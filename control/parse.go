package control

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
)

type Verb int

const (
	VerbScene Verb = iota + 1
	VerbSize
	VerbDensity
	VerbPosition
	VerbZoom
	VerbTilt
	VerbRotation
	VerbPrint
	VerbStatus
	VerbQuit
)

var verbNames = map[Verb]string{
	VerbScene:    "scene",
	VerbSize:     "size",
	VerbDensity:  "density",
	VerbPosition: "position",
	VerbZoom:     "zoom",
	VerbTilt:     "tilt",
	VerbRotation: "rotation",
	VerbPrint:    "print",
	VerbStatus:   "status",
	VerbQuit:     "quit",
}

func (v Verb) String() string {
	name, ok := verbNames[v]
	if !ok {
		return fmt.Sprintf("unknown verb (%d)", int(v))
	}
	return name
}

// Command is one parsed control command. Only the fields for its Verb are set.
type Command struct {
	Verb     Verb
	Scene    string
	Size     viewstate.Size
	Density  float64
	Position viewstate.LngLat
	// Value is the zoom, or the tilt or rotation in degrees
	Value float64
	// Path is where print writes the image. Empty means send it back to whoever asked.
	Path string
}

// Parse reads a line of commands, separated by ';'. Fields are separated by whitespace.
// A leading "set" or "get" is ignored, so "set zoom 12; print out.png" and "zoom 12; print out.png" are the same.
func Parse(line string) ([]Command, errorsx.Error) {
	var commands []Command
	for _, part := range strings.Split(line, ";") {
		fields := strings.Fields(part)
		if len(fields) > 0 && (fields[0] == "set" || fields[0] == "get") {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}

		command, err := parseCommand(fields[0], fields[1:])
		if err != nil {
			return nil, errorsx.Wrap(err, "command", strings.TrimSpace(part))
		}

		commands = append(commands, command)
	}

	return commands, nil
}

func parseCommand(verb string, args []string) (Command, errorsx.Error) {
	var err errorsx.Error

	switch strings.ToLower(verb) {
	case "scene":
		if len(args) != 1 {
			return Command{}, arityError(verb, "a path or URL")
		}
		return Command{Verb: VerbScene, Scene: args[0]}, nil

	case "size":
		if len(args) != 2 && len(args) != 3 {
			return Command{}, arityError(verb, "width, height and optionally density")
		}

		size := viewstate.Size{Density: viewstate.DefaultDensity}
		size.Width, err = parseInt(verb, args[0])
		if err != nil {
			return Command{}, err
		}
		size.Height, err = parseInt(verb, args[1])
		if err != nil {
			return Command{}, err
		}
		if size.Width <= 0 || size.Height <= 0 {
			return Command{}, errorsx.Errorf("size must be positive, got %dx%d", size.Width, size.Height)
		}
		if len(args) == 3 {
			size.Density, err = parseFloat(verb, args[2])
			if err != nil {
				return Command{}, err
			}
		}
		size.Density = viewstate.ClampDensity(size.Density)

		return Command{Verb: VerbSize, Size: size}, nil

	case "density":
		if len(args) != 1 {
			return Command{}, arityError(verb, "a density")
		}
		density, err := parseFloat(verb, args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbDensity, Density: viewstate.ClampDensity(density)}, nil

	case "position":
		if len(args) != 2 {
			return Command{}, arityError(verb, "lon and lat")
		}
		var position viewstate.LngLat
		position.Lon, err = parseFloat(verb, args[0])
		if err != nil {
			return Command{}, err
		}
		position.Lat, err = parseFloat(verb, args[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbPosition, Position: position}, nil

	case "zoom", "tilt", "rotation", "rotate":
		if len(args) != 1 {
			return Command{}, arityError(verb, "a number")
		}
		value, err := parseFloat(verb, args[0])
		if err != nil {
			return Command{}, err
		}

		command := Command{Value: value}
		switch strings.ToLower(verb) {
		case "zoom":
			command.Verb = VerbZoom
		case "tilt":
			command.Verb = VerbTilt
		default:
			command.Verb = VerbRotation
		}
		return command, nil

	case "print":
		if len(args) > 1 {
			return Command{}, arityError(verb, "at most one path")
		}
		command := Command{Verb: VerbPrint}
		if len(args) == 1 {
			command.Path = args[0]
		}
		return command, nil

	case "status":
		if len(args) != 0 {
			return Command{}, arityError(verb, "no arguments")
		}
		return Command{Verb: VerbStatus}, nil

	case "quit", "exit":
		return Command{Verb: VerbQuit}, nil

	default:
		return Command{}, errorsx.Errorf("unknown command %q", verb)
	}
}

func arityError(verb, expected string) errorsx.Error {
	return errorsx.Errorf("%q expects %s", verb, expected)
}

func parseInt(verb, value string) (int, errorsx.Error) {
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, errorsx.Errorf("%s: couldn't parse %q as an integer", verb, value)
	}
	return i, nil
}

func parseFloat(verb, value string) (float64, errorsx.Error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errorsx.Errorf("%s: couldn't parse %q as a number", verb, value)
	}
	return f, nil
}
