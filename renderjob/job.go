package renderjob

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
)

var (
	ErrInsufficientParameters = errors.New("not enough data to construct image")
	ErrNoScene                = errors.New("scene is required (scene parameter or request body)")
)

type Mode int

const (
	ModeExplicit Mode = iota + 1
	ModeTile
)

func (m Mode) String() string {
	switch m {
	case ModeExplicit:
		return "explicit"
	case ModeTile:
		return "tile"
	default:
		return fmt.Sprintf("unknown mode (%d)", int(m))
	}
}

var tilePathRegexp = regexp.MustCompile(`/(\d+)/(\d+)/(\d+)\.png$`)

var explicitParams = []string{"width", "height", "lat", "lon", "zoom"}

// Job is one fully validated render request.
// Either Scene (a path or URL) or SceneContent (an inline scene document) is set.
// Tilt and Rotation are in degrees.
type Job struct {
	ID           string
	Mode         Mode
	Scene        string
	SceneContent []byte
	Width        int
	Height       int
	Density      float64
	Lon          float64
	Lat          float64
	Zoom         float64
	Tilt         float64
	Rotation     float64
	Tile         *TileCoord
}

// NewJob gives a job with its own ID and the default density
func NewJob(mode Mode) *Job {
	return &Job{
		ID:      uuid.New().String(),
		Mode:    mode,
		Density: viewstate.DefaultDensity,
	}
}

func (job *Job) Size() viewstate.Size {
	return viewstate.Size{Width: job.Width, Height: job.Height, Density: job.Density}
}

func (job *Job) Position() viewstate.LngLat {
	return viewstate.LngLat{Lon: job.Lon, Lat: job.Lat}
}

// FromHTTP builds a job from the parts of an HTTP request.
// Explicit mode (width, height, lat, lon and zoom all given) takes precedence over tile mode (a path ending in /{z}/{x}/{y}.png).
func FromHTTP(path string, query url.Values, body []byte) (*Job, errorsx.Error) {
	job := NewJob(0)

	job.Scene = strings.TrimSpace(query.Get("scene"))
	if job.Scene == "" {
		if len(body) == 0 {
			return nil, errorsx.Wrap(ErrNoScene)
		}
		job.SceneContent = body
	}

	var err errorsx.Error
	if hasAll(query, explicitParams) {
		err = job.fillExplicit(query)
	} else if matches := tilePathRegexp.FindStringSubmatch(path); matches != nil {
		err = job.fillTile(matches[1:])
	} else {
		return nil, errorsx.Wrap(ErrInsufficientParameters, "path", path)
	}
	if err != nil {
		return nil, err
	}

	err = job.fillOptional(query)
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (job *Job) fillExplicit(query url.Values) errorsx.Error {
	job.Mode = ModeExplicit

	var err errorsx.Error
	job.Width, err = parseInt(query, "width")
	if err != nil {
		return err
	}
	job.Height, err = parseInt(query, "height")
	if err != nil {
		return err
	}
	if job.Width <= 0 || job.Height <= 0 {
		return errorsx.Errorf("width and height must be positive, got %dx%d", job.Width, job.Height)
	}

	job.Lat, err = parseFloat(query, "lat")
	if err != nil {
		return err
	}
	job.Lon, err = parseFloat(query, "lon")
	if err != nil {
		return err
	}
	job.Zoom, err = parseFloat(query, "zoom")
	if err != nil {
		return err
	}

	return nil
}

func (job *Job) fillTile(xyz []string) errorsx.Error {
	ints, err := stringsToInts(xyz...)
	if err != nil {
		return errorsx.Wrap(err, "tile", strings.Join(xyz, "/"))
	}

	tc := TileCoord{Z: ints[0], X: ints[1], Y: ints[2]}
	if !tc.IsValid() {
		return errorsx.Errorf("tile %d/%d/%d does not exist", tc.Z, tc.X, tc.Y)
	}

	job.Mode = ModeTile
	job.Tile = &tc
	job.Width = TileSize
	job.Height = TileSize
	job.Zoom = float64(tc.Z)
	job.Lon, job.Lat = BoundsCenter(TileBounds(tc))

	return nil
}

// fillOptional reads the parameters that have defaults. They are not carried over from earlier requests.
func (job *Job) fillOptional(query url.Values) errorsx.Error {
	var err errorsx.Error

	if query.Get("tilt") != "" {
		job.Tilt, err = parseFloat(query, "tilt")
		if err != nil {
			return err
		}
	}

	if query.Get("rotation") != "" {
		job.Rotation, err = parseFloat(query, "rotation")
		if err != nil {
			return err
		}
	}

	if query.Get("density") != "" {
		job.Density, err = parseFloat(query, "density")
		if err != nil {
			return err
		}
	}
	job.Density = viewstate.ClampDensity(job.Density)

	return nil
}

func hasAll(query url.Values, names []string) bool {
	for _, name := range names {
		if strings.TrimSpace(query.Get(name)) == "" {
			return false
		}
	}
	return true
}

func parseInt(query url.Values, name string) (int, errorsx.Error) {
	value := strings.TrimSpace(query.Get(name))
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, errorsx.Errorf("couldn't parse %q (%q) as an integer", name, value)
	}
	return i, nil
}

func parseFloat(query url.Values, name string) (float64, errorsx.Error) {
	value := strings.TrimSpace(query.Get(name))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errorsx.Errorf("couldn't parse %q (%q) as a number", name, value)
	}
	return f, nil
}

func stringsToInts(s ...string) ([]int, error) {
	var ints []int
	for _, str := range s {
		i, err := strconv.Atoi(str)
		if err != nil {
			return nil, err
		}
		ints = append(ints, i)
	}

	return ints, nil
}
