package renderjob

import (
	"net/url"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxMercatorLat = 85.0511287798066

func TestTileBounds(t *testing.T) {
	tests := []struct {
		Name      string
		Tile      TileCoord
		MinLon    float64
		MaxLon    float64
		MinLat    float64
		MaxLat    float64
		CenterLon float64
		CenterLat float64
	}{
		{"whole world", TileCoord{0, 0, 0}, -180, 180, -maxMercatorLat, maxMercatorLat, 0, 0},
		{"north east quarter", TileCoord{1, 1, 0}, 0, 180, 0, maxMercatorLat, 90, maxMercatorLat / 2},
		{"south west quarter", TileCoord{1, 0, 1}, -180, 0, -maxMercatorLat, 0, -90, -maxMercatorLat / 2},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			bounds := TileBounds(test.Tile)
			assert.InDelta(t, test.MinLon, bounds.MinLon, 1e-9)
			assert.InDelta(t, test.MaxLon, bounds.MaxLon, 1e-9)
			assert.InDelta(t, test.MinLat, bounds.MinLat, 1e-9)
			assert.InDelta(t, test.MaxLat, bounds.MaxLat, 1e-9)

			lon, lat := BoundsCenter(bounds)
			assert.InDelta(t, test.CenterLon, lon, 1e-9)
			assert.InDelta(t, test.CenterLat, lat, 1e-9)
		})
	}
}

func TestTileBounds_matchesMaptile(t *testing.T) {
	tiles := []TileCoord{
		{Z: 3, X: 4, Y: 2},
		{Z: 10, X: 301, Y: 385},
		{Z: 15, X: 16384, Y: 10895},
	}

	for _, tc := range tiles {
		bound := maptile.New(uint32(tc.X), uint32(tc.Y), maptile.Zoom(tc.Z)).Bound()
		bounds := TileBounds(tc)

		assert.InDelta(t, bound.Min.Lon(), bounds.MinLon, 1e-6)
		assert.InDelta(t, bound.Max.Lon(), bounds.MaxLon, 1e-6)
		assert.InDelta(t, bound.Min.Lat(), bounds.MinLat, 1e-6)
		assert.InDelta(t, bound.Max.Lat(), bounds.MaxLat, 1e-6)
	}
}

func TestTileCoord_IsValid(t *testing.T) {
	assert.True(t, TileCoord{0, 0, 0}.IsValid())
	assert.True(t, TileCoord{2, 3, 3}.IsValid())
	assert.False(t, TileCoord{2, 4, 0}.IsValid())
	assert.False(t, TileCoord{2, 0, 4}.IsValid())
	assert.False(t, TileCoord{-1, 0, 0}.IsValid())
	assert.False(t, TileCoord{31, 0, 0}.IsValid())
}

func TestFromHTTP_explicit(t *testing.T) {
	query := url.Values{}
	query.Set("scene", "test.yaml")
	query.Set("lat", "40.7")
	query.Set("lon", "-74.0")
	query.Set("zoom", "10")
	query.Set("width", "512")
	query.Set("height", "512")

	job, err := FromHTTP("/", query, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeExplicit, job.Mode)
	assert.Equal(t, "test.yaml", job.Scene)
	assert.Nil(t, job.SceneContent)
	assert.Equal(t, 512, job.Width)
	assert.Equal(t, 512, job.Height)
	assert.Equal(t, 40.7, job.Lat)
	assert.Equal(t, -74.0, job.Lon)
	assert.Equal(t, 10.0, job.Zoom)
	assert.Equal(t, 0.0, job.Tilt)
	assert.Equal(t, 0.0, job.Rotation)
	assert.Equal(t, 1.0, job.Density)
	assert.NotEmpty(t, job.ID)
}

func TestFromHTTP_explicitTakesPrecedenceOverTilePath(t *testing.T) {
	query := url.Values{
		"scene":  {"test.yaml"},
		"lat":    {"1"},
		"lon":    {"2"},
		"zoom":   {"3"},
		"width":  {"100"},
		"height": {"50"},
	}

	job, err := FromHTTP("/4/5/6.png", query, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeExplicit, job.Mode)
	assert.Nil(t, job.Tile)
	assert.Equal(t, 100, job.Width)
	assert.Equal(t, 3.0, job.Zoom)
}

func TestFromHTTP_tile(t *testing.T) {
	job, err := FromHTTP("/tiles/1/1/0.png", url.Values{"scene": {"test.yaml"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeTile, job.Mode)
	require.NotNil(t, job.Tile)
	assert.Equal(t, TileCoord{Z: 1, X: 1, Y: 0}, *job.Tile)
	assert.Equal(t, 256, job.Width)
	assert.Equal(t, 256, job.Height)
	assert.Equal(t, 1.0, job.Zoom)
	assert.InDelta(t, 90, job.Lon, 1e-9)
	assert.InDelta(t, maxMercatorLat/2, job.Lat, 1e-9)
}

func TestFromHTTP_optionals(t *testing.T) {
	tests := []struct {
		Name             string
		Query            url.Values
		ExpectedTilt     float64
		ExpectedRotation float64
		ExpectedDensity  float64
	}{
		{"defaults", url.Values{}, 0, 0, 1},
		{"given", url.Values{"tilt": {"30"}, "rotation": {"-45.5"}, "density": {"2"}}, 30, -45.5, 2},
		{"density is clamped", url.Values{"density": {"0.5"}}, 0, 0, 1},
		{"empty values are defaults", url.Values{"tilt": {""}, "rotation": {""}, "density": {""}}, 0, 0, 1},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			test.Query.Set("scene", "test.yaml")

			job, err := FromHTTP("/0/0/0.png", test.Query, nil)
			require.NoError(t, err)

			assert.Equal(t, test.ExpectedTilt, job.Tilt)
			assert.Equal(t, test.ExpectedRotation, job.Rotation)
			assert.Equal(t, test.ExpectedDensity, job.Density)
		})
	}
}

func TestFromHTTP_inlineScene(t *testing.T) {
	body := []byte("scene: {}\n")

	job, err := FromHTTP("/0/0/0.png", url.Values{}, body)
	require.NoError(t, err)

	assert.Equal(t, "", job.Scene)
	assert.Equal(t, body, job.SceneContent)

	// the scene parameter wins over the body
	job, err = FromHTTP("/0/0/0.png", url.Values{"scene": {"a.yaml"}}, body)
	require.NoError(t, err)

	assert.Equal(t, "a.yaml", job.Scene)
	assert.Nil(t, job.SceneContent)
}

func TestFromHTTP_errors(t *testing.T) {
	full := func() url.Values {
		return url.Values{
			"scene":  {"test.yaml"},
			"lat":    {"40.7"},
			"lon":    {"-74.0"},
			"zoom":   {"10"},
			"width":  {"512"},
			"height": {"512"},
		}
	}

	for _, name := range explicitParams {
		for _, missing := range []string{"absent", "empty"} {
			t.Run("insufficient parameters: "+name+" "+missing, func(t *testing.T) {
				query := full()
				if missing == "absent" {
					query.Del(name)
				} else {
					query.Set(name, "")
				}

				job, err := FromHTTP("/render", query, nil)
				require.Error(t, err)
				assert.Nil(t, job)
				assert.Equal(t, ErrInsufficientParameters, errorsx.Cause(err))
			})
		}
	}

	tests := []struct {
		Name  string
		Path  string
		Query url.Values
		Body  []byte
	}{
		{"no scene", "/0/0/0.png", url.Values{}, nil},
		{"no scene, empty body", "/0/0/0.png", url.Values{}, []byte{}},
		{"bad width", "/", url.Values{"scene": {"s"}, "lat": {"1"}, "lon": {"1"}, "zoom": {"1"}, "width": {"abc"}, "height": {"1"}}, nil},
		{"negative height", "/", url.Values{"scene": {"s"}, "lat": {"1"}, "lon": {"1"}, "zoom": {"1"}, "width": {"10"}, "height": {"-1"}}, nil},
		{"bad lat", "/", url.Values{"scene": {"s"}, "lat": {"north"}, "lon": {"1"}, "zoom": {"1"}, "width": {"10"}, "height": {"10"}}, nil},
		{"NaN zoom", "/", url.Values{"scene": {"s"}, "lat": {"1"}, "lon": {"1"}, "zoom": {"NaN"}, "width": {"10"}, "height": {"10"}}, nil},
		{"bad tilt", "/0/0/0.png", url.Values{"scene": {"s"}, "tilt": {"steep"}}, nil},
		{"tile out of range", "/1/2/0.png", url.Values{"scene": {"s"}}, nil},
		{"tile path without png suffix", "/1/0/0", url.Values{"scene": {"s"}}, nil},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			job, err := FromHTTP(test.Path, test.Query, test.Body)
			require.Error(t, err)
			assert.Nil(t, job)
		})
	}
}

func TestFromHTTP_errorNamesParameter(t *testing.T) {
	query := url.Values{"scene": {"s"}, "lat": {"1"}, "lon": {"west"}, "zoom": {"1"}, "width": {"10"}, "height": {"10"}}

	_, err := FromHTTP("/", query, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"lon"`)
}
