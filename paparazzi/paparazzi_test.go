package paparazzi

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs/mockfs"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
	"github.com/jamesrr39/ownmap-paparazzi/renderjob"
	"github.com/jamesrr39/ownmap-paparazzi/scenecache"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{0xff, 0, 0, 0xff}
	blue = color.RGBA{0, 0, 0xff, 0xff}
)

// mockEngine counts calls, and paints the top half of the screen red and the bottom half blue
type mockEngine struct {
	calls  map[string]int
	events *[]string
	gc     *offscreen.GraphicsContext

	done        bool
	sceneFailed bool

	scene           string
	width, height   int
	pixelScale      float64
	lon, lat        float64
	zoom            float64
	tilt, rotation  float64
	renderErr       errorsx.Error
	lastRenderBound *offscreen.Framebuffer
}

func newMockEngine(events *[]string) *mockEngine {
	return &mockEngine{calls: make(map[string]int), events: events, done: true}
}

func (e *mockEngine) LoadSceneAsync(path string) {
	e.calls["LoadSceneAsync"]++
	e.scene = path
}

func (e *mockEngine) SceneFailed() bool {
	return e.sceneFailed
}

func (e *mockEngine) SetupGraphicsContext(ctx *offscreen.GraphicsContext) errorsx.Error {
	e.calls["SetupGraphicsContext"]++
	e.gc = ctx
	return nil
}

func (e *mockEngine) Resize(width, height int) {
	e.calls["Resize"]++
	e.width, e.height = width, height
}

func (e *mockEngine) SetPixelScale(scale float64) {
	e.calls["SetPixelScale"]++
	e.pixelScale = scale
}

func (e *mockEngine) SetPosition(lon, lat float64) {
	e.calls["SetPosition"]++
	e.lon, e.lat = lon, lat
}

func (e *mockEngine) SetZoom(zoom float64) {
	e.calls["SetZoom"]++
	e.zoom = zoom
}

func (e *mockEngine) SetTilt(radians float64) {
	e.calls["SetTilt"]++
	e.tilt = radians
}

func (e *mockEngine) SetRotation(radians float64) {
	e.calls["SetRotation"]++
	e.rotation = radians
}

func (e *mockEngine) Update(dt float64) bool {
	e.calls["Update"]++
	return e.done
}

func (e *mockEngine) Render() errorsx.Error {
	e.calls["Render"]++
	if e.renderErr != nil {
		return e.renderErr
	}

	fb := e.gc.Bound()
	e.lastRenderBound = fb

	w, h := fb.Width(), fb.Height()
	draw.Draw(fb.Memory(), fb.ScreenRect(image.Rect(0, 0, w, h/2)), image.NewUniform(red), image.Point{}, draw.Src)
	draw.Draw(fb.Memory(), fb.ScreenRect(image.Rect(0, h/2, w, h)), image.NewUniform(blue), image.Point{}, draw.Src)

	return nil
}

func (e *mockEngine) Release() {
	e.calls["Release"]++
	*e.events = append(*e.events, "engine released")
}

type mockNetwork struct {
	processCalls int
	events       *[]string
}

func (n *mockNetwork) Process() int {
	n.processCalls++
	return 0
}

func (n *mockNetwork) Finish() {
	*n.events = append(*n.events, "fetches finished")
}

type testPaparazziType struct {
	p       *Paparazzi
	engine  *mockEngine
	network *mockNetwork
	fs      mockfs.MockFs
	events  *[]string
}

func newTestPaparazzi(t *testing.T, options Options) *testPaparazziType {
	events := &[]string{}
	engine := newMockEngine(events)
	network := &mockNetwork{events: events}
	fs := mockfs.NewMockFs()

	logger := logpkg.NewLogger(io.Discard, logpkg.LogLevelError)

	p, err := New(logger, engine, network, scenecache.New(fs, "/cache"), options)
	require.NoError(t, err)

	return &testPaparazziType{p, engine, network, fs, events}
}

func TestPaparazzi_settersAreIdempotent(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	p, engine := tp.p, tp.engine

	p.SetScene("a.yaml")
	p.SetPosition(viewstate.LngLat{Lon: 10, Lat: 20})
	p.SetZoom(5)
	p.SetTilt(30)
	p.SetRotation(45)
	require.NoError(t, p.SetSize(viewstate.Size{Width: 100, Height: 50, Density: 1}))

	assert.Equal(t, 6, engine.calls["Update"])
	allocations := p.gc.Allocations()

	// the same values again: nothing is pushed, settled or allocated
	p.SetScene("a.yaml")
	p.SetPosition(viewstate.LngLat{Lon: 10, Lat: 20})
	p.SetZoom(5)
	p.SetTilt(30)
	p.SetRotation(45)
	require.NoError(t, p.SetSize(viewstate.Size{Width: 100, Height: 50, Density: 1}))

	assert.Equal(t, 1, engine.calls["LoadSceneAsync"])
	assert.Equal(t, 1, engine.calls["SetPosition"])
	assert.Equal(t, 1, engine.calls["SetZoom"])
	assert.Equal(t, 1, engine.calls["SetTilt"])
	assert.Equal(t, 1, engine.calls["SetRotation"])
	assert.Equal(t, 1, engine.calls["Resize"])
	assert.Equal(t, 1, engine.calls["SetPixelScale"])
	assert.Equal(t, 6, engine.calls["Update"])
	assert.Equal(t, 6, tp.network.processCalls)
	assert.Equal(t, allocations, p.gc.Allocations())
}

func TestPaparazzi_SetScene_retriesFailedScene(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	p, engine := tp.p, tp.engine

	p.SetScene("a.yaml")
	engine.sceneFailed = true

	p.SetScene("a.yaml")
	assert.Equal(t, 2, engine.calls["LoadSceneAsync"])
	assert.Equal(t, "a.yaml", p.View().Scene)

	engine.sceneFailed = false

	p.SetScene("a.yaml")
	assert.Equal(t, 2, engine.calls["LoadSceneAsync"])
}

func TestPaparazzi_zeroIsAValue(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	p, engine := tp.p, tp.engine

	p.SetZoom(3)
	p.SetTilt(20)
	p.SetRotation(90)

	p.SetZoom(0)
	p.SetTilt(0)
	p.SetRotation(0)

	assert.Equal(t, 2, engine.calls["SetZoom"])
	assert.Equal(t, 2, engine.calls["SetTilt"])
	assert.Equal(t, 2, engine.calls["SetRotation"])
	assert.Equal(t, 0.0, engine.zoom)
	assert.Equal(t, 0.0, engine.tilt)
	assert.Equal(t, 0.0, engine.rotation)

	view := p.View()
	assert.Equal(t, 0.0, view.Zoom)
	assert.Equal(t, 0.0, view.Tilt)
	assert.Equal(t, 0.0, view.Rotation)
}

func TestPaparazzi_anglesArePushedInRadians(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})

	tp.p.SetTilt(60)
	tp.p.SetRotation(-90)

	assert.InDelta(t, math.Pi/3, tp.engine.tilt, 1e-12)
	assert.InDelta(t, -math.Pi/2, tp.engine.rotation, 1e-12)
	assert.Equal(t, 60.0, tp.p.View().Tilt)
}

func TestPaparazzi_SetSize(t *testing.T) {
	tests := []struct {
		Name                      string
		Size                      viewstate.Size
		EngineWidth, EngineHeight int
		OutputWidth, OutputHeight int
		ExpectedPixelScale        float64
	}{
		{"800x600", viewstate.Size{Width: 800, Height: 600, Density: 1}, 1600, 1200, 800, 600, 2},
		{"tile at density 2", viewstate.Size{Width: 256, Height: 256, Density: 2}, 1024, 1024, 512, 512, 4},
		{"fractional density", viewstate.Size{Width: 101, Height: 33, Density: 1.5}, 303, 99, 152, 50, 3},
		{"density below 1 is clamped", viewstate.Size{Width: 10, Height: 10, Density: 0.5}, 20, 20, 10, 10, 2},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			tp := newTestPaparazzi(t, Options{})

			err := tp.p.SetSize(test.Size)
			require.NoError(t, err)

			assert.Equal(t, test.EngineWidth, tp.engine.width)
			assert.Equal(t, test.EngineHeight, tp.engine.height)
			assert.Equal(t, test.ExpectedPixelScale, tp.engine.pixelScale)

			in := tp.p.buffer.Input()
			assert.Equal(t, test.EngineWidth, in.Width())
			assert.Equal(t, test.EngineHeight, in.Height())

			img, err := tp.p.Capture()
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, test.OutputWidth, test.OutputHeight), img.Bounds())
		})
	}
}

func TestPaparazzi_SetSize_reallocation(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	p := tp.p

	require.NoError(t, p.SetSize(viewstate.Size{Width: 100, Height: 100, Density: 1}))
	assert.Equal(t, 2, p.gc.Allocations())

	// same pixel sizes, different logical size: no reallocation
	require.NoError(t, p.SetSize(viewstate.Size{Width: 50, Height: 50, Density: 2}))
	assert.Equal(t, 2, p.gc.Allocations())
	assert.Equal(t, 2, tp.engine.calls["Resize"])

	require.NoError(t, p.SetSize(viewstate.Size{Width: 60, Height: 50, Density: 2}))
	assert.Equal(t, 4, p.gc.Allocations())
}

func TestPaparazzi_SetSize_pixelScaleOnlyPushedWhenChanged(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	p, engine := tp.p, tp.engine

	require.NoError(t, p.SetSize(viewstate.Size{Width: 100, Height: 100, Density: 1}))
	assert.Equal(t, 1, engine.calls["SetPixelScale"])

	// a new size at the same density keeps the scale
	require.NoError(t, p.SetSize(viewstate.Size{Width: 200, Height: 100, Density: 1}))
	assert.Equal(t, 2, engine.calls["Resize"])
	assert.Equal(t, 1, engine.calls["SetPixelScale"])

	require.NoError(t, p.SetSize(viewstate.Size{Width: 200, Height: 100, Density: 2}))
	assert.Equal(t, 2, engine.calls["SetPixelScale"])
	assert.Equal(t, 4.0, engine.pixelScale)
}

func TestPaparazzi_SetSize_allocationFailure(t *testing.T) {
	tp := newTestPaparazzi(t, Options{MaxSurfaceSize: 1000})
	p := tp.p

	require.NoError(t, p.SetSize(viewstate.Size{Width: 100, Height: 100, Density: 1}))

	err := p.SetSize(viewstate.Size{Width: 800, Height: 600, Density: 1})
	require.Error(t, err)
	assert.Equal(t, ErrResourceAllocation, errorsx.Cause(err))

	status := p.Status()
	assert.True(t, status.Degraded)
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, 100, status.View.Size.Width)
}

func TestNew_initialSizeAllocationFailure(t *testing.T) {
	logger := logpkg.NewLogger(io.Discard, logpkg.LogLevelError)
	events := &[]string{}

	_, err := New(logger, newMockEngine(events), &mockNetwork{events: events}, nil, Options{
		MaxSurfaceSize: 100,
		InitialSize:    viewstate.Size{Width: 800, Height: 600, Density: 1},
	})
	require.Error(t, err)
	assert.Equal(t, ErrResourceAllocation, errorsx.Cause(err))
}

func TestPaparazzi_settleTimeoutIsNotAnError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}

	tp := newTestPaparazzi(t, Options{MaxWait: 5 * time.Second, NowFunc: clock.Now})
	tp.engine.done = false

	job := &renderjob.Job{ID: "1", Scene: "a.yaml", Width: 4, Height: 4, Density: 1}

	pngBytes, err := tp.p.Process(job)
	require.NoError(t, err)
	assert.NotEmpty(t, pngBytes)

	status := tp.p.Status()
	require.NotNil(t, status.LastSettle)
	assert.False(t, status.LastSettle.Done)
	assert.Equal(t, 1, status.JobsServed)
	assert.Equal(t, StateIdle, status.State)
}

func TestPaparazzi_Process(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})

	job := &renderjob.Job{
		ID:       "1",
		Scene:    "test.yaml",
		Width:    512,
		Height:   512,
		Density:  1,
		Lon:      -74.0,
		Lat:      40.7,
		Zoom:     10,
		Tilt:     0,
		Rotation: 0,
	}

	pngBytes, err := tp.p.Process(job)
	require.NoError(t, err)

	img, err2 := png.Decode(bytes.NewReader(pngBytes))
	require.NoError(t, err2)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Bounds())

	// right side up: the engine's top half is the image's top half
	assert.Equal(t, color.NRGBA64{0xffff, 0, 0, 0xffff}, color.NRGBA64Model.Convert(img.At(256, 10)))
	assert.Equal(t, color.NRGBA64{0, 0, 0xffff, 0xffff}, color.NRGBA64Model.Convert(img.At(256, 500)))

	assert.Equal(t, "test.yaml", tp.engine.scene)
	assert.Equal(t, -74.0, tp.engine.lon)
	assert.Equal(t, 40.7, tp.engine.lat)
	assert.Equal(t, 10.0, tp.engine.zoom)
	assert.Equal(t, 1024, tp.engine.lastRenderBound.Width())

	assert.Equal(t, 1, tp.p.Status().JobsServed)
}

func TestPaparazzi_Process_tiltAndRotationAreNotSticky(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})

	job := &renderjob.Job{ID: "1", Scene: "a.yaml", Width: 4, Height: 4, Density: 1, Tilt: 40, Rotation: 10}
	_, err := tp.p.Process(job)
	require.NoError(t, err)

	job = &renderjob.Job{ID: "2", Scene: "a.yaml", Width: 4, Height: 4, Density: 1}
	_, err = tp.p.Process(job)
	require.NoError(t, err)

	assert.Equal(t, 0.0, tp.engine.tilt)
	assert.Equal(t, 0.0, tp.engine.rotation)
}

func TestPaparazzi_Process_inlineScene(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})

	writes := 0
	writeFileFunc := tp.fs.WriteFileFunc
	tp.fs.WriteFileFunc = func(path string, data []byte, perm os.FileMode) error {
		writes++
		return writeFileFunc(path, data, perm)
	}
	tp.p.cache = scenecache.New(tp.fs, "/cache")

	content := []byte("scene: {}\n")

	for i := 0; i < 2; i++ {
		job := &renderjob.Job{ID: "1", SceneContent: content, Width: 4, Height: 4, Density: 1}
		_, err := tp.p.Process(job)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, writes)
	assert.Equal(t, "/cache/"+scenecache.Key(content)+".yaml", tp.engine.scene)
	assert.Equal(t, 1, tp.engine.calls["LoadSceneAsync"])
}

func TestPaparazzi_Process_invalidJob(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})

	_, err := tp.p.Process(&renderjob.Job{ID: "1", Width: 4, Height: 4, Density: 1})
	require.Error(t, err)
	assert.Equal(t, renderjob.ErrNoScene, errorsx.Cause(err))

	_, err = tp.p.Process(&renderjob.Job{ID: "2", Scene: "a.yaml", Density: 1})
	require.Error(t, err)

	assert.Equal(t, 0, tp.engine.calls["LoadSceneAsync"])
	assert.Equal(t, 0, tp.engine.calls["Render"])
}

func TestPaparazzi_Process_renderError(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	tp.engine.renderErr = errorsx.Errorf("render failed")

	_, err := tp.p.Process(&renderjob.Job{ID: "1", Scene: "a.yaml", Width: 4, Height: 4, Density: 1})
	require.Error(t, err)

	assert.Nil(t, tp.p.gc.Bound())
	assert.Equal(t, 0, tp.p.Status().JobsServed)
}

func TestPaparazzi_Close(t *testing.T) {
	tp := newTestPaparazzi(t, Options{})
	require.NoError(t, tp.p.SetSize(viewstate.Size{Width: 4, Height: 4, Density: 1}))

	err := tp.p.Close()
	require.NoError(t, err)

	assert.Equal(t, []string{"fetches finished", "engine released"}, *tp.events)

	// the graphics context is gone
	_, err = tp.p.gc.NewFramebuffer(1, 1)
	require.Error(t, err)
}
