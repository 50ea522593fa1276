package paparazzi

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"sync"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/fetchqueue"
	"github.com/jamesrr39/ownmap-paparazzi/fonts"
	"github.com/jamesrr39/ownmap-paparazzi/mapengine"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
	"github.com/jamesrr39/ownmap-paparazzi/renderjob"
	"github.com/jamesrr39/ownmap-paparazzi/scenecache"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
)

var ErrResourceAllocation = offscreen.ErrResourceAllocation

// NetworkQueue is the asynchronous fetch layer behind the engine
type NetworkQueue interface {
	// Process delivers completed fetches and starts pending ones, without blocking
	Process() int
	// Finish stops intake and waits for fetches in flight
	Finish()
}

type Options struct {
	MaxWait        time.Duration
	FrameDeltaHint float64
	PollInterval   time.Duration
	// SuperSample is the fixed number of engine pixels per output pixel, along each axis
	SuperSample float64
	// Downsampler defaults to offscreen.DefaultDownsampler()
	Downsampler    *offscreen.Downsampler
	MaxSurfaceSize int
	// InitialSize, when set, is allocated up front, so an allocation failure is found at startup
	InitialSize viewstate.Size
	NowFunc     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SuperSample <= 0 {
		o.SuperSample = viewstate.DefaultSuperSampleFactor
	}
	if o.Downsampler == nil {
		downsampler := offscreen.DefaultDownsampler()
		o.Downsampler = &downsampler
	}
	if o.NowFunc == nil {
		o.NowFunc = time.Now
	}
	return o
}

type Status struct {
	State      State               `json:"state"`
	View       viewstate.ViewState `json:"view"`
	JobsServed int                 `json:"jobsServed"`
	LastSettle *SettleResult       `json:"lastSettle,omitempty"`
	Degraded   bool                `json:"degraded"`
	LastError  string              `json:"lastError,omitempty"`
}

// Paparazzi owns one engine, its graphics context and its framebuffers, and takes pictures of the map.
// It must only be used from one goroutine; only Status may be called from others.
type Paparazzi struct {
	logger  *logpkg.Logger
	engine  mapengine.Engine
	network NetworkQueue
	cache   *scenecache.Cache
	options Options

	gc      *offscreen.GraphicsContext
	buffer  *offscreen.AntiAliasedBuffer
	settler *Settler

	timerStart time.Time

	mu     sync.Mutex
	view   viewstate.ViewState
	status Status
}

func New(logger *logpkg.Logger, engine mapengine.Engine, network NetworkQueue, cache *scenecache.Cache, options Options) (*Paparazzi, errorsx.Error) {
	options = options.withDefaults()

	gc := offscreen.NewGraphicsContext(options.MaxSurfaceSize)
	err := engine.SetupGraphicsContext(gc)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	p := &Paparazzi{
		logger:  logger,
		engine:  engine,
		network: network,
		cache:   cache,
		options: options,
		gc:      gc,
		buffer:  offscreen.NewAntiAliasedBuffer(gc, *options.Downsampler),
	}

	p.settler = NewSettler(
		func() { network.Process() },
		engine.Update,
		options.MaxWait,
		options.FrameDeltaHint,
		options.PollInterval,
		options.NowFunc,
	)
	p.timerStart = options.NowFunc()

	if !options.InitialSize.IsZero() {
		err = p.SetSize(options.InitialSize)
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// NewSoftware creates a Paparazzi around the software map engine, with its own fetch queue.
func NewSoftware(logger *logpkg.Logger, client httpextra.Doer, fs gofs.Fs, cache *scenecache.Cache, fetchWorkers uint, options Options) (*Paparazzi, errorsx.Error) {
	queue := fetchqueue.NewQueue(logger, client, fs, fetchWorkers)
	engine := mapengine.NewMap(logger, queue, fonts.DefaultFont())

	return New(logger, engine, queue, cache, options)
}

func (p *Paparazzi) View() viewstate.ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.view
}

func (p *Paparazzi) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.status
	status.View = p.view
	if status.LastSettle != nil {
		lastSettle := *status.LastSettle
		status.LastSettle = &lastSettle
	}

	return status
}

func (p *Paparazzi) setState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
}

// updateView applies a change to the view state, under the status lock
func (p *Paparazzi) updateView(change func(view *viewstate.ViewState)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	change(&p.view)
}

func (p *Paparazzi) recordError(err errorsx.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.LastError = err.Error()
	if errorsx.Cause(err) == ErrResourceAllocation {
		p.status.Degraded = true
	}
}

func (p *Paparazzi) resetTimer() {
	p.timerStart = p.options.NowFunc()
}

// Settle pumps the network queue and updates the engine until the view is complete or MaxWait has passed.
func (p *Paparazzi) Settle() SettleResult {
	result := p.settler.Settle()

	if result.Done {
		p.logger.Debug("settled after %d iteration(s) in %s (%s since the last change)", result.Iterations, result.Elapsed, p.options.NowFunc().Sub(p.timerStart))
	} else {
		p.logger.Warn("view did not settle within %s (%d iterations). Rendering what has loaded so far", p.settler.MaxWait, result.Iterations)
	}

	p.mu.Lock()
	p.status.LastSettle = &result
	p.mu.Unlock()

	return result
}

func (p *Paparazzi) changed() {
	p.resetTimer()
	p.Settle()
}

// SetScene loads the scene at a path or URL.
// The same scene is loaded again only if the last attempt to load it failed.
func (p *Paparazzi) SetScene(scene string) {
	if scene == p.view.Scene {
		if !p.engine.SceneFailed() {
			return
		}
		p.logger.Info("scene %q failed to load last time, retrying", scene)
	}

	p.updateView(func(view *viewstate.ViewState) {
		view.Scene = scene
	})
	p.engine.LoadSceneAsync(scene)
	p.changed()
}

// SetSceneContent caches an inline scene document by its content hash, and loads it from the cache
func (p *Paparazzi) SetSceneContent(content []byte) errorsx.Error {
	if p.cache == nil {
		return errorsx.Errorf("no scene cache configured, cannot load an inline scene")
	}

	key, path, err := p.cache.Put(content)
	if err != nil {
		return errorsx.Wrap(err)
	}

	p.logger.Debug("inline scene %s cached at %q", key, path)

	p.SetScene(path)

	return nil
}

// SetSize resizes the view. Framebuffers are only reallocated when the pixel sizes change.
func (p *Paparazzi) SetSize(size viewstate.Size) errorsx.Error {
	size.Density = viewstate.ClampDensity(size.Density)

	if size == p.view.Size && p.buffer.Allocated() {
		return nil
	}

	engineWidth, engineHeight := size.EnginePixels(p.options.SuperSample)
	outWidth, outHeight := size.OutputPixels()

	err := p.buffer.SetSize(engineWidth, engineHeight, outWidth, outHeight)
	if err != nil {
		err = errorsx.Wrap(err, "size", size)
		p.recordError(err)
		return err
	}

	previousScale := p.view.Size.PixelScale(p.options.SuperSample)
	scale := size.PixelScale(p.options.SuperSample)

	p.updateView(func(view *viewstate.ViewState) {
		view.Size = size
	})
	p.engine.Resize(engineWidth, engineHeight)
	if scale != previousScale {
		p.engine.SetPixelScale(scale)
	}
	p.changed()

	return nil
}

func (p *Paparazzi) SetPosition(position viewstate.LngLat) {
	if position == p.view.Position {
		return
	}

	p.updateView(func(view *viewstate.ViewState) {
		view.Position = position
	})
	p.engine.SetPosition(position.Lon, position.Lat)
	p.changed()
}

func (p *Paparazzi) SetZoom(zoom float64) {
	if zoom == p.view.Zoom {
		return
	}

	p.updateView(func(view *viewstate.ViewState) {
		view.Zoom = zoom
	})
	p.engine.SetZoom(zoom)
	p.changed()
}

// SetTilt sets the tilt in degrees
func (p *Paparazzi) SetTilt(tilt float64) {
	if tilt == p.view.Tilt {
		return
	}

	p.updateView(func(view *viewstate.ViewState) {
		view.Tilt = tilt
	})
	p.engine.SetTilt(degreesToRadians(tilt))
	p.changed()
}

// SetRotation sets the rotation in degrees
func (p *Paparazzi) SetRotation(rotation float64) {
	if rotation == p.view.Rotation {
		return
	}

	p.updateView(func(view *viewstate.ViewState) {
		view.Rotation = rotation
	})
	p.engine.SetRotation(degreesToRadians(rotation))
	p.changed()
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Capture renders the current view and returns it, right side up, at output resolution.
func (p *Paparazzi) Capture() (*image.RGBA, errorsx.Error) {
	err := p.buffer.Bind()
	if err != nil {
		return nil, err
	}

	err = p.engine.Render()
	p.buffer.Unbind()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return p.buffer.Capture()
}

// Shoot waits for the current view to settle, then captures it as a PNG.
func (p *Paparazzi) Shoot() ([]byte, errorsx.Error) {
	defer p.setState(StateIdle)

	return p.shoot()
}

func (p *Paparazzi) shoot() ([]byte, errorsx.Error) {
	p.setState(StateSettling)
	p.Settle()

	p.setState(StateCapturing)
	img, err := p.Capture()
	if err != nil {
		p.recordError(err)
		return nil, err
	}

	buf := bytes.NewBuffer(nil)
	encodeErr := png.Encode(buf, img)
	if encodeErr != nil {
		return nil, errorsx.Wrap(encodeErr)
	}

	return buf.Bytes(), nil
}

// Process applies a job to the view and takes the picture.
// Tilt and rotation are always applied, so they are not carried over from a previous job.
func (p *Paparazzi) Process(job *renderjob.Job) ([]byte, errorsx.Error) {
	defer p.setState(StateIdle)

	p.setState(StateValidating)
	err := validateJob(job)
	if err != nil {
		p.recordError(err)
		return nil, err
	}

	p.setState(StateMutating)
	if job.Scene != "" {
		p.SetScene(job.Scene)
	} else {
		err = p.SetSceneContent(job.SceneContent)
		if err != nil {
			p.recordError(err)
			return nil, err
		}
	}

	err = p.SetSize(job.Size())
	if err != nil {
		return nil, err
	}

	p.SetPosition(job.Position())
	p.SetZoom(job.Zoom)
	p.SetTilt(job.Tilt)
	p.SetRotation(job.Rotation)

	pngBytes, err := p.shoot()
	if err != nil {
		return nil, errorsx.Wrap(err, "jobID", job.ID)
	}

	p.mu.Lock()
	p.status.State = StateResponding
	p.status.JobsServed++
	p.mu.Unlock()

	return pngBytes, nil
}

func validateJob(job *renderjob.Job) errorsx.Error {
	if job == nil {
		return errorsx.Errorf("no job")
	}
	if job.Scene == "" && len(job.SceneContent) == 0 {
		return errorsx.Wrap(renderjob.ErrNoScene, "jobID", job.ID)
	}
	if job.Width <= 0 || job.Height <= 0 {
		return errorsx.Errorf("job %s: width and height must be positive, got %dx%d", job.ID, job.Width, job.Height)
	}
	return nil
}

// Close tears down in order: outstanding fetches, the engine, the framebuffers, then the graphics context.
// Stopping intake is up to the caller.
func (p *Paparazzi) Close() errorsx.Error {
	p.network.Finish()
	p.engine.Release()
	p.buffer.Close()

	return p.gc.Close()
}
