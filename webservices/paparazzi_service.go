package webservices

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/paparazzi"
	"github.com/jamesrr39/ownmap-paparazzi/renderjob"
	"github.com/jamesrr39/ownmap-paparazzi/worker"
	"github.com/pkg/profile"
)

const DefaultMaxBodyBytes = 1 << 20

// Dispatcher hands work to an idle Paparazzi. *worker.Pool is one.
type Dispatcher interface {
	Do(ctx context.Context, fn worker.WorkFunc) errorsx.Error
	Stats() []worker.Stats
}

type PaparazziService struct {
	logger        *logpkg.Logger
	dispatcher    Dispatcher
	shouldProfile bool
	maxBodyBytes  int64
	chi.Router
}

func NewPaparazziService(logger *logpkg.Logger, dispatcher Dispatcher, shouldProfile bool, maxBodyBytes int64) *PaparazziService {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	ps := &PaparazziService{logger, dispatcher, shouldProfile, maxBodyBytes, chi.NewRouter()}

	ps.Use(httpextra.CorsAllowAnythingMiddleware())
	ps.Get("/check", ps.handleCheck)
	ps.Get("/status", ps.handleStatus)
	ps.Get("/*", ps.handleRender)
	ps.Post("/*", ps.handleRender)

	return ps
}

func (ps *PaparazziService) handleCheck(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "OK")
}

type statusResponse struct {
	Workers []worker.Stats `json:"workers"`
}

func (ps *PaparazziService) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{ps.dispatcher.Stats()})
}

func (ps *PaparazziService) handleRender(w http.ResponseWriter, r *http.Request) {
	if ps.shouldProfile {
		defer profile.Start().Stop()
	}

	ctx := r.Context()

	endSpan := startSpan(ctx, "parse request")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ps.maxBodyBytes))
	if err != nil {
		endSpan()
		errorsx.HTTPError(w, ps.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	job, jobErr := renderjob.FromHTTP(r.URL.Path, r.URL.Query(), body)
	endSpan()
	if jobErr != nil {
		errorsx.HTTPError(w, ps.logger, jobErr, http.StatusBadRequest)
		return
	}

	ps.logger.Debug("job %s: %s mode, %dx%d@%v at (%f, %f) zoom %v", job.ID, job.Mode, job.Width, job.Height, job.Density, job.Lon, job.Lat, job.Zoom)

	var pngBytes []byte
	var processErr errorsx.Error

	endSpan = startSpan(ctx, "render")
	dispatchErr := ps.dispatcher.Do(ctx, func(p *paparazzi.Paparazzi) {
		pngBytes, processErr = p.Process(job)
	})
	endSpan()

	if dispatchErr != nil {
		errorsx.HTTPError(w, ps.logger, dispatchErr, http.StatusServiceUnavailable)
		return
	}

	if processErr != nil {
		statusCode := http.StatusBadRequest
		if errorsx.Cause(processErr) == paparazzi.ErrResourceAllocation {
			statusCode = http.StatusInternalServerError
		}
		errorsx.HTTPError(w, ps.logger, processErr, statusCode)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, err = w.Write(pngBytes)
	if err != nil {
		switch err.(type) {
		case *net.OpError:
			// broken pipe (request cancelled). Do nothing
		default:
			ps.logger.Error("couldn't write image for job %s: %s", job.ID, err)
		}
	}
}

// startSpan starts a trace span if the request is being traced
func startSpan(ctx context.Context, name string) func() {
	if ctx.Value(tracing.TracerCtxKey) == nil || ctx.Value(tracing.TraceCtxKey) == nil {
		return func() {}
	}

	span := tracing.StartSpan(ctx, name)
	return func() {
		span.End(ctx)
	}
}
