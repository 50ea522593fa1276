package webservices

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/logpkg"
)

type RouterOptions struct {
	// Tracer is optional. Every request is traced when it is set.
	Tracer        *tracing.Tracer
	ShouldProfile bool
	MaxBodyBytes  int64
	LogRequests   bool
}

func NewRouter(logger *logpkg.Logger, dispatcher Dispatcher, options RouterOptions) chi.Router {
	router := chi.NewRouter()
	if options.LogRequests {
		router.Use(middleware.DefaultLogger)
	}
	if options.Tracer != nil {
		router.Use(tracing.Middleware(options.Tracer))
	}

	router.Mount("/", NewPaparazziService(logger, dispatcher, options.ShouldProfile, options.MaxBodyBytes))

	return router
}
