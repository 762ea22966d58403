package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/querykit/health"
	"github.com/jonwraymond/querykit/observe"
)

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(a.logger))

	r.Route("/items", func(r chi.Router) {
		r.Get("/", a.handleListItems)
		r.Post("/", a.handleAddItem)
		r.Get("/{id}", a.handleGetItem)
		r.Patch("/{id}", a.handleRenameItem)
		r.Delete("/{id}", a.handleDeleteItem)
		r.Get("/{id}/details", a.handleGetItemDetails)
		r.Patch("/{id}/details", a.handleRenameItemDetails)
	})

	r.Post("/invalidate", a.handleInvalidate)
	r.Post("/visibility", a.handleVisibility)
	r.Get("/cache", a.handleCache)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", a.handleListEvents)
		r.Delete("/", a.handleClearEvents)
		r.Delete("/{id}", a.handleRemoveEvent)
		r.Put("/filter", a.handleSetFilter)
		r.Delete("/filter", a.handleResetFilter)
		r.Post("/filter/{type}", a.handleToggleFilter)
	})

	health.RegisterHandlers(r, a.health)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

// requestLogger logs one line per request.
func requestLogger(logger observe.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info(r.Context(), "http request",
				observe.Field{Key: "method", Value: r.Method},
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "status", Value: ww.Status()},
				observe.Field{Key: "bytes", Value: ww.BytesWritten()},
				observe.Field{Key: "duration_ms", Value: float64(time.Since(start).Milliseconds())},
				observe.Field{Key: "request_id", Value: chimiddleware.GetReqID(r.Context())},
			)
		})
	}
}
