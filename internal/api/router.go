// Package api serves the REST query boundary and mounts the real-time and
// webhook handlers next to it.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/ingest"
	"github.com/stepherg/sentinel/internal/metrics"
	"github.com/stepherg/sentinel/internal/store"
)

// Options carries the router's collaborators. WS and Webhook are optional.
type Options struct {
	Store         *store.Store
	Ingester      *ingest.Ingester
	Hub           *events.Hub
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	AllowedOrigin string
	WS            http.Handler
	Webhook       http.Handler
}

// APIHandler implements the REST routes.
type APIHandler struct {
	store    *store.Store
	ingester *ingest.Ingester
	hub      *events.Hub
	log      *zap.Logger
}

// NewRouter builds the complete HTTP surface.
func NewRouter(o Options) http.Handler {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &APIHandler{store: o.Store, ingester: o.Ingester, hub: o.Hub, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(o.Metrics.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sensors", h.ListSensors)
		r.Post("/sensors", h.CreateReading)
		r.Get("/sensors/{type}/history", h.SensorHistory)
		r.Post("/sensor", h.IngestPush)

		r.Get("/settings", h.GetSettings)
		r.Patch("/settings", h.PatchSettings)

		r.Get("/activity", h.ListActivity)
		r.Post("/activity", h.CreateActivity)
	})
	r.Get("/health", h.Health)
	r.Handle("/metrics", o.Metrics.Handler())
	if o.WS != nil {
		r.Handle("/ws", o.WS)
	}
	if o.Webhook != nil {
		r.Post("/webhook/events", o.Webhook.ServeHTTP)
	}

	origin := o.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{origin}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(r)
}

// requestLogger logs one line per API request. WebSocket upgrades are
// logged by the ws package instead.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
