// Package api serves the geospatial layers and the address lookup over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/address"
	"github.com/emsv/geovisor/internal/geospatial"
	"github.com/emsv/geovisor/internal/metrics"
)

// AddressLookup resolves addresses to references.
type AddressLookup interface {
	Lookup(ctx context.Context, street, number string, includeFeature bool) (address.Result, error)
}

// Limits are the default page sizes per endpoint.
type Limits struct {
	Buffers   int
	Points    int
	Shadows   int
	Buildings int
}

// Options configures the router.
type Options struct {
	Store          geospatial.Store
	Addresses      AddressLookup
	Limits         Limits
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	Metrics        *metrics.HTTPMetrics
	// Gatherer backs GET /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// Server holds the handler dependencies.
type Server struct {
	store     geospatial.Store
	addresses AddressLookup
	limits    Limits
	metrics   *metrics.HTTPMetrics
}

// NewRouter builds the HTTP handler with its middleware stack.
func NewRouter(opts Options) http.Handler {
	s := &Server{
		store:     opts.Store,
		addresses: opts.Addresses,
		limits:    opts.Limits,
		metrics:   opts.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog(opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(opts.RateLimit, opts.RateBurst))

		r.Get("/buffers", s.buffers)
		r.Post("/points", s.insertPoint)
		r.Get("/points/count", s.countPoints)
		r.Get("/points/features", s.pointFeatures)
		r.Get("/shadows/features", s.shadowFeatures)
		r.Post("/shadows/zonal", s.shadowZonal)
		r.Get("/buildings/features", s.buildingFeatures)
		r.Get("/buildings/by_ref", s.buildingByRef)
		r.Get("/address/lookup", s.addressLookup)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return r
}

// fail writes the error response for err and records it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if s.metrics != nil {
		s.metrics.RecordError(routePattern(r), kind)
	}

	log := zap.L().With(
		zap.String("component", "api"),
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("path", r.URL.Path),
	)
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed", zap.String("error_type", kind), zap.Error(err))
	} else {
		log.Debug("api: request rejected", zap.String("error_type", kind), zap.Error(err))
	}

	writeJSON(w, status, errorBody{Error: clientMessage(err)})
}

func (s *Server) writeCollection(w http.ResponseWriter, r *http.Request, fc geospatial.FeatureCollection) {
	if s.metrics != nil {
		s.metrics.RecordFeatures(routePattern(r), len(fc.Features))
	}
	writeJSON(w, http.StatusOK, fc)
}
