package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contactlink/internal/config"
	"contactlink/internal/metrics"
	"contactlink/internal/middleware"
)

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	Logger    *slog.Logger
	Identify  *IdentifyHandler
	Health    *HealthHandler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	CORS      config.CORSConfig
	Limiter   middleware.Counter
	RateLimit middleware.RateLimitOptions
}

// NewRouter wires routes and middleware.
func NewRouter(d RouterDeps) http.Handler {
	countRequests := middleware.Metrics(d.Metrics)

	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(countRequests))

	identify := middleware.RateLimiter(d.Limiter, d.RateLimit, d.Metrics, d.Logger)(http.HandlerFunc(d.Identify.Handle))
	router.Handle("/identify", identify).Methods(http.MethodPost)
	router.Handle("/api/identify", identify).Methods(http.MethodPost)

	router.HandleFunc("/api", Welcome).Methods(http.MethodGet)
	router.HandleFunc("/health", d.Health.Health).Methods(http.MethodGet)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// mux skips Use middleware for these, so they are counted here.
	router.NotFoundHandler = countRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}))
	router.MethodNotAllowedHandler = countRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}))

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.SplitList(d.CORS.AllowedOrigins),
		AllowedMethods:   config.SplitList(d.CORS.AllowedMethods),
		AllowedHeaders:   config.SplitList(d.CORS.AllowedHeaders),
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: d.CORS.AllowCredentials,
		MaxAge:           d.CORS.MaxAge,
	})

	return middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(d.Logger),
		middleware.Logger(d.Logger),
		middleware.Middleware(corsHandler),
	)(router)
}
