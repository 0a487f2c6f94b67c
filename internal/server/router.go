package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/internal/metrics"
	"github.com/taqastore/storefront/internal/middleware"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/internal/scheduler"
	"github.com/taqastore/storefront/internal/worker"
	"github.com/taqastore/storefront/pkg/logger"
)

// Probe checks one dependency for readiness.
type Probe func(ctx context.Context) error

// Deps bundles everything the HTTP surface serves from.
type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	Broker   queue.Broker
	Results  queue.ResultBackend
	Registry *worker.Registry
	Schedule *scheduler.Schedule
	// ReadyProbes are checked by /readyz; the key names the dependency.
	ReadyProbes map[string]Probe
	StartedAt   time.Time
}

// NewRouter assembles the router with the full middleware chain.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("http")
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now().UTC()
	}

	h := &handler{deps: deps, log: log}
	auth := middleware.NewTokenAuth(deps.Config.Server.Tokens(), log)
	rateLimiter := middleware.NewRateLimiter(deps.Config.Server.RateLimitRPS, deps.Config.Server.RateLimitBurst, log)
	rateLimiter.StartCleanup(10 * time.Minute)
	cors := middleware.NewCORSMiddleware(deps.Config.CORS.Origins())

	r := mux.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogging(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler)
	r.Use(rateLimiter.Handler)
	r.Use(middleware.RequestTimeout(deps.Config.Server.RequestTimeout))
	r.Use(middleware.InFlightLimit(deps.Config.Server.MaxInFlight))

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ready).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/version", h.version).Methods(http.MethodGet)
	r.HandleFunc("/internal/system", h.system).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tasks", auth.Wrap(h.enqueueTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", h.taskStatus).Methods(http.MethodGet)
	api.HandleFunc("/queues/{name}", h.queueDepth).Methods(http.MethodGet)
	api.HandleFunc("/queues/{name}", auth.Wrap(h.purgeQueue)).Methods(http.MethodDelete)
	api.HandleFunc("/schedule", h.schedule).Methods(http.MethodGet)

	return r
}
