// Package api serves stored valuations and recompute triggers over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/metrics"
	"github.com/kelsos/realms-tvl/internal/models"
)

// Service is the valuation surface the handlers depend on.
type Service interface {
	Organizations() []models.OrganizationRoot
	LatestFleet(ctx context.Context) (models.FleetValuation, error)
	FleetHistory(ctx context.Context, limit int) ([]models.FleetValuation, error)
	LatestOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error)
	OrganizationHistory(ctx context.Context, programID string, limit int) ([]models.OrganizationValuation, error)
	TriggerFleet(ctx context.Context) (models.RunID, error)
	TriggerOrganization(ctx context.Context, programID string) (models.OrganizationValuation, error)
	Run(id models.RunID) models.Run
}

// Pinger checks a dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service Service
	pinger  Pinger
}

// NewRouter returns the HTTP routes. pinger may be nil.
func NewRouter(service Service, pinger Pinger) http.Handler {
	h := &Handler{service: service, pinger: pinger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/tvl", func(r chi.Router) {
		r.Get("/latest", h.latestFleet)
		r.Get("/history", h.fleetHistory)
		r.Post("/update", h.triggerFleet)
		// Legacy GET trigger.
		r.Get("/update", h.triggerFleet)
		r.Get("/runs/{id}", h.run)

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", h.organizations)
			r.Get("/{id}/latest", h.latestOrganization)
			r.Get("/{id}/history", h.organizationHistory)
			r.Post("/{id}/update", h.triggerOrganization)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// NewServer wraps handler in an http.Server with sane timeouts. Recompute
// triggers may run for minutes, so there is no write timeout.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
