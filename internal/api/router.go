// Package api exposes status changes, notification triggers, previews and status tokens over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/dispatcher"
	"hiring-notifications/internal/notify/status"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusService is satisfied by *status.Service.
type StatusService interface {
	ChangeStatus(ctx context.Context, orgID, applicantID, newStatus string) (*status.Result, error)
	Notify(ctx context.Context, orgID, applicantID, newStatus string) error
	Lookup(ctx context.Context, token string) (*models.StatusLookup, error)
}

// Previewer is satisfied by *dispatcher.Dispatcher.
type Previewer interface {
	Render(ctx context.Context, req dispatcher.Request) (*models.RenderedMessage, error)
}

// Check reports the readiness of one dependency.
type Check func(ctx context.Context) error

type Options struct {
	Status         StatusService
	Previewer      Previewer
	Checks         map[string]Check
	Logger         logger.Logger
	RequestTimeout time.Duration
}

type Server struct {
	status    StatusService
	previewer Previewer
	checks    map[string]Check
	logger    logger.Logger
}

// NewRouter builds the chi router served by the worker manager.
func NewRouter(opts Options) http.Handler {
	s := &Server{
		status:    opts.Status,
		previewer: opts.Previewer,
		checks:    opts.Checks,
		logger:    logger.Component(opts.Logger, "api"),
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Get("/status/{token}", s.lookupToken)
		r.Route("/orgs/{orgID}/applicants/{applicantID}", func(r chi.Router) {
			r.Put("/status", s.changeStatus)
			r.Post("/notifications", s.triggerNotification)
			r.Post("/preview", s.preview)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields)
			return
		}
		s.logger.Debug("request served", fields)
	})
}
