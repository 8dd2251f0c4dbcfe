package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fixora/internal/config"
	"fixora/internal/domain"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const healthPath = "/api/health"

// HealthChecker reports whether the shared store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the REST transport of the booking core.
type Server struct {
	cfg      config.APIConfig
	bookings domain.BookingLifecycle
	matcher  domain.Matcher
	exporter BookingExporter
	health   HealthChecker
	auth     *HTTPAuth
	logger   *zerolog.Logger
	server   *http.Server
}

func NewServer(
	cfg config.APIConfig,
	bookings domain.BookingLifecycle,
	matcher domain.Matcher,
	exporter BookingExporter,
	health HealthChecker,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	apiLogger := logger.With().Str("component", "http").Logger()

	s := &Server{
		cfg:      cfg,
		bookings: bookings,
		matcher:  matcher,
		exporter: exporter,
		health:   health,
		auth:     NewHTTPAuth(cfg),
		logger:   &apiLogger,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests and embedding.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.auth.Wrap)

	r.Get(healthPath, s.handleHealth)

	r.Route("/api/professionals", func(r chi.Router) {
		r.Get("/", s.handleListProfessionals)
		r.Get("/{id}", s.handleGetProfessional)
		r.Put("/{id}", s.handlePutProfessional)
	})

	r.Route("/api/bookings", func(r chi.Router) {
		r.Post("/", s.handleCreateBooking)
		r.Get("/customer/{customerId}", s.handleCustomerBookings)
		r.Get("/customer/{customerId}/export", s.handleCustomerExport)
		r.Get("/professional/{professionalId}", s.handleProfessionalBookings)
		r.Get("/{id}", s.handleGetBooking)
		r.Put("/{id}", s.handlePutBooking)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
