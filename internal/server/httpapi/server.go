// Package httpapi serves the HTTP side of signoff: a health check, the
// publish hook that opens approval requests, and request status polling.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/validx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const shutdownTimeout = 10 * time.Second

type RequestLifecycle interface {
	Create(ctx context.Context, actingUserID string, packageID int64, title string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, requestID int64) (*models.ApprovalRequest, error)
}

type MembershipChecker interface {
	RequireMember(ctx context.Context, packageID int64, userID string) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	address   string
	logger    logging.Logger
	jwtSecret []byte
	validate  *validator.Validate
	packages  MembershipChecker
	requests  RequestLifecycle
	health    HealthCheck
}

func NewServer(address string, l logging.Logger, secretKey string, packages MembershipChecker,
	requests RequestLifecycle, health HealthCheck) (*Server, error) {
	if secretKey == "" {
		return nil, errors.New("secret key is required")
	}
	return &Server{
		address:   address,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
		validate:  validx.New(),
		packages:  packages,
		requests:  requests,
		health:    health,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/v1/hooks/packages/{packageID}/publish", s.publishHook)
		r.Get("/v1/requests/{requestID}", s.getRequest)
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(logging.WithCorrelationID(r.Context(), middleware.GetReqID(r.Context())))
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info(r.Context(), "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
