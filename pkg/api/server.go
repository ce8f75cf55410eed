package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/telesis-app/telesis/pkg/billing"
	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/materials"
	"github.com/telesis-app/telesis/pkg/middleware"
	"github.com/telesis-app/telesis/pkg/observability"
	"github.com/telesis-app/telesis/pkg/orgs"
	"github.com/telesis-app/telesis/pkg/security"
)

// Default per-route rate limits
var (
	materialsLimit = middleware.RouteLimit{Resource: "materials", MaxRequests: 60, Window: time.Minute}
	orgsLimit      = middleware.RouteLimit{Resource: "organizations", MaxRequests: 30, Window: time.Minute}
)

// Server is the Telesis API server
type Server struct {
	router *mux.Router

	logger  *observability.Logger
	metrics *observability.Metrics
	secLog  *security.Logger

	guard     *middleware.AuthGuard
	rateLimit *middleware.RateLimitMiddleware
	boundary  *middleware.OrgBoundary

	health *observability.HealthChecker

	tracingEnabled bool
}

// Deps carries the wired services the server serves
type Deps struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	SecLog  *security.Logger

	Guard     *middleware.AuthGuard
	RateLimit *middleware.RateLimitMiddleware
	Boundary  *middleware.OrgBoundary

	Health *observability.HealthChecker

	OrgHandlers      *orgs.Handlers
	MaterialHandlers *materials.Handlers
	BillingHandlers  *billing.Handlers
	SecurityHandlers *security.Handlers

	TracingEnabled bool
}

// NewServer creates the API server and mounts all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		secLog:         deps.SecLog,
		guard:          deps.Guard,
		rateLimit:      deps.RateLimit,
		boundary:       deps.Boundary,
		health:         deps.Health,
		tracingEnabled: deps.TracingEnabled,
	}

	s.router.HandleFunc("/api/health", s.healthHandler).Methods(http.MethodGet)

	if deps.MaterialHandlers != nil {
		deps.MaterialHandlers.RegisterRoutes(s.router, s.guard, s.limitWith(materialsLimit))
	}
	if deps.OrgHandlers != nil {
		deps.OrgHandlers.RegisterRoutes(s.router, s.guard, s.limitWith(orgsLimit))
	}
	if deps.BillingHandlers != nil {
		deps.BillingHandlers.RegisterRoutes(s.router, s.guard, s.boundary)
	}
	if deps.SecurityHandlers != nil {
		// Operational surface, full auth required
		deps.SecurityHandlers.RegisterRoutes(s.router, s.guard.WithAuth)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", httputil.CodeNotFound)
	})

	return s
}

func (s *Server) limitWith(limit middleware.RouteLimit) func(http.Handler) http.Handler {
	if s.rateLimit == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return s.rateLimit.Handler(limit, next)
	}
}

// healthHandler serves the public health endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	httputil.WriteJSON(w, code, httputil.Envelope{
		Success: status.Status != "unhealthy",
		Data:    status,
	})
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router

	h = httputil.RecoveryMiddleware(s.logger)(h)
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	h = httputil.LoggingMiddleware(s.logger)(h)
	h = httputil.SecurityHeadersMiddleware(h)
	h = httputil.RequestIDMiddleware(h)
	if s.tracingEnabled {
		h = otelhttp.NewHandler(h, "telesis-api")
	}

	return h
}

// Router exposes the underlying router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
