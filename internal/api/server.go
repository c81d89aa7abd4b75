package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/config"
	"analyst-sandbox/internal/dataset"
	"analyst-sandbox/internal/monitor"
	"analyst-sandbox/internal/storage"
	"analyst-sandbox/internal/turn"
	"analyst-sandbox/internal/validator"
)

// activeCounter reports running executions. *sandbox.Runner implements it.
type activeCounter interface {
	ActiveCount() int64
}

// Deps are the collaborators the server routes requests to. DB and Runner
// may be nil.
type Deps struct {
	Processor *turn.Processor
	Validator *validator.Validator
	Datasets  *dataset.Store
	DB        *storage.DB
	Runner    activeCounter
	Metrics   *monitor.Metrics
}

// Server is the main HTTP server for the analyst API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	deps       Deps
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	handlers := NewHandlers(deps.Processor, deps.Validator, deps.Datasets, deps.DB, deps.Metrics)

	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		deps:      deps,
		startTime: time.Now(),
	}

	if len(cfg.Security.AllowedKeys) == 0 {
		if cfg.Security.AllowUnauthenticated {
			log.Warn().Msg("no API keys configured, allow_unauthenticated is true, all requests will be accepted")
		} else {
			log.Warn().Msg("no API keys configured and allow_unauthenticated is false, all requests will be rejected")
		}
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	h := s.handlers
	cfg := s.cfg

	// Analyst API, wrapped with auth
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /v1/datasets", h.HandleCreateDataset)
	apiMux.HandleFunc("GET /v1/datasets/{id}", h.HandleGetDataset)
	apiMux.HandleFunc("DELETE /v1/datasets/{id}", h.HandleDeleteDataset)
	apiMux.HandleFunc("POST /v1/turns", h.HandleTurn)
	apiMux.HandleFunc("GET /v1/turns/{id}", h.HandleGetTurn)
	apiMux.HandleFunc("POST /v1/validate", h.HandleValidate)

	authedAPI := AuthMiddleware(cfg.Security.AllowedKeys, cfg.Security.AllowUnauthenticated, cfg.Security.APIKeyHeader)(apiMux)

	// Top-level mux: health/metrics bypass auth, everything else goes through auth
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", authedAPI)

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = ConcurrentTurnsMiddleware(cfg.Security.MaxConcurrentTurns)(handler)
	handler = MetricsMiddleware(s.deps.Metrics)(handler)
	handler = RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	return handler
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Warn().Msg("TLS not enabled, running plain HTTP")
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.deps.DB == nil || s.deps.DB.Healthy(r.Context())

	resp := HealthResponse{
		Status:   "ok",
		Database: dbOK,
		Uptime:   Duration{time.Since(s.startTime).Round(time.Second)},
	}
	if s.deps.Datasets != nil {
		resp.Datasets = s.deps.Datasets.Len()
	}
	if s.deps.Runner != nil {
		resp.ActiveExecutions = s.deps.Runner.ActiveCount()
	}

	if !dbOK {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
