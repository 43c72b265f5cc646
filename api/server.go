package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"civic-dispatch/api/routegroups"
	"civic-dispatch/config"
	"civic-dispatch/core/auth"
	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/rbac"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// BackgroundWorker is a job that lives as long as the server does.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB          *sql.DB
	Policy      *rbac.Policy
	Gatherer    prometheus.Gatherer
	Issues      store.IssuesStore
	Departments store.DepartmentsStore
	Officials   store.OfficialsStore
	Audits      store.AuditStore
	Resolver    *dispatch.Resolver
	Ranker      *dispatch.Ranker
	Ledger      *dispatch.Ledger
	Bulk        *dispatch.Bulk
	Advisor     *dispatch.Advisor
	Workers     []BackgroundWorker
}

type Server struct {
	cfg         *config.AppConfig
	logger      *utils.Logger
	db          *sql.DB
	policy      *rbac.Policy
	gatherer    prometheus.Gatherer
	issues      store.IssuesStore
	departments store.DepartmentsStore
	officials   store.OfficialsStore
	audits      store.AuditStore
	resolver    *dispatch.Resolver
	ranker      *dispatch.Ranker
	ledger      *dispatch.Ledger
	bulk        *dispatch.Bulk
	advisor     *dispatch.Advisor
	workers     []BackgroundWorker
	router      chi.Router
	httpServer  *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		db:          deps.DB,
		policy:      deps.Policy,
		gatherer:    deps.Gatherer,
		issues:      deps.Issues,
		departments: deps.Departments,
		officials:   deps.Officials,
		audits:      deps.Audits,
		resolver:    deps.Resolver,
		ranker:      deps.Ranker,
		ledger:      deps.Ledger,
		bulk:        deps.Bulk,
		advisor:     deps.Advisor,
		workers:     deps.Workers,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	if len(s.cfg.HTTP.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", auth.HeaderUser, auth.HeaderRoles, headerRequestID},
			ExposedHeaders: []string{headerRequestID},
		}))
	}
	if s.cfg.HTTP.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.HTTP.RateLimit, time.Minute))
	}

	r.Get("/healthz", s.healthz)
	if s.cfg.Metrics.Enabled && s.gatherer != nil {
		r.Handle(s.metricsPath(), promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	h := s.newRouteHandlers()
	g := routegroups.Guards{WithPrincipal: s.withPrincipal, RequirePermission: s.requirePermission}
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		routegroups.RegisterAdmin(apiRouter, g, h.dispatch, h.issues, h.directory)
		routegroups.RegisterPublic(apiRouter, g, h.issues, h.regions)
	})
	s.router = r
}

func (s *Server) metricsPath() string {
	if s.cfg.Metrics.Path == "" {
		return "/metrics"
	}
	return s.cfg.Metrics.Path
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warnf("healthz: db ping failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then drains requests and stops workers.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("http shutdown: %v", err)
	}
	for _, w := range s.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			s.logger.Errorf("worker stop: %v", err)
		}
	}
	return serveErr
}
