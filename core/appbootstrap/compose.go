package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"civic-dispatch/api"
	"civic-dispatch/config"
	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/geo"
	"civic-dispatch/core/rbac"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
}

// NewRegistry returns a registry carrying the process and Go runtime
// collectors next to whatever the dispatch services register.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// NewResolver builds the region resolver from config. A disabled geocoder
// still yields a resolver; it answers RegionUnknown for every point.
func NewResolver(cfg *config.AppConfig, logger *utils.Logger, metrics *dispatch.Metrics) *dispatch.Resolver {
	nominatim := geo.NewNominatimClient(geo.NominatimOptions{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.EffectiveGeocoderTimeout(),
		Disabled:  !cfg.Geocoder.Enabled,
	})
	return dispatch.NewResolver(nominatim, cfg.EffectiveGeocoderTimeout(), logger, metrics)
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, reg *prometheus.Registry, logger *utils.Logger) (*runtimeComposition, error) {
	issues := store.NewIssuesStore(db)
	departments := store.NewDepartmentsStore(db)
	officials := store.NewOfficialsStore(db)
	assignments := store.NewAssignmentsStore(db)
	audits := store.NewAuditStore(db)

	metrics, err := dispatch.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}

	resolver := NewResolver(cfg, logger, metrics)
	ranker := dispatch.NewRanker(departments, officials, metrics)
	ledger := dispatch.NewLedger(assignments, audits, dispatch.LedgerOptions{
		ReassignReopens: cfg.Dispatch.ReassignReopens,
		DefaultNotes:    cfg.Dispatch.DefaultNotes,
	}, logger, metrics)
	bulk, err := dispatch.NewBulk(ledger, issues, audits, dispatch.BulkOptions{
		MaxItems:    cfg.Dispatch.BulkMaxItems,
		Parallelism: cfg.EffectiveBulkParallelism(),
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("bulk dispatch: %w", err)
	}
	advisor := dispatch.NewAdvisor(issues, resolver, ranker)
	auditor := dispatch.NewLedgerAuditor(cfg.Auditor, assignments, logger, metrics)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			DB:          db,
			Policy:      policy,
			Gatherer:    reg,
			Issues:      issues,
			Departments: departments,
			Officials:   officials,
			Audits:      audits,
			Resolver:    resolver,
			Ranker:      ranker,
			Ledger:      ledger,
			Bulk:        bulk,
			Advisor:     advisor,
			Workers:     []api.BackgroundWorker{auditor},
		},
	}, nil
}

// App is a fully wired dispatch service.
type App struct {
	Server *api.Server
	db     *sql.DB
}

// New opens the database, applies migrations and wires every service.
func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	rt, err := composeRuntime(cfg, db, NewRegistry(), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &App{Server: api.NewServer(cfg, rt.serverDeps, logger), db: db}, nil
}

func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

func (a *App) Close() error {
	return a.db.Close()
}
