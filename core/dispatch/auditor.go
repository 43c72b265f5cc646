package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"civic-dispatch/config"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/robfig/cron/v3"
)

type DriftFinder interface {
	FindLedgerDrift(ctx context.Context) ([]store.LedgerDrift, error)
}

// LedgerAuditor periodically looks for issues whose status disagrees with the
// assignment ledger. It only reports; it never repairs.
type LedgerAuditor struct {
	cfg     config.AuditorConfig
	finder  DriftFinder
	logger  *utils.Logger
	metrics *Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewLedgerAuditor(cfg config.AuditorConfig, finder DriftFinder, logger *utils.Logger, metrics *Metrics) *LedgerAuditor {
	return &LedgerAuditor{cfg: cfg, finder: finder, logger: logger.With("ledger-auditor"), metrics: metrics}
}

func (a *LedgerAuditor) StartWithContext(ctx context.Context) error {
	if a == nil || a.finder == nil || !a.cfg.Enabled {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(a.cfg.Schedule, func() {
		if _, err := a.RunOnce(runCtx); err != nil {
			a.logger.Errorf("ledger audit failed: %v", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("auditor schedule %q: %w", a.cfg.Schedule, err)
	}
	c.Start()
	a.cron = c
	a.cancel = cancel
	a.running = true
	a.logger.Printf("ledger auditor scheduled %s", a.cfg.Schedule)
	return nil
}

// StopWithContext stops scheduling and waits for a running audit to finish or
// for ctx to expire.
func (a *LedgerAuditor) StopWithContext(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	c, cancel, wasRunning := a.cron, a.cancel, a.running
	a.cron, a.cancel, a.running = nil, nil, false
	a.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *LedgerAuditor) RunOnce(ctx context.Context) ([]store.LedgerDrift, error) {
	if a == nil || a.finder == nil {
		return nil, nil
	}
	drift, err := a.finder.FindLedgerDrift(ctx)
	if err != nil {
		return nil, err
	}
	a.metrics.ledgerDrift(len(drift))
	for _, d := range drift {
		a.logger.Warnf("ledger drift: issue=%d status=%s has_assignment=%t", d.IssueID, d.Status, d.HasAssignment)
	}
	return drift, nil
}
