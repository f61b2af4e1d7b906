// Package scheduler sweeps every tenant with active accounts on a fixed
// interval and runs a fleet scan for each.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

type TenantLister interface {
	Tenants(ctx context.Context) ([]string, error)
}

type Scanner interface {
	RunScan(ctx context.Context, tenantID, accountID string) (*models.ScanResult, error)
}

type Scheduler struct {
	tenants     TenantLister
	scanner     Scanner
	interval    time.Duration
	concurrency int
	logger      logging.Logger
}

func New(tenants TenantLister, scanner Scanner, interval time.Duration, concurrency int, logger logging.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		tenants:     tenants,
		scanner:     scanner,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.With("module", "scheduler"),
	}
}

// Run sweeps once right away and then on every tick until ctx is done. A
// sweep that overruns the interval delays the next one instead of
// overlapping it. A zero interval disables the scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "scheduler disabled")
		return
	}

	s.logger.Info(ctx, "scheduler started", "interval", s.interval, "concurrency", s.concurrency)
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info(ctx, "scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
	}
}

// Sweep scans every tenant once and returns the number of tenants whose scan
// failed. Tenant failures are logged and never stop the others; an error is
// returned only when the tenants cannot be listed.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	tenants, err := s.tenants.Tenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}

	failed := make([]bool, len(tenants))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, tenant := range tenants {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := s.scanner.RunScan(ctx, tenant, "")
			switch {
			case errors.Is(err, common.ErrNoAccountsToScan):
				s.logger.Debug(ctx, "tenant has nothing to scan", "tenant_id", tenant)
			case err != nil:
				failed[i] = true
				s.logger.Error(ctx, "tenant scan failed", "tenant_id", tenant, "error", err)
			default:
				s.logger.Info(ctx, "tenant scanned", "tenant_id", tenant,
					"accounts", res.AccountsScanned, "findings", res.TotalFindings)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n, nil
}
