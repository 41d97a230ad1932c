package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// Defaults for JobConfig.
const (
	DefaultTenantWorkers = 4
	DefaultTenantTimeout = 2 * time.Minute
)

// TenantRunner evaluates a single tenant.
type TenantRunner interface {
	RunTenant(ctx context.Context, tenant domain.Tenant) (TenantResult, error)
}

// JobConfig bounds a run's concurrency and per-tenant duration.
type JobConfig struct {
	Workers       int
	TenantTimeout time.Duration
}

// TenantReport is one tenant's entry in a run report. Err is set when the
// tenant was aborted.
type TenantReport struct {
	TenantID       string
	PlayersUpdated int
	Notified       int
	Err            error
}

// Report aggregates a run across tenants.
type Report struct {
	RunID            string
	TenantsProcessed int
	Results          []TenantReport
}

// Failed returns the number of aborted tenants.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Job is the scheduled entry point: it evaluates every tenant that has rules.
type Job struct {
	tenants domain.TenantReader
	runner  TenantRunner
	cfg     JobConfig
}

// NewJob creates a job. Zero config values fall back to the defaults.
func NewJob(tenants domain.TenantReader, runner TenantRunner, cfg JobConfig) *Job {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultTenantWorkers
	}
	if cfg.TenantTimeout <= 0 {
		cfg.TenantTimeout = DefaultTenantTimeout
	}
	return &Job{tenants: tenants, runner: runner, cfg: cfg}
}

// Run evaluates all tenants concurrently, bounded by the worker count. Each
// tenant gets its own deadline; a tenant that fails or times out is recorded
// in the report and the others continue. Run returns an error only when the
// tenants themselves cannot be listed.
func (j *Job) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: newRunID()}
	started := time.Now()

	tenants, err := j.tenants.ListTenantsWithRules(ctx)
	if err != nil {
		return report, fmt.Errorf("listing tenants: %w", err)
	}

	report.TenantsProcessed = len(tenants)
	report.Results = make([]TenantReport, len(tenants))

	var g errgroup.Group
	g.SetLimit(j.cfg.Workers)

	for i, tenant := range tenants {
		g.Go(func() error {
			report.Results[i] = j.runTenant(ctx, report.RunID, tenant)
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "critical evaluation finished",
		"run_id", report.RunID,
		"tenants", report.TenantsProcessed,
		"failed", report.Failed(),
		"duration", time.Since(started),
	)

	return report, nil
}

func (j *Job) runTenant(ctx context.Context, runID string, tenant domain.Tenant) TenantReport {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.TenantTimeout)
	defer cancel()

	res, err := j.runner.RunTenant(ctx, tenant)
	if err != nil {
		slog.ErrorContext(ctx, "tenant evaluation aborted",
			"run_id", runID, "tenant_id", tenant.ID, "error", err)
	}

	return TenantReport{
		TenantID:       tenant.ID,
		PlayersUpdated: res.Updated,
		Notified:       res.Notified,
		Err:            err,
	}
}
