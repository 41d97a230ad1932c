package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/rollcall/internal/app"
)

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// EvaluateArgs is the periodic job that runs the critical evaluation.
type EvaluateArgs struct {
	Trigger string `json:"trigger"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EvaluateArgs) Kind() string { return "critical.evaluate" }

// InsertOpts disables retries: the next scheduled run re-derives every flag.
func (EvaluateArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// Runner runs one evaluation across all tenants.
type Runner interface {
	Run(ctx context.Context) (app.Report, error)
}

// EvaluateWorker runs the critical evaluation job.
type EvaluateWorker struct {
	river.WorkerDefaults[EvaluateArgs]
	runner Runner
}

// NewEvaluateWorker creates a worker delegating to runner.
func NewEvaluateWorker(runner Runner) *EvaluateWorker {
	return &EvaluateWorker{runner: runner}
}

// Timeout disables River's job deadline; deadlines apply per tenant.
func (w *EvaluateWorker) Timeout(*river.Job[EvaluateArgs]) time.Duration {
	return -1
}

// Work runs one evaluation.
func (w *EvaluateWorker) Work(ctx context.Context, job *river.Job[EvaluateArgs]) error {
	report, err := w.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("critical evaluation: %w", err)
	}

	slog.InfoContext(ctx, "critical evaluation job done",
		"job_id", job.ID,
		"trigger", job.Args.Trigger,
		"run_id", report.RunID,
		"tenants", report.TenantsProcessed,
		"failed", report.Failed(),
	)
	return nil
}
