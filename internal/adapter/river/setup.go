package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the evaluation once a day at 06:00.
const DefaultSchedule = "0 6 * * *"

// Config controls the periodic evaluation.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// RunOnStart also enqueues a run when the client starts.
	RunOnStart bool
}

// Setup creates a River client with the evaluation worker and its periodic
// job registered, and runs River's internal migrations. The caller must call
// client.Start() to begin processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, runner Runner, cfg Config) (*Client, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", cfg.Schedule, err)
	}

	driver := riversqlite.New(db)

	// River's own tables are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewEvaluateWorker(runner))

	periodic := river.NewPeriodicJob(
		schedule,
		func() (river.JobArgs, *river.InsertOpts) {
			return EvaluateArgs{Trigger: "schedule"}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: cfg.RunOnStart},
	)

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{periodic},
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
