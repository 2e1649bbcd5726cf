package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

const defaultMaxWorkers = 2

type settings struct {
	maxWorkers int
}

// Option tunes the River client built by Setup.
type Option func(*settings)

// WithMaxWorkers sets how many entry jobs are worked concurrently.
// Values below one are ignored.
func WithMaxWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// Setup creates a River client with the entry worker registered and runs
// River's internal migrations. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, logger *slog.Logger, opts ...Option) (*Client, error) {
	cfg := settings{maxWorkers: defaultMaxWorkers}
	for _, opt := range opts {
		opt(&cfg)
	}

	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the ledger's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewEntryWorker(logger))

	client, err := river.NewClient(driver, &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
