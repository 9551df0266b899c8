package migration

import (
	"context"

	"gomatch/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create runs table")
	}

	if err := r.createMatchedPairsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create matched_pairs table")
	}

	if err := r.createBalanceRowsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create balance_rows table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			cohort_fingerprint VARCHAR(64) NOT NULL,
			treated_count INTEGER NOT NULL,
			control_count INTEGER NOT NULL,
			covariate_count INTEGER NOT NULL,
			test_statistic DOUBLE PRECISION,
			test_p_value DOUBLE PRECISION,
			test_pairs INTEGER,
			test_zeros INTEGER,
			test_method VARCHAR(20),
			test_skipped TEXT NOT NULL DEFAULT '',
			runtime_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createMatchedPairsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS matched_pairs (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			treated_id VARCHAR(255) NOT NULL,
			control_id VARCHAR(255) NOT NULL,
			distance DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, treated_id)
		)
	`)
	return err
}

func (r *MigrationRunner) createBalanceRowsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS balance_rows (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			covariate VARCHAR(255) NOT NULL,
			smd_before DOUBLE PRECISION NOT NULL,
			smd_after DOUBLE PRECISION NOT NULL,
			mean_treated DOUBLE PRECISION NOT NULL,
			mean_control DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, covariate)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(cohort_fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_pairs_run_id ON matched_pairs(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_pairs_control ON matched_pairs(run_id, control_id)",
		"CREATE INDEX IF NOT EXISTS idx_balance_run_id ON balance_rows(run_id)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			return err
		}
	}

	return nil
}
