package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gomatch/domain/core"
	"gomatch/domain/matching"
	"gomatch/ports"

	"github.com/jmoiron/sqlx"
)

// RunRepositoryImpl implements RunRepositoryPort for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepositoryPort {
	return &RunRepositoryImpl{db: db}
}

var _ ports.RunRepositoryPort = (*RunRepositoryImpl)(nil)

// Save stores the run with its pairs and balance rows in one transaction
func (r *RunRepositoryImpl) Save(ctx context.Context, run *matching.RunArtifact) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stat, pval *float64
	var pairs, zeros *int
	var method *string
	if run.Test != nil {
		stat, pval = &run.Test.Statistic, &run.Test.PValue
		pairs, zeros = &run.Test.Pairs, &run.Test.Zeros
		method = &run.Test.Method
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, cohort_fingerprint, treated_count, control_count, covariate_count,
			test_statistic, test_p_value, test_pairs, test_zeros, test_method, test_skipped,
			runtime_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, string(run.RunID), string(run.Fingerprint), run.TreatedCount, run.ControlCount,
		run.CovariateCount, stat, pval, pairs, zeros, method, run.TestSkipped,
		run.RuntimeMs, run.CreatedAt.Time())
	if err != nil {
		return err
	}

	for _, p := range run.Pairs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO matched_pairs (run_id, treated_id, control_id, distance)
			VALUES ($1, $2, $3, $4)
		`, string(run.RunID), string(p.TreatedID), string(p.ControlID), p.Distance)
		if err != nil {
			return err
		}
	}

	for _, b := range run.Balance {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO balance_rows (run_id, covariate, smd_before, smd_after, mean_treated, mean_control)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, string(run.RunID), string(b.Covariate), b.SMDBefore, b.SMDAfter, b.MeanTreat, b.MeanContr)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type runRow struct {
	ID             string    `db:"id"`
	Fingerprint    string    `db:"cohort_fingerprint"`
	TreatedCount   int       `db:"treated_count"`
	ControlCount   int       `db:"control_count"`
	CovariateCount int       `db:"covariate_count"`
	TestStatistic  *float64  `db:"test_statistic"`
	TestPValue     *float64  `db:"test_p_value"`
	TestPairs      *int      `db:"test_pairs"`
	TestZeros      *int      `db:"test_zeros"`
	TestMethod     *string   `db:"test_method"`
	TestSkipped    string    `db:"test_skipped"`
	RuntimeMs      int64     `db:"runtime_ms"`
	CreatedAt      time.Time `db:"created_at"`
}

type pairRow struct {
	TreatedID string  `db:"treated_id"`
	ControlID string  `db:"control_id"`
	Distance  float64 `db:"distance"`
}

type balanceRow struct {
	Covariate   string  `db:"covariate"`
	SMDBefore   float64 `db:"smd_before"`
	SMDAfter    float64 `db:"smd_after"`
	MeanTreated float64 `db:"mean_treated"`
	MeanControl float64 `db:"mean_control"`
}

// GetByID retrieves a run with its pairs and balance rows
func (r *RunRepositoryImpl) GetByID(ctx context.Context, id core.RunID) (*matching.RunArtifact, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, cohort_fingerprint, treated_count, control_count, covariate_count,
			test_statistic, test_p_value, test_pairs, test_zeros, test_method, test_skipped,
			runtime_ms, created_at
		FROM runs WHERE id = $1
	`, string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewRunNotFoundError(id)
		}
		return nil, err
	}

	var pairRows []pairRow
	err = r.db.SelectContext(ctx, &pairRows, `
		SELECT treated_id, control_id, distance
		FROM matched_pairs WHERE run_id = $1
		ORDER BY treated_id
	`, string(id))
	if err != nil {
		return nil, err
	}

	var balanceRows []balanceRow
	err = r.db.SelectContext(ctx, &balanceRows, `
		SELECT covariate, smd_before, smd_after, mean_treated, mean_control
		FROM balance_rows WHERE run_id = $1
		ORDER BY covariate
	`, string(id))
	if err != nil {
		return nil, err
	}

	run := &matching.RunArtifact{
		RunID:          core.RunID(row.ID),
		Fingerprint:    core.CohortHash(row.Fingerprint),
		TreatedCount:   row.TreatedCount,
		ControlCount:   row.ControlCount,
		CovariateCount: row.CovariateCount,
		TestSkipped:    row.TestSkipped,
		RuntimeMs:      row.RuntimeMs,
		CreatedAt:      core.NewTimestamp(row.CreatedAt),
	}
	if row.TestStatistic != nil && row.TestPValue != nil {
		run.Test = &matching.TestResult{
			Statistic: *row.TestStatistic,
			PValue:    *row.TestPValue,
		}
		if row.TestPairs != nil {
			run.Test.Pairs = *row.TestPairs
		}
		if row.TestZeros != nil {
			run.Test.Zeros = *row.TestZeros
		}
		if row.TestMethod != nil {
			run.Test.Method = *row.TestMethod
		}
	}
	for _, p := range pairRows {
		run.Pairs = append(run.Pairs, matching.MatchedPair{
			TreatedID: core.SubjectID(p.TreatedID),
			ControlID: core.SubjectID(p.ControlID),
			Distance:  p.Distance,
		})
	}
	for _, b := range balanceRows {
		run.Balance = append(run.Balance, matching.BalanceRow{
			Covariate: core.CovariateKey(b.Covariate),
			SMDBefore: b.SMDBefore,
			SMDAfter:  b.SMDAfter,
			MeanTreat: b.MeanTreated,
			MeanContr: b.MeanControl,
		})
	}
	return run, nil
}

// ListRecent returns run summaries, newest first
func (r *RunRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `
		SELECT r.id, r.treated_count, r.control_count, r.test_p_value, r.created_at,
			(SELECT COUNT(*) FROM matched_pairs p WHERE p.run_id = r.id) AS pair_count
		FROM runs r
		ORDER BY r.created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ports.RunSummary
	for rows.Next() {
		var (
			id        string
			s         ports.RunSummary
			pval      *float64
			createdAt time.Time
		)
		err := rows.Scan(&id, &s.TreatedCount, &s.ControlCount, &pval, &createdAt, &s.PairCount)
		if err != nil {
			return nil, err
		}
		s.RunID = core.RunID(id)
		s.PValue = pval
		s.CreatedAt = core.NewTimestamp(createdAt)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
