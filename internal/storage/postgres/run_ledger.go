package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"news_provisioner/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RunLedger keeps a history of provisioning runs and their step outcomes.
type RunLedger struct {
	db *sqlx.DB
	tm *TransactionManager
}

func NewRunLedger(db *sqlx.DB, tm *TransactionManager) *RunLedger {
	return &RunLedger{db: db, tm: tm}
}

// RecordRun stores the run and its steps atomically and returns the run id.
func (l *RunLedger) RecordRun(ctx context.Context, report *domain.ProvisionReport, runErr error) (int64, error) {
	status := domain.RunSucceeded
	var errText *string
	if runErr != nil {
		status = domain.RunFailed
		msg := runErr.Error()
		errText = &msg
	}

	var runID int64
	err := l.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, l.db)

		query, args, err := psql.Insert("provision_runs").
			Columns("database_name", "username", "dry_run", "status", "error", "started_at", "duration_ms").
			Values(report.Database, report.Username, report.DryRun, status, errText, report.StartedAt, report.Duration.Milliseconds()).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build run insert: %w", err)
		}

		if err := exec.QueryRowxContext(txCtx, query, args...).Scan(&runID); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if len(report.Steps) == 0 {
			return nil
		}

		insert := psql.Insert("provision_steps").Columns("run_id", "position", "step", "entity", "outcome")
		for i, step := range report.Steps {
			insert = insert.Values(runID, i, step.Step, step.Entity, string(step.Outcome))
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build steps insert: %w", err)
		}

		if _, err := exec.ExecContext(txCtx, query, args...); err != nil {
			return fmt.Errorf("insert steps: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return runID, nil
}

// LatestRun returns the most recent run recorded for database, or nil.
func (l *RunLedger) LatestRun(ctx context.Context, database string) (*domain.ProvisionRun, error) {
	query, args, err := psql.
		Select("id", "database_name", "username", "dry_run", "status", "error", "started_at", "duration_ms").
		From("provision_runs").
		Where(sq.Eq{"database_name": database}).
		OrderBy("started_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}

	var run domain.ProvisionRun
	err = l.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	query, args, err = psql.
		Select("step", "entity", "outcome").
		From("provision_steps").
		Where(sq.Eq{"run_id": run.ID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build steps query: %w", err)
	}

	if err := l.db.SelectContext(ctx, &run.Steps, query, args...); err != nil {
		return nil, err
	}

	return &run, nil
}
