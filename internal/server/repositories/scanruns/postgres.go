// Package scanruns provides PostgreSQL-backed storage for per-account scan
// run records.
package scanruns

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

// PostgresRepository implements scan run storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a run in its initial state.
func (r *PostgresRepository) Create(ctx context.Context, run *models.ScanRun) error {
	query := `
		INSERT INTO scan_runs (id, tenant_id, cloud_account_id, provider, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		run.ID, run.TenantID, run.CloudAccountID, string(run.Provider), string(run.Status), run.StartedAt,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Finish writes the terminal state of a run. Only a running row is updated,
// so a second Finish for the same run returns common.ErrScanRunFinished.
func (r *PostgresRepository) Finish(ctx context.Context, run *models.ScanRun) error {
	query := `
		UPDATE scan_runs SET
			status = $2,
			completed_at = $3,
			findings_count = $4,
			critical_count = $5,
			high_count = $6,
			medium_count = $7,
			low_count = $8,
			error_message = $9
		WHERE id = $1 AND status = 'running'
	`
	var errMsg sql.NullString
	if run.ErrorMessage != "" {
		errMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), run.CompletedAt, run.FindingsCount,
		run.Critical, run.High, run.Medium, run.Low, errMsg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrScanRunFinished
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ListRecent returns the newest runs of a tenant, optionally narrowed to one
// account when accountID is not empty.
func (r *PostgresRepository) ListRecent(ctx context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error) {
	query := `
		SELECT id, tenant_id, cloud_account_id, provider, status, started_at, completed_at,
			findings_count, critical_count, high_count, medium_count, low_count, error_message
		FROM scan_runs
		WHERE tenant_id = $1 AND ($2 = '' OR cloud_account_id = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select scan runs: %w", err)
	}
	defer rows.Close()

	var result []*models.ScanRun
	for rows.Next() {
		var (
			run         models.ScanRun
			provider    string
			status      string
			completedAt sql.NullTime
			errMsg      sql.NullString
		)
		if err := rows.Scan(
			&run.ID, &run.TenantID, &run.CloudAccountID, &provider, &status, &run.StartedAt, &completedAt,
			&run.FindingsCount, &run.Critical, &run.High, &run.Medium, &run.Low, &errMsg,
		); err != nil {
			return nil, err
		}
		run.Provider = models.Provider(provider)
		run.Status = models.ScanStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		run.ErrorMessage = errMsg.String
		result = append(result, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
