// Package findings provides PostgreSQL-backed storage for normalized
// security findings.
package findings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/lib/pq"
)

const selectColumns = `id, tenant_id, scan_id, cloud_account_id, finding_id, title, description,
	severity, status, rule_code, framework, provider, category, compliance, metadata, detected_at`

// PostgresRepository implements finding storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOpenDuplicate returns the newest open finding of the tenant with the
// same title and metadata resourceId detected at or after since.
// common.ErrorNotFound is returned when there is none.
func (r *PostgresRepository) FindOpenDuplicate(ctx context.Context, tenantID, title, resourceID string, since time.Time) (*models.FindingRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM security_findings
		WHERE tenant_id = $1 AND title = $2 AND metadata ->> 'resourceId' = $3
			AND status = 'open' AND detected_at >= $4
		ORDER BY detected_at DESC
		LIMIT 1`

	f, err := scanFinding(r.db.QueryRowContext(ctx, query, tenantID, title, resourceID, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// TouchDetectedAt moves detected_at of an existing finding forward.
func (r *PostgresRepository) TouchDetectedAt(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE security_findings SET detected_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Create inserts a finding. Compliance goes to a TEXT[] column and Metadata
// is stored as JSONB.
func (r *PostgresRepository) Create(ctx context.Context, f *models.FindingRecord) error {
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	compliance := f.Compliance
	if compliance == nil {
		compliance = []string{}
	}

	query := `
		INSERT INTO security_findings (id, tenant_id, scan_id, cloud_account_id, finding_id, title,
			description, severity, status, rule_code, framework, provider, category, compliance,
			metadata, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16)
	`
	if _, err := r.db.ExecContext(ctx, query,
		f.ID, f.TenantID, f.ScanID, f.CloudAccountID, f.FindingID, f.Title,
		f.Description, string(f.Severity), string(f.Status), f.RuleCode, f.Framework,
		string(f.Provider), f.Category, pq.Array(compliance), string(meta), f.DetectedAt,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListOpen returns open findings of a tenant, newest first. An empty
// accountID lists every account of the tenant.
func (r *PostgresRepository) ListOpen(ctx context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM security_findings
		WHERE tenant_id = $1 AND ($2 = '' OR cloud_account_id = $2) AND status = 'open'
		ORDER BY detected_at DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, tenantID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select findings: %w", err)
	}
	defer rows.Close()

	var result []*models.FindingRecord
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*models.FindingRecord, error) {
	var (
		f        models.FindingRecord
		severity string
		status   string
		provider string
		meta     []byte
	)
	if err := row.Scan(
		&f.ID, &f.TenantID, &f.ScanID, &f.CloudAccountID, &f.FindingID, &f.Title, &f.Description,
		&severity, &status, &f.RuleCode, &f.Framework, &provider, &f.Category,
		pq.Array(&f.Compliance), &meta, &f.DetectedAt,
	); err != nil {
		return nil, err
	}
	f.Severity = models.Severity(severity)
	f.Status = models.FindingStatus(status)
	f.Provider = models.Provider(provider)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &f, nil
}
