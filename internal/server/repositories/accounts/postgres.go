// Package accounts provides PostgreSQL-backed storage for connected cloud
// accounts and their sealed credentials.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

const selectColumns = `id, tenant_id, name, provider, external_id, status,
	credentials_ciphertext, credentials_iv, credentials_auth_tag, last_scanned_at, created_at`

// PostgresRepository implements account storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account. The credential blob is stored as three columns.
func (r *PostgresRepository) Create(ctx context.Context, a *models.CloudAccount) error {
	query := `
		INSERT INTO cloud_accounts (id, tenant_id, name, provider, external_id, status,
			credentials_ciphertext, credentials_iv, credentials_auth_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.Name, string(a.Provider), a.ExternalID, string(a.Status),
		a.Credentials.Ciphertext, a.Credentials.IV, a.Credentials.AuthTag, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetActive returns the account only if it belongs to tenantID and is active.
// Otherwise common.ErrorNotFound is returned.
func (r *PostgresRepository) GetActive(ctx context.Context, tenantID, accountID string) (*models.CloudAccount, error) {
	query := `SELECT ` + selectColumns + ` FROM cloud_accounts
		WHERE tenant_id = $1 AND id = $2 AND status = 'active'`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, tenantID, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// ListActive returns all active accounts of a tenant, oldest first.
func (r *PostgresRepository) ListActive(ctx context.Context, tenantID string) ([]*models.CloudAccount, error) {
	query := `SELECT ` + selectColumns + ` FROM cloud_accounts
		WHERE tenant_id = $1 AND status = 'active'
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to select accounts: %w", err)
	}
	defer rows.Close()

	var result []*models.CloudAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListTenants returns every tenant that has at least one active account.
func (r *PostgresRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM cloud_accounts WHERE status = 'active' ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

// SetStatus activates or deactivates an account of the tenant.
func (r *PostgresRepository) SetStatus(ctx context.Context, tenantID, accountID string, status models.AccountStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cloud_accounts SET status = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, accountID, string(status))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

// MarkScanned records the time of the last successful scan.
func (r *PostgresRepository) MarkScanned(ctx context.Context, accountID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cloud_accounts SET last_scanned_at = $2 WHERE id = $1`, accountID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.CloudAccount, error) {
	var (
		a          models.CloudAccount
		provider   string
		status     string
		lastScanAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.Name, &provider, &a.ExternalID, &status,
		&a.Credentials.Ciphertext, &a.Credentials.IV, &a.Credentials.AuthTag,
		&lastScanAt, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.Provider = models.Provider(provider)
	a.Status = models.AccountStatus(status)
	if lastScanAt.Valid {
		t := lastScanAt.Time
		a.LastScannedAt = &t
	}
	return &a, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
