package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.CloudAccount) error
	GetActive(ctx context.Context, tenantID, accountID string) (*models.CloudAccount, error)
	ListActive(ctx context.Context, tenantID string) ([]*models.CloudAccount, error)
	ListTenants(ctx context.Context) ([]string, error)
	SetStatus(ctx context.Context, tenantID, accountID string, status models.AccountStatus) error
	MarkScanned(ctx context.Context, accountID string, at time.Time) error
}
