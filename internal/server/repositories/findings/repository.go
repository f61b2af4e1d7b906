package findings

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

type Repository interface {
	FindOpenDuplicate(ctx context.Context, tenantID, title, resourceID string, since time.Time) (*models.FindingRecord, error)
	TouchDetectedAt(ctx context.Context, id string, at time.Time) error
	Create(ctx context.Context, f *models.FindingRecord) error
	ListOpen(ctx context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error)
}
