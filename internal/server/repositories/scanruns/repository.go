package scanruns

import (
	"context"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, run *models.ScanRun) error
	Finish(ctx context.Context, run *models.ScanRun) error
	ListRecent(ctx context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error)
}
