package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/findings"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/scanruns"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	ScanRuns(db dbx.DBTX) scanruns.Repository
	Findings(db dbx.DBTX) findings.Repository
}
