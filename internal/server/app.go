// Package server wires the cloudwarden components together and runs the
// long-lived server process: the scan scheduler and the ops HTTP endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/cryptox"
	"github.com/dmitrijs2005/cloudwarden/internal/events"
	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/config"
	"github.com/dmitrijs2005/cloudwarden/internal/server/httpserver"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/reports"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners/awsscan"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners/azurescan"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scheduler"
	"github.com/dmitrijs2005/cloudwarden/internal/server/services"
)

// Components is everything built from a Config that both the server and
// the admin CLI need.
type Components struct {
	DB       *sql.DB
	Cipher   *cryptox.Cipher
	Bus      *events.Bus
	Archive  *reports.S3Archive
	Accounts *services.AccountService
	Scans    *services.ScanService
}

// Wire opens the database, applies migrations and builds the services.
// The caller owns the result and must Close it.
func Wire(ctx context.Context, c *config.Config, logger logging.Logger) (*Components, error) {
	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	comp := &Components{
		DB:     db,
		Cipher: cryptox.NewCipher(cryptox.NewEnvKeyProvider(c.KeyEnvVar)),
		Bus:    events.NewBus(logger),
	}
	comp.Bus.Subscribe(common.FindingCreatedEvent, 0, events.LogHandler(logger.With("module", "alerts")))

	opts := []services.ScanOption{
		services.WithDedupWindow(c.DedupWindow),
		services.WithConcurrency(c.AccountConcurrency),
	}
	if c.ReportsEnabled {
		archive, err := reports.NewS3Archive(ctx, reports.Settings{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("report archive: %w", err)
		}
		comp.Archive = archive
		opts = append(opts, services.WithArchive(archive))
	}

	comp.Accounts = services.NewAccountService(db, rm, comp.Cipher, logger)
	comp.Scans = services.NewScanService(db, rm, comp.Cipher, Registry(c, logger), comp.Bus, logger, opts...)
	return comp, nil
}

// Registry returns the scanner factories for every supported provider.
func Registry(c *config.Config, logger logging.Logger) map[models.Provider]scanners.Factory {
	return scanners.Registry(
		awsscan.NewFactory(logger),
		azurescan.NewFactory(logger, azurescan.WithEndpoints(c.AzureAuthorityHost, c.AzureManagementEndpoint)),
	)
}

// Close drains pending events and closes the database.
func (c *Components) Close() {
	if c.Bus != nil {
		c.Bus.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	components *Components
	scheduler  *scheduler.Scheduler
	http       *httpserver.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)

	comp, err := Wire(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		config:     c,
		logger:     logger,
		components: comp,
		scheduler:  scheduler.New(comp.Accounts, comp.Scans, c.ScanInterval, c.TenantConcurrency, logger),
		http:       httpserver.NewServer(c.HTTPAddr, comp.DB, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or the HTTP server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	app.components.Close()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
