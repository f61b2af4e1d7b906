// Package cli implements the cloudwarden admin command line: key
// management, account registration and on-demand scans over the same
// services the server runs.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/netx"
	"github.com/dmitrijs2005/cloudwarden/internal/server"
	"github.com/dmitrijs2005/cloudwarden/internal/server/config"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/services"
)

// ErrArchiveDisabled is returned by report commands when the server config
// has no report archive.
var ErrArchiveDisabled = errors.New("report archive is disabled")

// Backend is what the account, scan and report commands operate on.
type Backend interface {
	RegisterAccount(ctx context.Context, in services.RegisterAccountInput) (*models.CloudAccount, error)
	DeactivateAccount(ctx context.Context, tenantID, accountID string) error
	RunScan(ctx context.Context, tenantID, accountID string) (*models.ScanResult, error)
	RecentRuns(ctx context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error)
	OpenFindings(ctx context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error)
	ReportURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Close()
}

// Connector builds a Backend from the config file at path ("" for none).
type Connector func(ctx context.Context, path string) (Backend, error)

type Options struct {
	In       io.Reader
	Out      io.Writer
	Connect  Connector
	Download func(ctx context.Context, url string) ([]byte, error)
}

type globals struct {
	opts       Options
	configPath string
	tenantID   string
	output     string
}

// NewRootCmd builds the command tree. Zero Options fields fall back to the
// process stdio, the real database and netx downloads.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Connect == nil {
		opts.Connect = connectComponents
	}
	if opts.Download == nil {
		opts.Download = netx.DownloadPresigned
	}

	g := &globals{opts: opts}

	root := &cobra.Command{
		Use:           "cloudwarden",
		Short:         "cloudwarden admin tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (JSON or YAML)")
	root.PersistentFlags().StringVarP(&g.tenantID, "tenant", "t", "", "tenant id")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newKeyCmd(g),
		newAccountCmd(g),
		newScanCmd(g),
		newFindingsCmd(g),
		newRunsCmd(g),
		newReportCmd(g),
	)
	return root
}

// withBackend connects, checks the tenant flag and runs fn.
func (g *globals) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error {
	if g.tenantID == "" {
		return errors.New("--tenant is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := g.opts.Connect(ctx, g.configPath)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

// componentsBackend adapts the server's wired components to Backend.
type componentsBackend struct {
	*server.Components
}

func connectComponents(ctx context.Context, path string) (Backend, error) {
	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, "text", os.Stderr)

	comp, err := server.Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return componentsBackend{comp}, nil
}

func (b componentsBackend) RegisterAccount(ctx context.Context, in services.RegisterAccountInput) (*models.CloudAccount, error) {
	return b.Accounts.Register(ctx, in)
}

func (b componentsBackend) DeactivateAccount(ctx context.Context, tenantID, accountID string) error {
	return b.Accounts.Deactivate(ctx, tenantID, accountID)
}

func (b componentsBackend) RunScan(ctx context.Context, tenantID, accountID string) (*models.ScanResult, error) {
	return b.Scans.RunScan(ctx, tenantID, accountID)
}

func (b componentsBackend) RecentRuns(ctx context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error) {
	return b.Scans.RecentRuns(ctx, tenantID, accountID, limit)
}

func (b componentsBackend) OpenFindings(ctx context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error) {
	return b.Scans.OpenFindings(ctx, tenantID, accountID, limit)
}

func (b componentsBackend) ReportURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.Archive == nil {
		return "", ErrArchiveDisabled
	}
	return b.Archive.PresignedURL(ctx, key, ttl)
}
