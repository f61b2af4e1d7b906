package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudwarden/internal/filex"
	"github.com/dmitrijs2005/cloudwarden/internal/server/reports"
)

// reportsDir is created under the working directory.
const reportsDir = "reports"

func newReportCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Archived scan reports",
	}
	cmd.AddCommand(newReportFetchCmd(g))
	return cmd
}

func newReportFetchCmd(g *globals) *cobra.Command {
	var (
		accountID string
		runID     string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the report of one scan run into ./reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if accountID == "" || runID == "" {
				return errors.New("--account and --run are required")
			}
			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				url, err := b.ReportURL(ctx, reports.Key(g.tenantID, accountID, runID), ttl)
				if err != nil {
					return err
				}
				data, err := g.opts.Download(ctx, url)
				if err != nil {
					return err
				}
				path, err := filex.SaveInSubDir(reportsDir, runID+".json", data)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&runID, "run", "", "scan run id")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "lifetime of the presigned URL")
	return cmd
}
