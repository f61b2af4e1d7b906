package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

// now is replaced in tests so relative times are stable.
var now = time.Now

func newScanCmd(g *globals) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one account, or every active account of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.RunScan(ctx, g.tenantID, accountID)
				if err != nil {
					return err
				}
				if g.output == "json" {
					return printJSON(cmd.OutOrStdout(), res)
				}
				return printScanResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id; empty scans the whole tenant")
	return cmd
}

func printScanResult(w io.Writer, res *models.ScanResult) error {
	fmt.Fprintf(w, "scan %s: %d account(s), %d new finding(s) in %s\n",
		res.ScanID, res.AccountsScanned, res.TotalFindings, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "critical %d  high %d  medium %d  low %d\n\n", res.Critical, res.High, res.Medium, res.Low)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tPROVIDER\tRESULT\tFINDINGS\tRUN")
	for _, a := range res.Accounts {
		result := "ok"
		if !a.Success {
			result = "failed: " + a.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.AccountID, a.Provider, result, a.FindingsCount, a.ScanRunID)
	}
	return tw.Flush()
}

func newFindingsCmd(g *globals) *cobra.Command {
	var (
		accountID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "findings",
		Short: "List open findings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				list, err := b.OpenFindings(ctx, g.tenantID, accountID, limit)
				if err != nil {
					return err
				}
				if g.output == "json" {
					return printJSON(cmd.OutOrStdout(), list)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEVERITY\tRULE\tTITLE\tRESOURCE\tACCOUNT\tDETECTED")
				for _, f := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						f.Severity, f.RuleCode, f.Title, f.ResourceID(), f.CloudAccountID, humanize.RelTime(f.DetectedAt, now(), "ago", "from now"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "only this account")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func newRunsCmd(g *globals) *cobra.Command {
	var (
		accountID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				runs, err := b.RecentRuns(ctx, g.tenantID, accountID, limit)
				if err != nil {
					return err
				}
				if g.output == "json" {
					return printJSON(cmd.OutOrStdout(), runs)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tACCOUNT\tSTATUS\tFINDINGS\tC/H/M/L\tSTARTED\tERROR")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d/%d/%d\t%s\t%s\n",
						r.ID, r.CloudAccountID, r.Status, r.FindingsCount,
						r.Critical, r.High, r.Medium, r.Low,
						humanize.RelTime(r.StartedAt, now(), "ago", "from now"), r.ErrorMessage)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "only this account")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}
