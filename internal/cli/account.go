package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
	"github.com/dmitrijs2005/cloudwarden/internal/server/services"
	"github.com/dmitrijs2005/cloudwarden/internal/shared"
)

func newAccountCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage connected cloud accounts",
	}
	cmd.AddCommand(newAccountAddCmd(g), newAccountDeactivateCmd(g))
	return cmd
}

func newAccountAddCmd(g *globals) *cobra.Command {
	var (
		name       string
		provider   string
		externalID string
		credsFile  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a cloud account",
		Long: `Register a cloud account. Credentials come from --credentials-file
(a JSON object, "-" for stdin) or are prompted for interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := models.Provider(provider)
			if !p.Valid() {
				return fmt.Errorf("unsupported provider %q", provider)
			}

			var (
				creds scanners.Credentials
				err   error
			)
			if credsFile != "" {
				creds, err = readCredentialsFile(cmd.InOrStdin(), credsFile)
			} else {
				creds, err = promptCredentials(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), p)
			}
			if err != nil {
				return err
			}

			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				acc, err := b.RegisterAccount(ctx, services.RegisterAccountInput{
					TenantID:    g.tenantID,
					Name:        name,
					Provider:    p,
					ExternalID:  externalID,
					Credentials: creds,
				})
				if err != nil {
					return err
				}
				if g.output == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"id": acc.ID, "provider": acc.Provider, "externalId": acc.ExternalID, "status": acc.Status,
					})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "account %s registered (%s)\n", acc.ID, acc.Provider)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&provider, "provider", "", "aws or azure")
	cmd.Flags().StringVar(&externalID, "external-id", "", "provider account or subscription id")
	cmd.Flags().StringVar(&credsFile, "credentials-file", "", `JSON credentials file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func readCredentialsFile(stdin io.Reader, path string) (scanners.Credentials, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	defer shared.WipeByteArray(data)
	return scanners.ParseCredentials(string(data))
}

type credentialField struct {
	key    string
	prompt string
	secret bool
}

var credentialPrompts = map[models.Provider][]credentialField{
	models.ProviderAWS: {
		{key: "accessKeyId", prompt: "Access key ID"},
		{key: "secretAccessKey", prompt: "Secret access key", secret: true},
		{key: "region", prompt: "Region (empty for " + scanners.DefaultAWSRegion + ")"},
	},
	models.ProviderAzure: {
		{key: "tenantId", prompt: "Directory (tenant) ID"},
		{key: "clientId", prompt: "Application (client) ID"},
		{key: "clientSecret", prompt: "Client secret", secret: true},
		{key: "subscriptionId", prompt: "Subscription ID"},
	},
}

func promptCredentials(p *prompter, provider models.Provider) (scanners.Credentials, error) {
	creds := scanners.Credentials{}
	for _, f := range credentialPrompts[provider] {
		var value string
		if f.secret {
			b, err := p.Secret(f.prompt)
			if err != nil {
				return nil, err
			}
			value = string(b)
			shared.WipeByteArray(b)
		} else {
			v, err := p.Text(f.prompt)
			if err != nil {
				return nil, err
			}
			value = v
		}
		if value != "" {
			creds[f.key] = value
		}
	}
	return creds, nil
}

func newAccountDeactivateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <account-id>",
		Short: "Exclude an account from future scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b Backend) error {
				if err := b.DeactivateAccount(ctx, g.tenantID, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "account %s deactivated\n", args[0])
				return err
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
