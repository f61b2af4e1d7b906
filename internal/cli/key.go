package cli

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/cloudwarden/internal/cryptox"
	"github.com/dmitrijs2005/cloudwarden/internal/shared"
)

const saltSize = 16

func newKeyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate and check credential encryption keys",
	}
	cmd.AddCommand(newKeyGenerateCmd(), newKeyValidateCmd(), newKeyDeriveCmd())
	return cmd
}

func newKeyGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print a new random base64 key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := cryptox.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}

func newKeyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [key]",
		Short: "Check that a key is base64 of exactly 32 bytes",
		Long:  "Check a key. Without an argument the key is read from stdin without echo.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var candidate string
			if len(args) == 1 {
				candidate = args[0]
			} else {
				b, err := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Secret("Key")
				if err != nil {
					return err
				}
				candidate = string(b)
				shared.WipeByteArray(b)
			}

			res := cryptox.ValidateEncryptionKey(candidate)
			if !res.Valid {
				return fmt.Errorf("invalid key: %s", res.Error)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "key is valid")
			return err
		},
	}
}

func newKeyDeriveCmd() *cobra.Command {
	var salt string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a key from a passphrase with argon2id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var saltBytes []byte
			if salt == "" {
				b, err := shared.GenerateRandByteArray(saltSize)
				if err != nil {
					return err
				}
				saltBytes = b
			} else {
				b, err := base64.StdEncoding.DecodeString(salt)
				if err != nil {
					return fmt.Errorf("salt: %w", err)
				}
				saltBytes = b
			}

			pass, err := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Secret("Passphrase")
			if err != nil {
				return err
			}
			defer shared.WipeByteArray(pass)
			if len(pass) == 0 {
				return errors.New("passphrase must not be empty")
			}

			key := cryptox.DeriveKey(pass, saltBytes)
			defer shared.WipeByteArray(key)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:  %s\n", base64.StdEncoding.EncodeToString(key))
			fmt.Fprintf(out, "salt: %s\n", base64.StdEncoding.EncodeToString(saltBytes))
			return nil
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "base64 salt; a random one is generated when empty")
	return cmd
}
