package cli

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/credentials"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/spf13/cobra"
)

func newSecretCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the credential store",
	}
	cmd.AddCommand(newSecretSetCmd(cfg), newSecretDeleteCmd(cfg))
	return cmd
}

func newSecretSetCmd(cfg *config.Config) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret",
		Long: `Store a secret under name. The value is read from --file, or prompted for
without echo. Client certificates are stored as PEM (certificate followed by
its private key) and referenced by the certificateName preference.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := credentials.ValidateName(name); err != nil {
				return err
			}

			var (
				value []byte
				err   error
			)
			if fromFile != "" {
				value, err = os.ReadFile(fromFile)
			} else {
				value, err = GetSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Value for "+name)
			}
			if err != nil {
				return err
			}
			defer common.WipeByteArray(value)
			if len(value) == 0 {
				return fmt.Errorf("empty value for secret %q", name)
			}

			store, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			if err := store.SetSecret(cmd.Context(), name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "secret %q stored in %s store\n", name, store.Name())
			return nil
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "read the value from a file")
	return cmd
}

func newSecretDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			return store.DeleteSecret(cmd.Context(), args[0])
		},
	}
}
