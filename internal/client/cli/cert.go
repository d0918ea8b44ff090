package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/credentials"
	"github.com/dmitrijs2005/gophshare/internal/tlsx"
	"github.com/spf13/cobra"
)

func newCertCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage client certificates",
	}
	cmd.AddCommand(newCertGenerateCmd(cfg))
	return cmd
}

func newCertGenerateCmd(cfg *config.Config) *cobra.Command {
	var (
		commonName string
		validFor   time.Duration
		certOut    string
	)

	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Create a self-signed client certificate and store it",
		Long: `Generate a self-signed certificate, store it with its key in the credential
store under name, and optionally write the certificate alone to --out so the
API server can be told to trust it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := credentials.ValidateName(name); err != nil {
				return err
			}
			if commonName == "" {
				commonName = name
			}

			bundle, err := tlsx.SelfSigned(commonName, validFor)
			if err != nil {
				return err
			}

			store, err := openCredentials(cfg)
			if err != nil {
				return err
			}
			if err := store.SetSecret(cmd.Context(), name, bundle.PEM()); err != nil {
				return err
			}

			if certOut != "" {
				if err := os.WriteFile(certOut, bundle.CertPEM, 0o644); err != nil {
					return fmt.Errorf("write certificate: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certificate %q (CN=%s) stored\n", name, commonName)
			return nil
		},
	}

	cmd.Flags().StringVar(&commonName, "cn", "", "certificate common name (defaults to name)")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "certificate lifetime")
	cmd.Flags().StringVarP(&certOut, "out", "o", "", "also write the certificate PEM to this file")
	return cmd
}
