package cli

import (
	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the sharectl command tree on top of cfg. Flags override
// whatever cfg already holds from defaults and the config file.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sharectl",
		Short: "Background share coordinator",
		Long: `sharectl uploads files and creates a post on the team API in the
background, keeping enough state on disk to finish the work after a restart.`,
		SilenceUsage: true,
	}

	// -c/--config is consumed by config.LoadConfig before cobra runs; it is
	// declared here so cobra accepts it.
	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file")
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(cfg),
		newSendCmd(cfg),
		newResumeCmd(cfg),
		newSweepCmd(cfg),
		newPrefsCmd(cfg),
		newSecretCmd(cfg),
		newCertCmd(cfg),
	)

	return rootCmd
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}
