package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/spf13/cobra"
)

func newResumeCmd(cfg *config.Config) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Finish requests left behind by a previous run",
		Long: `Resume restarts the transfers that a previous coordinator process did not
finish and waits until every resumed request has produced its outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStack(ctx, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			events, unsubscribe := st.orch.Subscribe()
			defer unsubscribe()

			n, err := st.orch.Resume(ctx, cfg.GroupID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %d request(s)\n", n)
			if n == 0 {
				return nil
			}

			if wait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, wait)
				defer cancel()
			}

			idle := make(chan error, 1)
			go func() { idle <- st.waitIdle(ctx) }()
			for {
				select {
				case out, ok := <-events:
					if !ok {
						events = nil
						continue
					}
					printOutcome(cmd.OutOrStdout(), out)
				case err := <-idle:
					for {
						select {
						case out, ok := <-events:
							if !ok {
								return err
							}
							printOutcome(cmd.OutOrStdout(), out)
						default:
							return err
						}
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "stop waiting after this long (0 waits forever)")
	return cmd
}

func newSweepCmd(cfg *config.Config) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim abandoned requests and orphaned records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStack(ctx, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.OrphanTTL
			}
			n, err := st.orch.Sweep(ctx, cfg.GroupID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d request(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "age after which an idle request is abandoned (defaults to --orphan-ttl)")
	return cmd
}
