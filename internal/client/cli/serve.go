package cli

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/hostbridge"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var sweepEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and the host bridge",
		Long: `Serve runs the coordinator until interrupted. On start it resumes requests
left by a previous process and reclaims orphans, then accepts requests over
the host bridge. Requests still in flight at shutdown are resumed by the
next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd, cfg)
			ctx := cmd.Context()

			st, err := openStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if n, err := st.orch.Resume(ctx, cfg.GroupID); err != nil {
				logger.Error(ctx, "resume failed", "error", err)
			} else if n > 0 {
				logger.Info(ctx, "resumed requests", "count", n)
			}
			st.sweep(ctx)

			bridge := hostbridge.NewServer(cfg.BridgeAddr, st.orch, st.dispatcher, cfg.BridgeToken, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info(gctx, "host bridge listening", "addr", cfg.BridgeAddr)
				return bridge.Run(gctx)
			})
			if cfg.MetricsAddr != "" {
				g.Go(func() error {
					logger.Info(gctx, "metrics listening", "addr", cfg.MetricsAddr)
					return st.metrics.Serve(gctx, cfg.MetricsAddr)
				})
			}
			if sweepEvery > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(sweepEvery)
					defer ticker.Stop()
					for {
						select {
						case <-gctx.Done():
							return nil
						case <-ticker.C:
							st.sweep(gctx)
						}
					}
				})
			}

			err = g.Wait()
			logger.Info(context.WithoutCancel(ctx), "coordinator stopped", "active", st.orch.Active())
			return err
		},
	}

	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", 15*time.Minute, "interval between orphan sweeps (0 disables)")
	return cmd
}

func (s *stack) sweep(ctx context.Context) {
	n, err := s.orch.Sweep(ctx, s.cfg.GroupID, s.cfg.OrphanTTL)
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "sweep reclaimed requests", "count", n)
	}
}
