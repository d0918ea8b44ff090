package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/hostbridge"
	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/orchestrator"
	"github.com/spf13/cobra"
)

var errRequestFailed = errors.New("request failed")

func newSendCmd(cfg *config.Config) *cobra.Command {
	var (
		sub    orchestrator.Submission
		remote bool
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [flags] [file...]",
		Short: "Upload files and create a post",
		Long: `Upload the given files and create a post in a channel that references them.

The command waits for the outcome. With --remote the request is handed to a
running "sharectl serve" over the host bridge instead of being processed in
this process.`,
		Example: `  sharectl send --channel town-square --message "release notes" notes.pdf
  sharectl send --remote --channel town-square --message "hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if wait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, wait)
				defer cancel()
			}

			sub.GroupID = cfg.GroupID
			sub.Files = args

			var (
				out models.Outcome
				err error
			)
			if remote {
				out, err = sendRemote(ctx, cfg, sub)
			} else {
				out, err = sendLocal(ctx, cmd, cfg, sub)
			}
			if err != nil {
				return err
			}

			printOutcome(cmd.OutOrStdout(), out)
			if !out.Success {
				return errRequestFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sub.ChannelID, "channel", "", "channel to post into")
	cmd.Flags().StringVarP(&sub.Message, "message", "m", "", "post message")
	cmd.Flags().StringVar(&sub.RootID, "root", "", "thread root post id")
	cmd.Flags().BoolVar(&sub.Background, "background", false, "mark the request as background initiated")
	cmd.Flags().BoolVar(&remote, "remote", false, "submit through the host bridge")
	cmd.Flags().DurationVar(&wait, "wait", 0, "give up waiting for the outcome after this long (0 waits forever)")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func sendLocal(ctx context.Context, cmd *cobra.Command, cfg *config.Config, sub orchestrator.Submission) (models.Outcome, error) {
	st, err := openStack(ctx, cfg, newLogger(cmd, cfg))
	if err != nil {
		return models.Outcome{}, err
	}
	defer st.Close()

	// Subscribe first: a request that fails early publishes inside Submit.
	events, unsubscribe := st.orch.Subscribe()
	defer unsubscribe()

	id, err := st.orch.Submit(ctx, sub)
	if err != nil {
		return models.Outcome{}, err
	}
	out, err := awaitOutcome(ctx, id, func() (models.Outcome, error) {
		select {
		case out, ok := <-events:
			if !ok {
				return models.Outcome{}, errors.New("outcome subscription dropped")
			}
			return out, nil
		case <-ctx.Done():
			return models.Outcome{}, ctx.Err()
		}
	})
	if err != nil {
		return out, err
	}

	// The outcome is published before the request is fully released.
	return out, st.waitIdle(ctx)
}

func sendRemote(ctx context.Context, cfg *config.Config, sub orchestrator.Submission) (models.Outcome, error) {
	client, err := hostbridge.Dial(cfg.BridgeAddr, cfg.BridgeToken)
	if err != nil {
		return models.Outcome{}, err
	}
	defer client.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.Outcomes(streamCtx)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("subscribe to outcomes: %w", err)
	}

	id, err := client.Submit(ctx, sub)
	if err != nil {
		return models.Outcome{}, err
	}
	return awaitOutcome(ctx, id, stream.Recv)
}

// awaitOutcome reads outcomes until the one for requestID shows up.
func awaitOutcome(ctx context.Context, requestID string, next func() (models.Outcome, error)) (models.Outcome, error) {
	for {
		out, err := next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.Outcome{}, fmt.Errorf("waiting for request %s: %w", requestID, ctxErr)
			}
			return models.Outcome{}, err
		}
		if out.RequestID == requestID {
			return out, nil
		}
	}
}
