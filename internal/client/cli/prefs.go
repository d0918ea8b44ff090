package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/spf13/cobra"
)

// prefKeys are the preferences the coordinator reads from the bucket.
var prefKeys = []string{
	common.PrefServerURL,
	common.PrefToken,
	common.PrefCurrentUserID,
	common.PrefCertificateName,
	common.PrefMaxFileSize,
}

func newPrefsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write host preferences in the shared bucket",
	}
	cmd.AddCommand(newPrefsSetCmd(cfg), newPrefsGetCmd(cfg), newPrefsUnsetCmd(cfg))
	return cmd
}

func checkPrefKey(key string) error {
	for _, k := range prefKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown preference %q (want one of %s)", key, strings.Join(prefKeys, ", "))
}

func newPrefsSetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPrefKey(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openBucket(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Set(ctx, cfg.GroupID, args[0], []byte(args[1]))
		},
	}
}

func newPrefsUnsetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPrefKey(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openBucket(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Delete(ctx, cfg.GroupID, args[0])
		},
	}
}

func newPrefsGetCmd(cfg *config.Config) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Show one or all preferences",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := prefKeys
			if len(args) == 1 {
				if err := checkPrefKey(args[0]); err != nil {
					return err
				}
				keys = args
			}

			ctx := cmd.Context()
			store, err := openBucket(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var rows [][]string
			for _, k := range keys {
				v, ok, err := bucket.GetString(ctx, store, cfg.GroupID, k)
				if err != nil {
					return err
				}
				switch {
				case !ok:
					v = "-"
				case k == common.PrefToken && !reveal:
					v = "********"
				}
				rows = append(rows, []string{k, v})
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
			printTable(cmd.OutOrStdout(), []string{"KEY", "VALUE"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the token in clear text")
	return cmd
}
