package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/sync"
	"github.com/skiffsync/skiff/internal/utils"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [path]",
		Short: "Run one sync pass and exit, for every root or just the given one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			roots, err := cfg.WatchRoots()
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				return fmt.Errorf("no roots configured, run %s first", cyan("skiff roots add"))
			}

			if len(args) == 1 {
				resolved, err := utils.ResolvePath(args[0])
				if err != nil {
					return err
				}
				idx := slices.IndexFunc(roots, func(r sync.WatchRoot) bool {
					return r.LocalPath == resolved
				})
				if idx < 0 {
					return fmt.Errorf("no such root: %s", args[0])
				}
				roots = roots[idx : idx+1]
			}

			store, err := remote.NewS3Store(cmd.Context(), &cfg.Remote)
			if err != nil {
				return err
			}

			failed := 0
			for _, root := range roots {
				if err := syncRoot(cmd, cfg, store, root); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", red("✗"), root.LocalPath, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d roots failed", failed, len(roots))
			}
			return nil
		},
	}
}

func syncRoot(cmd *cobra.Command, cfg *config.Config, store remote.Store, root sync.WatchRoot) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s %s\n", cyan(root.LocalPath), directionArrow(root.Direction), green(root.RemotePath))

	state := sync.NewStateStore(cfg.StateDir(), root.LocalPath)
	if err := state.Open(); err != nil {
		if errors.Is(err, sync.ErrStateLocked) {
			return fmt.Errorf("root is locked, is the daemon running?")
		}
		return err
	}
	defer state.Close()

	syncer, err := sync.NewSyncer(root, store, state,
		sync.WithStrategy(cfg.Strategy),
		sync.WithComputeHashes(cfg.ComputeHashes),
		sync.WithProgressFactory(func(key string) remote.Progress {
			return &remote.LogProgress{Key: key}
		}),
	)
	if err != nil {
		return err
	}

	if root.Direction != sync.DirectionDown {
		if _, err := syncer.ReconcileDeletes(ctx); err != nil {
			return err
		}
	}
	if root.Direction == sync.DirectionBoth {
		if err := syncer.RefreshRemoteIndex(ctx); err != nil {
			return err
		}
	}

	failed := 0
	if root.Direction != sync.DirectionDown {
		result, err := syncer.SyncAll(ctx)
		if err != nil {
			return err
		}
		printResult(out, "↑", result)
		failed += len(result.Failed)
	}
	if root.Direction != sync.DirectionUp {
		result, err := syncer.SyncDown(ctx)
		if err != nil {
			return err
		}
		printResult(out, "↓", result)
		failed += len(result.Failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func printResult(out io.Writer, arrow string, result *sync.SyncResult) {
	for _, rel := range result.Synced {
		fmt.Fprintf(out, "  %s %s\n", green(arrow), rel)
	}
	for _, rel := range result.Failed {
		fmt.Fprintf(out, "  %s %s\n", red("✗"), rel)
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "  %s\n", yellow(fmt.Sprintf("%d up to date", len(result.Skipped))))
	}
}
