package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/sync"
)

func init() {
	rootCmd.AddCommand(newRootsCmd())
}

func newRootsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage synced folders",
	}
	cmd.AddCommand(newRootsListCmd(), newRootsAddCmd(), newRootsRemoveCmd())
	return cmd
}

func newRootsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List synced folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Roots) == 0 {
				fmt.Fprintln(out, "No roots configured")
				return nil
			}

			for _, root := range cfg.Roots {
				fmt.Fprintf(out, "%s %s %s", cyan(root.LocalPath), directionArrow(root.Direction), green(root.RemotePath))
				if len(root.IgnorePatterns) > 0 {
					fmt.Fprintf(out, "  (%d ignore patterns)", len(root.IgnorePatterns))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newRootsAddCmd() *cobra.Command {
	var remotePath string
	var direction string
	var ignorePatterns []string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a folder to sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			root := config.RootConfig{
				LocalPath:      args[0],
				RemotePath:     remotePath,
				Direction:      sync.Direction(direction),
				IgnorePatterns: ignorePatterns,
			}
			if err := cfg.AddRoot(root); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			added := cfg.Roots[len(cfg.Roots)-1]
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s %s\n", cyan(added.LocalPath), directionArrow(added.Direction), green(added.RemotePath))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&remotePath, "remote", "r", "", "remote prefix, e.g. backups/laptop/docs")
	cmd.Flags().StringVarP(&direction, "direction", "d", string(sync.DirectionBoth), "sync direction (up, down, both)")
	cmd.Flags().StringArrayVarP(&ignorePatterns, "ignore", "i", nil, "extra ignore patterns for this root")
	cmd.MarkFlagRequired("remote")

	return cmd
}

func newRootsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop syncing a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.RemoveRoot(args[0]) {
				return fmt.Errorf("no such root: %s", args[0])
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cyan(args[0]))
			return nil
		},
	}
}
