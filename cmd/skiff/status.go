package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skiffsync/skiff/internal/daemon"
	"github.com/skiffsync/skiff/internal/sync"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and root status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			proc, err := daemon.RunningProcess(cfg.PidFilePath())
			if err != nil {
				return err
			}
			if proc != nil {
				detail := ""
				if created, err := proc.CreateTime(); err == nil {
					detail = ", started " + humanize.Time(time.UnixMilli(created))
				}
				if mem, err := proc.MemoryInfo(); err == nil {
					detail += ", rss " + humanize.IBytes(mem.RSS)
				}
				fmt.Fprintf(out, "Daemon:  %s (pid %d%s)\n", green("running"), proc.Pid, detail)
			} else {
				fmt.Fprintf(out, "Daemon:  %s\n", yellow("stopped"))
			}
			fmt.Fprintf(out, "Config:  %s\n", cfg.Path)
			fmt.Fprintf(out, "Logs:    %s\n", cfg.LogFilePath())
			fmt.Fprintln(out)

			roots, err := cfg.WatchRoots()
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				fmt.Fprintln(out, "No roots configured")
				return nil
			}

			for _, root := range roots {
				fmt.Fprintf(out, "%s %s %s", cyan(root.LocalPath), directionArrow(root.Direction), green(root.RemotePath))

				summary, err := sync.ReadStateSummary(cfg.StateDir(), root.LocalPath)
				if err != nil {
					fmt.Fprintf(out, "  %s\n", red("state unreadable"))
					continue
				}
				last := "never"
				if !summary.LastSync.IsZero() {
					last = humanize.Time(summary.LastSync)
				}
				fmt.Fprintf(out, "  %d files, last sync %s\n", summary.Files, last)
			}
			return nil
		},
	}
}
