package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notesync/notesync/internal/client/config"
	"github.com/notesync/notesync/internal/client/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously, on local changes and on a poll interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := openWorkspace(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connect(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (poll %s to %s, debounce %s)\n",
				cyan.Render(a.ws.Root), cfg.MinPoll, cfg.PollInterval, cfg.Debounce)

			err = sync.Watch(cmd.Context(), a.engine, sync.WatchOptions{
				PollInterval:    cfg.PollInterval,
				MinPollInterval: cfg.MinPoll,
				Debounce:        cfg.Debounce,
				OnReport: func(report *sync.Report, err error) {
					if report == nil {
						return
					}
					if report.HasChanges() || report.Aborted || len(report.Failed()) > 0 {
						printReport(out, report, false)
					}
					a.recordRun(context.WithoutCancel(cmd.Context()), report)
				},
			})
			if errors.Is(err, context.Canceled) {
				slog.Info("watch stopped")
				return nil
			}
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().Duration("poll", config.DefaultPollInterval, "longest time between remote checks")
	cmd.Flags().Duration("poll-min", config.DefaultMinPoll, "time between remote checks while notes are changing")
	cmd.Flags().Duration("debounce", config.DefaultDebounce, "quiet time after a local change before syncing")
	return cmd
}
