package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/notesync/notesync/internal/client/history"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var (
		runs    int
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked notes, recent runs and what the next sync would do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.DryRun = true

			a, err := openWorkspace(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Notes dir:  %s\n", cyan.Render(a.ws.Root))
			fmt.Fprintf(out, "Tracked:    %d notes, %d folders\n", a.meta.Len(), len(a.meta.DirPaths()))

			if a.history != nil {
				recent, err := a.history.Recent(cmd.Context(), runs)
				if err != nil {
					return err
				}
				printRuns(out, recent)
			}

			if offline {
				return nil
			}

			if err := a.connect(); err != nil {
				slog.Warn("pending changes unavailable", "error", err)
				fmt.Fprintf(out, "Pending:    %s\n", red.Render(err.Error()))
				return nil
			}
			report, err := a.engine.Run(cmd.Context())
			if err != nil {
				return reportError(report, err)
			}
			fmt.Fprintln(out, "Pending:")
			printReport(out, report, false)
			return nil
		},
	}

	cmd.Flags().IntVarP(&runs, "runs", "n", 5, "number of recent runs to show")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the note server")
	return cmd
}

func printRuns(w io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "Last run:   never")
		return
	}

	fmt.Fprintln(w, "Recent runs:")
	for _, run := range runs {
		state := green.Render("ok")
		switch {
		case run.Aborted:
			state = red.Render("aborted")
		case run.Failed > 0:
			state = red.Render(fmt.Sprintf("%d failed", run.Failed))
		case run.DryRun:
			state = lightGray.Render("dry run")
		}
		fmt.Fprintf(w, "  #%-4d %-14s %-5s %3d transfers  %s\n",
			run.ID,
			humanize.Time(run.FinishedAt),
			run.Mode,
			run.Transfers,
			state,
		)
	}
}
