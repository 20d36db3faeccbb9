package main

import (
	"github.com/notesync/notesync/internal/client/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one two-way sync pass",
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

			report, err := a.engine.Run(cmd.Context())
			if report != nil {
				printReport(cmd.OutOrStdout(), report, verbose)
				a.recordRun(cmd.Context(), report)
			}
			return reportError(report, err)
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list unchanged paths")
	return cmd
}

// addSyncFlags registers the flags shared by sync and watch.
func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().Bool("push-only", false, "only send local changes")
	cmd.Flags().Bool("pull-only", false, "only fetch remote changes")
	cmd.MarkFlagsMutuallyExclusive("push-only", "pull-only")
	cmd.Flags().Bool("dry-run", false, "print the plan without changing anything")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "concurrent transfers")
	cmd.Flags().String("tie", config.DefaultTiePolicy, "winner when both sides changed in the same second (remote, local, fail)")
	cmd.Flags().String("delete-policy", config.DefaultDeletePolicy, "what to do with a note deleted on one side (restore, propagate)")
	cmd.Flags().Bool("no-backup", false, "do not keep a copy of the losing side of a conflict")
	cmd.Flags().Bool("git-commit", false, "commit pulled files to the git repository around the notes directory")
}
