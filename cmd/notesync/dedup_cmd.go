package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/notesync/notesync/internal/client/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDedupCmd())
}

func newDedupCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Report local files with identical content",
		Long: `Report local files with identical content. With --apply, never synced
copies of a note the store already holds are removed. Notes on the store are
never deleted.`,
		Args: cobra.NoArgs,
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

			groups, err := sync.FindDuplicates(cmd.Context(), a.tree, a.meta)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printDuplicates(out, groups)
			if !apply {
				return nil
			}

			removed, err := sync.RemoveDuplicates(a.tree, groups, nil)
			fmt.Fprintf(out, "%s %d copies\n", green.Render("Removed"), len(removed))
			return err
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "remove the never synced copies")
	return cmd
}

func printDuplicates(w io.Writer, groups []*sync.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicates")
		return
	}

	removable := 0
	for _, g := range groups {
		fmt.Fprintf(w, "%s %s\n", gray.Render(g.Fingerprint[:8]), gray.Render("("+humanize.Bytes(uint64(g.Size))+")"))
		for _, p := range g.Tracked {
			fmt.Fprintf(w, "  %s %s\n", green.Render("synced   "), p)
		}
		for _, p := range g.Untracked {
			label := yellow.Render("local    ")
			for _, r := range g.Removable {
				if r == p {
					label = red.Render("removable")
				}
			}
			fmt.Fprintf(w, "  %s %s\n", label, p)
		}
		removable += len(g.Removable)
	}
	fmt.Fprintf(w, "%d groups, %d removable copies\n", len(groups), removable)
}
