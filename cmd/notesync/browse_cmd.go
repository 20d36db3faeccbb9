package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/notesync/notesync/internal/client/browse"
	"github.com/notesync/notesync/internal/client/config"
	"github.com/notesync/notesync/internal/client/sync"
	"github.com/notesync/notesync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newDownloadCmd())
}

func newBrowser(cfg *config.Config) (*browse.Browser, browse.Store, error) {
	remote, err := newRemote(cfg)
	if err != nil {
		return nil, nil, err
	}
	return browse.NewBrowser(remote, cfg.ScanWorkers), remote, nil
}

func newListCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "list [folder]",
		Short: "Show the remote folder tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, _, err := newBrowser(cfg)
			if err != nil {
				return err
			}

			folder := ""
			if len(args) == 1 {
				folder = strings.Trim(args[0], "/")
			}
			dir, err := b.FindFolder(cmd.Context(), folder)
			if err != nil {
				return err
			}
			entries, err := b.Tree(cmd.Context(), dir, folder, depth)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if folder == "" {
				fmt.Fprintln(out, cyan.Render("/"))
			} else {
				fmt.Fprintln(out, cyan.Render(folder+"/"))
			}
			printTree(out, entries, 1)
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "n", 2, "number of folder levels to show")
	return cmd
}

func printTree(w io.Writer, entries []*browse.Entry, level int) {
	indent := strings.Repeat("  ", level)
	for _, e := range entries {
		if e.File.Dir {
			fmt.Fprintf(w, "%s%s\n", indent, cyan.Render(e.File.Name+"/"))
			printTree(w, e.Children, level+1)
			continue
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, e.File.Name, gray.Render("("+humanize.Bytes(uint64(e.File.Size))+")"))
	}
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "all", "match folders, notes or both (folder, file, all)")
	cmd.Flags().BoolP("exact", "e", false, "match the whole name, case sensitive")
}

func queryFromFlags(cmd *cobra.Command, name string) (browse.Query, error) {
	raw, _ := cmd.Flags().GetString("type")
	kind, err := browse.ParseKind(raw)
	if err != nil {
		return browse.Query{}, err
	}
	exact, _ := cmd.Flags().GetBool("exact")
	return browse.Query{Name: name, Kind: kind, Exact: exact}, nil
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Find remote notes and folders by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			query, err := queryFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			b, _, err := newBrowser(cfg)
			if err != nil {
				return err
			}

			matches, err := b.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}

	addQueryFlags(cmd)
	return cmd
}

func printMatches(w io.Writer, matches []*browse.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, yellow.Render("No matches"))
		return
	}
	fmt.Fprintf(w, "Found %d matches:\n", len(matches))
	for i, m := range matches {
		name := m.Path
		if m.File.Dir {
			name = cyan.Render(m.Path + "/")
		}
		fmt.Fprintf(w, "%3d. %s\n", i+1, name)
	}
}

// selectMatches picks the matches to download. Several matches need an
// explicit choice.
func selectMatches(matches []*browse.Match, pick int, all bool) ([]*browse.Match, error) {
	switch {
	case len(matches) == 0:
		return nil, errors.New("no matches")
	case all:
		return matches, nil
	case pick > 0:
		if pick > len(matches) {
			return nil, fmt.Errorf("--pick %d: only %d matches", pick, len(matches))
		}
		return matches[pick-1 : pick], nil
	case len(matches) == 1:
		return matches, nil
	default:
		return nil, fmt.Errorf("%d matches; pass --pick N or --all", len(matches))
	}
}

func newDownloadCmd() *cobra.Command {
	var (
		outDir string
		pick   int
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Search the note store and copy the matching notes or folders to a local directory",
		Long: `Search the note store and copy the matching notes or folders to a local
directory. The copies are not tracked; use sync for notes that should stay
in step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			query, err := queryFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			b, store, err := newBrowser(cfg)
			if err != nil {
				return err
			}

			matches, err := b.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			selected, err := selectMatches(matches, pick, all)
			if err != nil {
				printMatches(out, matches)
				return err
			}

			dest, err := utils.ResolvePath(outDir)
			if err != nil {
				return err
			}
			if err := utils.EnsureDir(dest); err != nil {
				return err
			}
			x := browse.NewExporter(store, sync.NewOSLocalTree(dest, nil))

			total := &browse.ExportStats{Failed: make(map[string]error)}
			for _, m := range selected {
				stats, err := x.Export(cmd.Context(), m.File, "")
				if err != nil {
					return err
				}
				total.Notes += stats.Notes
				total.Bytes += stats.Bytes
				for p, ferr := range stats.Failed {
					total.Failed[p] = ferr
				}
			}

			fmt.Fprintf(out, "%s %d notes (%s) to %s\n",
				green.Render("Downloaded"), total.Notes, humanize.Bytes(uint64(total.Bytes)), cyan.Render(dest))
			if len(total.Failed) > 0 {
				for _, p := range slices.Sorted(maps.Keys(total.Failed)) {
					fmt.Fprintf(out, "  %s %s: %v\n", red.Render("failed"), p, total.Failed[p])
				}
				return &exitError{code: 1, err: fmt.Errorf("%d notes failed", len(total.Failed))}
			}
			return nil
		},
	}

	addQueryFlags(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write the notes to")
	cmd.Flags().IntVar(&pick, "pick", 0, "download only the Nth match")
	cmd.Flags().BoolVar(&all, "all", false, "download every match")
	cmd.MarkFlagsMutuallyExclusive("pick", "all")
	return cmd
}
