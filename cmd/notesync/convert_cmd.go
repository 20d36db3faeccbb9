package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/spf13/cobra"
)

const (
	formatNote     = "note"
	formatMarkdown = "md"
)

func init() {
	rootCmd.AddCommand(newConvertCmd())
}

func newConvertCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "convert [--to note|md] <file>",
		Short: "Convert between markdown and the rich note document format",
		Long: `Convert reads a markdown file and prints the rich note document tree for it,
or reads a rich note document and prints its markdown rendering. Use "-" to
read from stdin. Without --to the direction follows the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			target := to
			if target == "" {
				target = guessTarget(args[0])
			}

			out := cmd.OutOrStdout()
			switch target {
			case formatNote:
				doc := noteformat.FromMarkdown(src, noteformat.NewRandomIDs(time.Now))
				data, err := noteformat.MarshalDocument(doc)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			case formatMarkdown:
				doc, err := noteformat.ParseDocument(src)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, noteformat.RenderMarkdown(doc))
				return err
			default:
				return fmt.Errorf("unknown target format %q, want %q or %q", target, formatNote, formatMarkdown)
			}
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "target format (note, md)")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func guessTarget(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".note", ".json":
		return formatMarkdown
	default:
		return formatNote
	}
}
