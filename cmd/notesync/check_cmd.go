package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the exported cookies by reading the remote root folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			remote, err := newRemote(cfg)
			if err != nil {
				return err
			}

			root, err := remote.Root(cmd.Context())
			if err != nil {
				return err
			}
			children, err := remote.ListDirectory(cmd.Context(), root.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s session accepted\n", green.Render("OK"))
			fmt.Fprintf(out, "Cookies:  %s\n", cyan.Render(cfg.CookiesPath))
			fmt.Fprintf(out, "Server:   %s\n", cyan.Render(cfg.BaseURL))
			fmt.Fprintf(out, "Root:     %s (%d entries)\n", root.ID, len(children))
			return nil
		},
	}
}
