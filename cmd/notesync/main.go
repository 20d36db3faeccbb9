package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/notesync/notesync/internal/client/config"
	"github.com/notesync/notesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	home, _  = os.UserHomeDir()
	logLevel = new(slog.LevelVar)

	// consoleHandler is the stderr handler installed by main. Commands that
	// open a workspace add the workspace log file next to it.
	consoleHandler slog.Handler
)

var rootCmd = &cobra.Command{
	Use:           "notesync",
	Short:         "Two-way sync between a markdown folder and Youdao Note",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if f := cmd.Flag("log-level"); f != nil && f.Changed {
			return setLogLevel(f.Value.String())
		}
		return nil
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "notesync config file")
	flags.StringP("dir", "d", config.DefaultNotesDir, "notes directory")
	flags.String("cookies", config.DefaultCookiesPath, "cookies.json exported from the browser")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	// .env in the working directory is optional
	_ = godotenv.Load()

	consoleHandler = tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(consoleHandler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "%s %s\n", red.Render("ERROR"), err)
		}
		os.Exit(exitCode(err))
	}
}

func setLogLevel(raw string) error {
	if raw == "" {
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fmt.Errorf("log level %q: %w", raw, err)
	}
	logLevel.Set(level)
	return nil
}
