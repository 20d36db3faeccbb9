package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/notesync/notesync/internal/client/config"
	"github.com/notesync/notesync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// config keys bound to command line flags
var flagKeys = map[string]string{
	"notes_dir":         "dir",
	"cookies_path":      "cookies",
	"log_level":         "log-level",
	"workers":           "workers",
	"tie_policy":        "tie",
	"delete_policy":     "delete-policy",
	"git_commit":        "git-commit",
	"poll_interval":     "poll",
	"min_poll_interval": "poll-min",
	"debounce":          "debounce",
}

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) NOTESYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv("NOTESYNC_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		config.DefaultConfigPath,
		filepath.Join(home, ".config", "notesync", "config.json"),
	}
	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}

// loadConfig merges flags, NOTESYNC_* env vars, the config file and defaults
// into a validated config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	def := config.Default()
	v.SetDefault("notes_dir", def.NotesDir)
	v.SetDefault("cookies_path", def.CookiesPath)
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("mode", def.Mode)
	v.SetDefault("tie_policy", def.TiePolicy)
	v.SetDefault("delete_policy", def.DeletePolicy)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("scan_workers", def.ScanWorkers)
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("conflict_backups", def.Backups)
	v.SetDefault("git_commit", def.GitCommit)
	v.SetDefault("include", def.Include)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("min_poll_interval", def.MinPoll)
	v.SetDefault("debounce", def.Debounce)
	v.SetDefault("log_level", "info")

	bindFlags(v, cmd.Flags())

	// Set up environment variables
	v.SetEnvPrefix("NOTESYNC")
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:         configPath,
		NotesDir:     v.GetString("notes_dir"),
		CookiesPath:  v.GetString("cookies_path"),
		BaseURL:      v.GetString("base_url"),
		Mode:         v.GetString("mode"),
		TiePolicy:    v.GetString("tie_policy"),
		DeletePolicy: v.GetString("delete_policy"),
		Workers:      v.GetInt("workers"),
		ScanWorkers:  v.GetInt("scan_workers"),
		RateLimit:    v.GetString("rate_limit"),
		Backups:      v.GetBool("conflict_backups"),
		GitCommit:    v.GetBool("git_commit"),
		Include:      v.GetStringSlice("include"),
		PollInterval: v.GetDuration("poll_interval"),
		MinPoll:      v.GetDuration("min_poll_interval"),
		Debounce:     v.GetDuration("debounce"),
		LogLevel:     v.GetString("log_level"),
	}

	// per invocation switches
	flags := cmd.Flags()
	if changed(flags, "push-only") {
		cfg.Mode = "push"
	}
	if changed(flags, "pull-only") {
		cfg.Mode = "pull"
	}
	if changed(flags, "no-backup") {
		cfg.Backups = false
	}
	if changed(flags, "dry-run") {
		cfg.DryRun, _ = flags.GetBool("dry-run")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for key, name := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func changed(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}
