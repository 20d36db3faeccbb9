package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/notesync/notesync/internal/utils"
)

var (
	home, _             = os.UserHomeDir()
	DefaultConfigDir    = filepath.Join(home, ".notesync")
	DefaultConfigPath   = filepath.Join(DefaultConfigDir, "config.json")
	DefaultCookiesPath  = filepath.Join(DefaultConfigDir, "cookies.json")
	DefaultNotesDir     = filepath.Join(home, "YoudaoNotes")
	DefaultBaseURL      = "https://note.youdao.com"
	DefaultMode         = "both"
	DefaultTiePolicy    = "remote"
	DefaultDeletePolicy = "restore"
	DefaultWorkers      = 4
	DefaultScanWorkers  = 8
	DefaultRateLimit    = "20-S"
	DefaultPollInterval = 60 * time.Second
	DefaultMinPoll      = 10 * time.Second
	DefaultDebounce     = 2 * time.Second
	DefaultInclude      = []string{"**/*.md"}
)

const (
	MaxWorkers = 16
)

var (
	Modes          = []string{"both", "push", "pull"}
	TiePolicies    = []string{"remote", "local", "fail"}
	DeletePolicies = []string{"restore", "propagate"}

	ErrNoNotesDir = errors.New("notes dir is required")
)

type Config struct {
	NotesDir     string        `json:"notes_dir"`
	CookiesPath  string        `json:"cookies_path"`
	BaseURL      string        `json:"base_url"`
	Mode         string        `json:"mode"`
	TiePolicy    string        `json:"tie_policy"`
	DeletePolicy string        `json:"delete_policy"`
	Workers      int           `json:"workers"`
	ScanWorkers  int           `json:"scan_workers"`
	RateLimit    string        `json:"rate_limit"`
	Backups      bool          `json:"conflict_backups"`
	GitCommit    bool          `json:"git_commit"`
	Include      []string      `json:"include,omitempty"`
	PollInterval time.Duration `json:"poll_interval"`
	MinPoll      time.Duration `json:"min_poll_interval"`
	Debounce     time.Duration `json:"debounce"`
	LogLevel     string        `json:"log_level,omitempty"`
	DryRun       bool          `json:"-"` // per invocation only
	Path         string        `json:"-"` // location of this config file
}

// Default returns a config with every field set to its default.
func Default() *Config {
	return &Config{
		NotesDir:     DefaultNotesDir,
		CookiesPath:  DefaultCookiesPath,
		BaseURL:      DefaultBaseURL,
		Mode:         DefaultMode,
		TiePolicy:    DefaultTiePolicy,
		DeletePolicy: DefaultDeletePolicy,
		Workers:      DefaultWorkers,
		ScanWorkers:  DefaultScanWorkers,
		RateLimit:    DefaultRateLimit,
		Backups:      true,
		Include:      slices.Clone(DefaultInclude),
		PollInterval: DefaultPollInterval,
		MinPoll:      DefaultMinPoll,
		Debounce:     DefaultDebounce,
		Path:         DefaultConfigPath,
	}
}

// Validate normalizes paths, fills zero values with defaults and rejects
// values the sync engine cannot run with.
func (c *Config) Validate() error {
	var err error

	if c.NotesDir == "" {
		return ErrNoNotesDir
	}
	if c.NotesDir, err = utils.ResolvePath(c.NotesDir); err != nil {
		return fmt.Errorf("notes dir: %w", err)
	}

	if c.CookiesPath == "" {
		c.CookiesPath = DefaultCookiesPath
	}
	if c.CookiesPath, err = utils.ResolvePath(c.CookiesPath); err != nil {
		return fmt.Errorf("cookies path: %w", err)
	}

	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if c.Path, err = utils.ResolvePath(c.Path); err != nil {
		return fmt.Errorf("config path: %w", err)
	}

	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if err := validateURL(c.BaseURL); err != nil {
		return fmt.Errorf("base url: %w", err)
	}

	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if !slices.Contains(Modes, c.Mode) {
		return fmt.Errorf("mode %q: must be one of %v", c.Mode, Modes)
	}

	if c.TiePolicy == "" {
		c.TiePolicy = DefaultTiePolicy
	}
	if !slices.Contains(TiePolicies, c.TiePolicy) {
		return fmt.Errorf("tie policy %q: must be one of %v", c.TiePolicy, TiePolicies)
	}

	if c.DeletePolicy == "" {
		c.DeletePolicy = DefaultDeletePolicy
	}
	if !slices.Contains(DeletePolicies, c.DeletePolicy) {
		return fmt.Errorf("delete policy %q: must be one of %v", c.DeletePolicy, DeletePolicies)
	}

	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers %d: must be between 1 and %d", c.Workers, MaxWorkers)
	}
	if c.ScanWorkers <= 0 {
		c.ScanWorkers = DefaultScanWorkers
	}

	if len(c.Include) == 0 {
		c.Include = slices.Clone(DefaultInclude)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MinPoll <= 0 {
		c.MinPoll = DefaultMinPoll
	}
	c.MinPoll = min(c.MinPoll, c.PollInterval)
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}

	return nil
}

func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}
	return utils.WriteFileAtomic(c.Path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
