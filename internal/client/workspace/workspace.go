package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/notesync/notesync/internal/utils"
)

const (
	StateDirName   = ".notesync"
	IgnoreFileName = ".notesyncignore"

	logsDir      = "logs"
	lockFile     = "notesync.lock"
	metadataFile = "metadata.json"
	historyFile  = "history.db"
	rulesFile    = "rules.yaml"
	logFile      = "notesync.log"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrNotADirectory   = errors.New("notes root is not a directory")
)

// Workspace is a notes directory together with the sync state kept inside it.
type Workspace struct {
	Root         string
	StateDir     string
	LogsDir      string
	MetadataPath string
	HistoryPath  string
	RulesPath    string
	IgnorePath   string
	LogPath      string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	stateDir := filepath.Join(root, StateDirName)
	return &Workspace{
		Root:         root,
		StateDir:     stateDir,
		LogsDir:      filepath.Join(stateDir, logsDir),
		MetadataPath: filepath.Join(stateDir, metadataFile),
		HistoryPath:  filepath.Join(stateDir, historyFile),
		RulesPath:    filepath.Join(stateDir, rulesFile),
		IgnorePath:   filepath.Join(root, IgnoreFileName),
		LogPath:      filepath.Join(stateDir, logsDir, logFile),
		flock:        flock.New(filepath.Join(stateDir, lockFile)),
	}, nil
}

func (w *Workspace) Lock() error {
	// .notesync/notesync.lock keeps a second sync process out of this tree
	if err := utils.EnsureDir(w.StateDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.StateDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup creates the notes root and state directories and takes the lock.
func (w *Workspace) Setup() error {
	if info, err := os.Stat(w.Root); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, w.Root)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	for _, dir := range []string{w.Root, w.StateDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// AbsPath returns the absolute path of a slash separated path relative to the root
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath returns the slash separated path of absPath relative to the root
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", absPath, w.Root)
	}
	return NormPath(relPath), nil
}

// IsStatePath reports whether a relative path points into the state directory
func IsStatePath(relPath string) bool {
	relPath = NormPath(relPath)
	return relPath == StateDirName || strings.HasPrefix(relPath, StateDirName+"/")
}

// NormPath normalizes a path by cleaning it, replacing backslashes with slashes, and trimming leading slashes
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}
