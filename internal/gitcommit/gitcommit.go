// Package gitcommit records the files touched by a sync run as a commit in
// the git repository that contains the notes directory, if there is one.
package gitcommit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrNotRepository   = errors.New("notes dir is not inside a git repository")
	ErrNothingToCommit = errors.New("nothing to commit")
)

const (
	authorName  = "notesync"
	authorEmail = "notesync@localhost"
)

// Stats summarizes a run for the commit message.
type Stats struct {
	Pulled    int
	Pushed    int
	Conflicts int
	Deleted   int
}

type Committer struct {
	repo   *git.Repository
	wt     *git.Worktree
	prefix string // notes root relative to the worktree root
}

// Open finds the repository that contains notesRoot.
func Open(notesRoot string) (*Committer, error) {
	repo, err := git.PlainOpenWithOptions(notesRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotRepository
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil, ErrNotRepository
		}
		return nil, fmt.Errorf("worktree: %w", err)
	}

	prefix, err := relativeTo(wt.Filesystem.Root(), notesRoot)
	if err != nil {
		return nil, err
	}

	return &Committer{repo: repo, wt: wt, prefix: prefix}, nil
}

// Commit stages the given paths, relative to the notes root, and commits
// them. Paths that no longer exist are staged as removals.
func (c *Committer) Commit(paths []string, msg string, when time.Time) (string, error) {
	staged := 0
	for _, p := range paths {
		rel := path.Join(c.prefix, filepath.ToSlash(p))
		if _, err := c.wt.Filesystem.Stat(rel); err == nil {
			if _, err := c.wt.Add(rel); err != nil {
				return "", fmt.Errorf("add %s: %w", rel, err)
			}
			staged++
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat %s: %w", rel, err)
		}

		if _, err := c.wt.Remove(rel); err != nil {
			slog.Debug("git remove skipped", "path", rel, "error", err)
			continue
		}
		staged++
	}

	if staged == 0 {
		return "", ErrNothingToCommit
	}

	status, err := c.wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	changed := false
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			changed = true
			break
		}
	}
	if !changed {
		return "", ErrNothingToCommit
	}

	sig := &object.Signature{Name: authorName, Email: authorEmail, When: when}
	hash, err := c.wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrNothingToCommit
		}
		return "", fmt.Errorf("commit: %w", err)
	}

	slog.Info("git commit", "hash", hash.String()[:8], "files", staged)
	return hash.String(), nil
}

// Message builds the commit message for a sync run.
func Message(s Stats, when time.Time) string {
	var parts []string
	if s.Pulled > 0 {
		parts = append(parts, fmt.Sprintf("pulled %d", s.Pulled))
	}
	if s.Pushed > 0 {
		parts = append(parts, fmt.Sprintf("pushed %d", s.Pushed))
	}
	if s.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("conflicts %d", s.Conflicts))
	}
	if s.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d", s.Deleted))
	}
	summary := "sync"
	if len(parts) > 0 {
		summary = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("sync: %s (%s)", summary, when.Format("2006-01-02 15:04:05"))
}

func relativeTo(root, dir string) (string, error) {
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	dir, err = filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}
