package browse

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/notesync/notesync/internal/ynote"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxSearchDepth bounds how many folder levels a search descends.
	MaxSearchDepth   = 50
	defaultListDepth = 2
	defaultWorkers   = 8
)

// Lister is the read-only part of the note store a Browser needs.
type Lister interface {
	Root(ctx context.Context) (*ynote.RemoteFile, error)
	ListDirectory(ctx context.Context, dirID string) ([]*ynote.RemoteFile, error)
}

// Kind restricts search results to folders or notes.
type Kind string

const (
	KindAll    Kind = "all"
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindAll:
		return KindAll, nil
	case KindFolder, KindFile:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q (want all, folder or file)", s)
}

func (k Kind) matches(f *ynote.RemoteFile) bool {
	switch k {
	case KindFolder:
		return f.Dir
	case KindFile:
		return !f.Dir
	default:
		return true
	}
}

// Query describes a search by name.
type Query struct {
	Name  string
	Kind  Kind
	Exact bool
}

func (q Query) matches(f *ynote.RemoteFile) bool {
	if !q.Kind.matches(f) {
		return false
	}
	if q.Exact {
		return f.Name == q.Name
	}
	return strings.Contains(strings.ToLower(f.Name), strings.ToLower(q.Name))
}

// Match is a search hit with its slash separated path in the note store.
type Match struct {
	Path string
	File *ynote.RemoteFile
}

// Entry is a node of a listed folder tree.
type Entry struct {
	Path     string
	File     *ynote.RemoteFile
	Children []*Entry
}

// Browser walks the folder structure of the note store.
type Browser struct {
	store   Lister
	workers int
}

func NewBrowser(store Lister, workers int) *Browser {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Browser{store: store, workers: workers}
}

// FindFolder resolves a slash separated folder path. An empty path or "/" is
// the root folder.
func (b *Browser) FindFolder(ctx context.Context, p string) (*ynote.RemoteFile, error) {
	dir, err := b.store.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}

	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		entries, err := b.store.ListDirectory(ctx, dir.ID)
		if err != nil {
			return nil, err
		}
		idx := slices.IndexFunc(entries, func(f *ynote.RemoteFile) bool {
			return f.Dir && f.Name == part
		})
		if idx < 0 {
			return nil, fmt.Errorf("folder %q: %w", p, ynote.ErrNotFound)
		}
		dir = entries[idx]
	}
	return dir, nil
}

// Tree lists dir down to depth levels. Folders come before notes; each group
// is sorted by name.
func (b *Browser) Tree(ctx context.Context, dir *ynote.RemoteFile, prefix string, depth int) ([]*Entry, error) {
	if depth <= 0 {
		depth = defaultListDepth
	}
	return b.tree(ctx, dir.ID, prefix, depth)
}

func (b *Browser) tree(ctx context.Context, dirID, prefix string, depth int) ([]*Entry, error) {
	files, err := b.store.ListDirectory(ctx, dirID)
	if err != nil {
		return nil, err
	}
	sortEntries(files)

	entries := make([]*Entry, 0, len(files))
	for _, f := range files {
		e := &Entry{Path: path.Join(prefix, f.Name), File: f}
		if f.Dir && depth > 1 {
			if e.Children, err = b.tree(ctx, f.ID, e.Path, depth-1); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func sortEntries(files []*ynote.RemoteFile) {
	slices.SortStableFunc(files, func(a, b *ynote.RemoteFile) int {
		if a.Dir != b.Dir {
			if a.Dir {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

type level struct {
	path string
	id   string
}

// Search walks the whole note store breadth first and returns the entries
// matching q, sorted by path. A folder that fails to list is skipped with a
// warning unless the session was rejected.
func (b *Browser) Search(ctx context.Context, q Query) ([]*Match, error) {
	if q.Name == "" {
		return nil, errors.New("search: empty name")
	}
	root, err := b.store.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}

	var matches []*Match
	current := []level{{id: root.ID}}
	for depth := 0; len(current) > 0 && depth < MaxSearchDepth; depth++ {
		listings := make([][]*ynote.RemoteFile, len(current))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		for i, dir := range current {
			g.Go(func() error {
				entries, err := b.store.ListDirectory(gctx, dir.id)
				switch {
				case errors.Is(err, ynote.ErrAuth):
					return err
				case err != nil:
					slog.Warn("search: skipping folder", "path", dir.path, "error", err)
					return nil
				}
				listings[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []level
		for i, dir := range current {
			for _, f := range listings[i] {
				p := path.Join(dir.path, f.Name)
				if q.matches(f) {
					matches = append(matches, &Match{Path: p, File: f})
				}
				if f.Dir {
					next = append(next, level{path: p, id: f.ID})
				}
			}
		}
		if len(next) > 0 && depth+1 == MaxSearchDepth {
			slog.Warn("search depth limit reached", "depth", MaxSearchDepth, "skipped", len(next))
		}
		current = next
	}

	slices.SortFunc(matches, func(a, b *Match) int { return cmp.Compare(a.Path, b.Path) })
	return matches, nil
}
