package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
	"golang.org/x/sync/errgroup"
)

const (
	richNoteExt = ".note"
	markdownExt = ".md"
)

type remoteDir struct {
	path string
	id   string
}

// LocalName maps a remote note name to its local file name. Rich documents
// stored as "x.note" are kept locally as "x.md".
func LocalName(f *ynote.RemoteFile) string {
	if f.Domain == noteformat.RichDocument && strings.HasSuffix(f.Name, richNoteExt) {
		return strings.TrimSuffix(f.Name, richNoteExt) + markdownExt
	}
	return f.Name
}

// scan lists both sides concurrently.
func (e *Engine) scan(ctx context.Context) (map[string]*LocalFile, map[string]*ynote.RemoteFile, []*Result, error) {
	var (
		local      map[string]*LocalFile
		remote     map[string]*ynote.RemoteFile
		collisions []*Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = e.tree.Scan(gctx)
		if err != nil {
			return fmt.Errorf("scan local: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, collisions, err = e.scanRemote(gctx)
		if err != nil {
			return fmt.Errorf("scan remote: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	slog.Debug("scan complete", "local", len(local), "remote", len(remote), "collisions", len(collisions))
	return local, remote, collisions, nil
}

// scanRemote walks the note store breadth first, listing each level with a
// bounded number of concurrent requests. Directories seen are cached in the
// metadata store.
func (e *Engine) scanRemote(ctx context.Context) (map[string]*ynote.RemoteFile, []*Result, error) {
	root, err := e.remote.Root(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("root: %w", err)
	}

	files := make(map[string]*ynote.RemoteFile)
	seenDirs := map[string]DirEntry{rootDirPath: {DirID: root.ID}}
	var collisions []*Result

	level := []remoteDir{{path: rootDirPath, id: root.ID}}
	for len(level) > 0 {
		listings := make([][]*ynote.RemoteFile, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.ScanWorkers)
		for i, dir := range level {
			g.Go(func() error {
				entries, err := e.remote.ListDirectory(gctx, dir.id)
				if err != nil {
					return fmt.Errorf("list %q: %w", dir.path, err)
				}
				listings[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		var next []remoteDir
		for i, dir := range level {
			for _, f := range listings[i] {
				if f.Dir {
					p := path.Join(dir.path, f.Name)
					if e.tree.filter != nil && !e.tree.filter.AllowDir(p) {
						continue
					}
					seenDirs[p] = DirEntry{DirID: f.ID, ParentID: dir.id}
					next = append(next, remoteDir{path: p, id: f.ID})
					continue
				}

				p := path.Join(dir.path, LocalName(f))
				if e.tree.filter != nil && !e.tree.filter.Allow(p) {
					continue
				}
				if prev, dup := files[p]; dup {
					slog.Warn("remote name collision", "path", p, "kept", prev.Name, "skipped", f.Name)
					collisions = append(collisions, &Result{
						Path:    p,
						Action:  ActionNone,
						Outcome: OutcomeSkipped,
						Reason:  fmt.Sprintf("collision: %q and %q map to the same path", prev.Name, f.Name),
					})
					continue
				}
				files[p] = f
			}
		}
		level = next
	}

	e.syncDirCache(seenDirs)
	return files, collisions, nil
}

// syncDirCache replaces the cached directory ids with the ones just listed.
func (e *Engine) syncDirCache(seen map[string]DirEntry) {
	e.muDirs.Lock()
	defer e.muDirs.Unlock()

	for p, d := range seen {
		e.meta.SetDir(p, d)
	}
	for _, p := range e.meta.DirPaths() {
		if _, ok := seen[p]; !ok {
			e.meta.DeleteDir(p)
		}
	}
}

// ensureRemoteDir returns the id of the remote directory for dir, creating
// missing directories from the top down.
func (e *Engine) ensureRemoteDir(ctx context.Context, dir string) (string, error) {
	e.muDirs.Lock()
	defer e.muDirs.Unlock()

	root, ok := e.meta.GetDir(rootDirPath)
	if !ok {
		r, err := e.remote.Root(ctx)
		if err != nil {
			return "", fmt.Errorf("root: %w", err)
		}
		root = DirEntry{DirID: r.ID}
		e.meta.SetDir(rootDirPath, root)
	}

	if dir == "." || dir == "" {
		return root.DirID, nil
	}

	parentID := root.DirID
	current := ""
	for _, seg := range strings.Split(dir, "/") {
		current = path.Join(current, seg)
		if d, ok := e.meta.GetDir(current); ok {
			parentID = d.DirID
			continue
		}

		created, err := e.remote.CreateDir(ctx, parentID, seg)
		if err != nil {
			return "", fmt.Errorf("create dir %q: %w", current, err)
		}
		slog.Info("sync", "op", "CreateDir", "path", current, "id", created.ID)
		e.meta.SetDir(current, DirEntry{DirID: created.ID, ParentID: parentID})
		parentID = created.ID
	}
	return parentID, nil
}
