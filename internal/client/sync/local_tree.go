package sync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	fingerprintCacheSize = 4096
	tmpSuffix            = ".notesync.tmp"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LocalFile is a note file found in the notes tree.
type LocalFile struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Fingerprint string
}

type cachedFingerprint struct {
	size        int64
	modTime     time.Time
	fingerprint string
}

// LocalTree reads and writes note files below the notes root. Paths are
// slash separated and relative to the root.
type LocalTree struct {
	fs     billy.Filesystem
	osRoot string
	filter *PathFilter
	cache  *lru.Cache[string, cachedFingerprint]
}

func NewLocalTree(fs billy.Filesystem, filter *PathFilter) *LocalTree {
	cache, _ := lru.New[string, cachedFingerprint](fingerprintCacheSize)
	return &LocalTree{fs: fs, filter: filter, cache: cache}
}

// NewOSLocalTree returns a tree over a directory on disk.
func NewOSLocalTree(root string, filter *PathFilter) *LocalTree {
	t := NewLocalTree(osfs.New(root), filter)
	t.osRoot = root
	return t
}

func (t *LocalTree) Filter() *PathFilter {
	return t.filter
}

// Fingerprint returns the hex MD5 of content with a leading UTF-8 BOM
// removed and CRLF line endings folded to LF.
func Fingerprint(content []byte) string {
	sum := md5.Sum(normalizeContent(content))
	return hex.EncodeToString(sum[:])
}

func normalizeContent(content []byte) []byte {
	content = bytes.TrimPrefix(content, utf8BOM)
	if bytes.Contains(content, []byte("\r\n")) {
		content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	}
	return content
}

// Scan walks the tree and returns every file the filter allows.
func (t *LocalTree) Scan(ctx context.Context) (map[string]*LocalFile, error) {
	files := make(map[string]*LocalFile)
	if err := t.walk(ctx, "", files); err != nil {
		return nil, err
	}
	return files, nil
}

func (t *LocalTree) walk(ctx context.Context, dir string, out map[string]*LocalFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := t.fs.ReadDir(fsPath(dir))
	if err != nil {
		if os.IsNotExist(err) && dir == "" {
			return nil
		}
		return fmt.Errorf("%w: read dir %q: %w", ErrLocalIO, dir, err)
	}

	for _, info := range entries {
		rel := path.Join(dir, info.Name())

		if info.IsDir() {
			if t.filter != nil && !t.filter.AllowDir(rel) {
				continue
			}
			if err := t.walk(ctx, rel, out); err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if t.filter != nil && !t.filter.AllowFile(rel) {
			continue
		}

		fp, err := t.fingerprint(rel, info)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", rel, "error", err)
			continue
		}
		out[rel] = &LocalFile{
			Path:        rel,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			Fingerprint: fp,
		}
	}
	return nil
}

func (t *LocalTree) fingerprint(rel string, info os.FileInfo) (string, error) {
	if c, ok := t.cache.Get(rel); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.fingerprint, nil
	}

	data, err := t.Read(rel)
	if err != nil {
		return "", err
	}
	fp := Fingerprint(data)
	t.cache.Add(rel, cachedFingerprint{size: info.Size(), modTime: info.ModTime(), fingerprint: fp})
	return fp, nil
}

// Stat returns the current state of one file, or nil if it does not exist.
func (t *LocalTree) Stat(rel string) (*LocalFile, error) {
	info, err := t.fs.Stat(fsPath(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrLocalIO, rel, err)
	}
	fp, err := t.fingerprint(rel, info)
	if err != nil {
		return nil, err
	}
	return &LocalFile{Path: rel, Size: info.Size(), ModTime: info.ModTime(), Fingerprint: fp}, nil
}

func (t *LocalTree) Exists(rel string) bool {
	_, err := t.fs.Stat(fsPath(rel))
	return err == nil
}

func (t *LocalTree) Read(rel string) ([]byte, error) {
	f, err := t.fs.Open(fsPath(rel))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLocalIO, rel, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrLocalIO, rel, err)
	}
	return data, nil
}

// Write replaces the file at rel with data through a temporary file and a
// rename, so readers never see a partial note. A non-zero modTime is set on
// the result.
func (t *LocalTree) Write(rel string, data []byte, modTime time.Time) error {
	target := fsPath(rel)
	if dir := path.Dir(rel); dir != "." {
		if err := t.fs.MkdirAll(fsPath(dir), 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ErrLocalIO, dir, err)
		}
	}

	tmp := target + tmpSuffix
	if err := util.WriteFile(t.fs, tmp, data, 0o644); err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("%w: write %s: %w", ErrLocalIO, rel, err)
	}
	if err := t.fs.Rename(tmp, target); err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %w", ErrLocalIO, rel, err)
	}

	if !modTime.IsZero() {
		if err := t.Chtimes(rel, modTime); err != nil {
			slog.Debug("set mtime failed", "path", rel, "error", err)
		}
	}
	t.cache.Remove(rel)
	return nil
}

// Chtimes sets the modification time if the filesystem supports it.
func (t *LocalTree) Chtimes(rel string, modTime time.Time) error {
	if ch, ok := t.fs.(billy.Change); ok {
		return ch.Chtimes(fsPath(rel), modTime, modTime)
	}
	if t.osRoot != "" {
		return os.Chtimes(filepath.Join(t.osRoot, filepath.FromSlash(rel)), modTime, modTime)
	}
	return errors.New("filesystem does not support chtimes")
}

func (t *LocalTree) Remove(rel string) error {
	if err := t.fs.Remove(fsPath(rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %w", ErrLocalIO, rel, err)
	}
	t.cache.Remove(rel)
	return nil
}

func (t *LocalTree) Rename(from, to string) error {
	if err := t.fs.Rename(fsPath(from), fsPath(to)); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrLocalIO, from, err)
	}
	t.cache.Remove(from)
	return nil
}

// Root returns the filesystem root, used for log messages and the watcher.
func (t *LocalTree) Root() string {
	return t.fs.Root()
}

// fsPath maps a tree path to a billy path; the empty path is the root.
func fsPath(rel string) string {
	if rel == "" {
		return "/"
	}
	return rel
}
