package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/notesync/notesync/internal/client/sync"
	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
)

// Store is what an export reads from the note store.
type Store interface {
	Lister
	Download(ctx context.Context, fileID string, version int64) (*ynote.Download, error)
}

// ExportStats summarizes one export.
type ExportStats struct {
	Notes  int
	Bytes  int64
	Failed map[string]error
}

// Exporter copies notes or whole folders out of the note store into a local
// directory. Exported files are not tracked for sync.
type Exporter struct {
	store Store
	tree  *sync.LocalTree
}

func NewExporter(store Store, tree *sync.LocalTree) *Exporter {
	return &Exporter{store: store, tree: tree}
}

// Export writes f below dest: a note as one file, a folder as a directory
// with everything under it. A note that fails is recorded in the stats and
// the export goes on; a rejected session stops it.
func (x *Exporter) Export(ctx context.Context, f *ynote.RemoteFile, dest string) (*ExportStats, error) {
	stats := &ExportStats{Failed: make(map[string]error)}
	err := x.export(ctx, f, dest, stats)
	return stats, err
}

func (x *Exporter) export(ctx context.Context, f *ynote.RemoteFile, dest string, stats *ExportStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !f.Dir {
		p := path.Join(dest, sync.LocalName(f))
		n, err := x.exportNote(ctx, f, p)
		if err != nil {
			if errors.Is(err, ynote.ErrAuth) {
				return err
			}
			slog.Error("export", "path", p, "error", err)
			stats.Failed[p] = err
			return nil
		}
		stats.Notes++
		stats.Bytes += n
		return nil
	}

	dir := path.Join(dest, f.Name)
	entries, err := x.store.ListDirectory(ctx, f.ID)
	if err != nil {
		if errors.Is(err, ynote.ErrAuth) {
			return err
		}
		slog.Error("export", "path", dir, "error", err)
		stats.Failed[dir] = err
		return nil
	}
	for _, e := range entries {
		if err := x.export(ctx, e, dir, stats); err != nil {
			return err
		}
	}
	return nil
}

func (x *Exporter) exportNote(ctx context.Context, f *ynote.RemoteFile, p string) (int64, error) {
	dl, err := x.store.Download(ctx, f.ID, f.Version)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	domain := dl.Domain
	if !domain.Valid() {
		domain = f.Domain
	}
	text, err := noteformat.Decode(domain, dl.Content)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	if err := x.tree.Write(p, []byte(text), f.ModifyTime); err != nil {
		return 0, err
	}
	slog.Info("export", "path", p, "size", len(text))
	return int64(len(text)), nil
}
