package sync

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
)

// DuplicateGroup is a set of local files with the same normalized content.
type DuplicateGroup struct {
	Fingerprint string
	Size        int64
	// Tracked paths have a metadata entry and exist on the note store.
	Tracked []string
	// Untracked paths were never synced.
	Untracked []string
	// Removable are the untracked copies whose content a synced, unmodified
	// note already holds. Only these are deleted by RemoveDuplicates.
	Removable []string
}

// FindDuplicates groups the files of the notes tree by fingerprint and size
// and returns the groups with more than one member, ordered by first path.
// Empty files never form a group.
func FindDuplicates(ctx context.Context, tree *LocalTree, meta *MetadataStore) ([]*DuplicateGroup, error) {
	files, err := tree.Scan(ctx)
	if err != nil {
		return nil, err
	}

	type key struct {
		fp   string
		size int64
	}
	byKey := make(map[key][]string)
	for p, f := range files {
		if f.Size == 0 {
			continue
		}
		k := key{f.Fingerprint, f.Size}
		byKey[k] = append(byKey[k], p)
	}

	var groups []*DuplicateGroup
	for k, paths := range byKey {
		if len(paths) < 2 {
			continue
		}
		slices.Sort(paths)

		g := &DuplicateGroup{Fingerprint: k.fp, Size: k.size}
		for _, p := range paths {
			if _, ok := meta.Get(p); ok {
				g.Tracked = append(g.Tracked, p)
			} else {
				g.Untracked = append(g.Untracked, p)
			}
		}

		// a synced copy whose last recorded content is this one
		synced := false
		for _, p := range meta.FindByFingerprint(k.fp) {
			if slices.Contains(g.Tracked, p) {
				synced = true
				break
			}
		}
		if synced {
			g.Removable = slices.Clone(g.Untracked)
		}
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b *DuplicateGroup) int {
		return cmp.Compare(a.first(), b.first())
	})
	return groups, nil
}

func (g *DuplicateGroup) first() string {
	return slices.Min(append(slices.Clone(g.Tracked), g.Untracked...))
}

// RemoveDuplicates deletes the removable copies of every group and returns
// the removed paths. touched, when set, is called before each removal.
func RemoveDuplicates(tree *LocalTree, groups []*DuplicateGroup, touched func(string)) ([]string, error) {
	var removed []string
	for _, g := range groups {
		for _, p := range g.Removable {
			if touched != nil {
				touched(p)
			}
			if err := tree.Remove(p); err != nil {
				return removed, err
			}
			slog.Info("dedup", "op", "remove", "path", p, "kept", g.Tracked)
			removed = append(removed, p)
		}
	}
	return removed, nil
}
