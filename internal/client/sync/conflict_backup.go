package sync

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	conflictMarker = ".conflict"
	// timeFormat is the timestamp in backup names; it sorts lexically by time.
	timeFormat       = "20060102150405"
	timestampPattern = `\d{14}`
)

var conflictRegex = regexp.MustCompile(
	fmt.Sprintf(`%s\.%s(\.\d+)?(\.[^/.]+)?$`, regexp.QuoteMeta(conflictMarker), timestampPattern),
)

// IsConflictPath reports whether path names a conflict backup copy.
func IsConflictPath(p string) bool {
	return conflictRegex.MatchString(p)
}

// ConflictBackupPath returns the backup name for path at the given time.
// e.g. "notes/a.md" -> "notes/a.conflict.20240102030405.md"
func ConflictBackupPath(p string, at time.Time) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return base + conflictMarker + "." + at.Format(timeFormat) + ext
}

// rotatedPath inserts a numeric suffix before the extension.
// e.g. "a.conflict.20240102030405.md" -> "a.conflict.20240102030405.1.md"
func rotatedPath(p string, n int) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return fmt.Sprintf("%s.%d%s", base, n, ext)
}

// WriteConflictBackup stores the losing side of a conflict next to the note.
// An existing backup with the same name is moved to the first free numbered
// name. touched, when set, is called with every path before it is written.
// It returns the backup path.
func WriteConflictBackup(tree *LocalTree, p string, content []byte, at time.Time, touched func(string)) (string, error) {
	if touched == nil {
		touched = func(string) {}
	}
	backup := ConflictBackupPath(p, at)

	if tree.Exists(backup) {
		n := 1
		for tree.Exists(rotatedPath(backup, n)) {
			n++
		}
		rotated := rotatedPath(backup, n)
		touched(backup)
		touched(rotated)
		if err := tree.Rename(backup, rotated); err != nil {
			return "", fmt.Errorf("rotate conflict backup %s: %w", backup, err)
		}
		slog.Debug("rotated conflict backup", "from", backup, "to", rotated)
	}

	touched(backup)
	if err := tree.Write(backup, content, time.Time{}); err != nil {
		return "", fmt.Errorf("write conflict backup %s: %w", backup, err)
	}
	return backup, nil
}
