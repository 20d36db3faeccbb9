package sync

import (
	"bufio"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/notesync/notesync/internal/client/workspace"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// notesync
	workspace.StateDirName + "/",
	workspace.IgnoreFileName,
	"*" + tmpSuffix,
	"*.conflict.*",
	// vcs
	".git",
	".svn",
	// editors
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// general
	"*.tmp",
	// os
	".DS_Store",
	"Thumbs.db",
	"Icon",
}

type SyncIgnoreList struct {
	ignorePath string
	ignore     *gitignore.GitIgnore
}

func NewSyncIgnoreList(ignorePath string) *SyncIgnoreList {
	return &SyncIgnoreList{ignorePath: ignorePath}
}

func (s *SyncIgnoreList) Load() {
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if s.ignorePath != "" {
		if file, err := os.Open(s.ignorePath); err == nil {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				ignoreLines = append(ignoreLines, line)
				rules++
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", s.ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", s.ignorePath, "rules", rules)
			}
		} else if !os.IsNotExist(err) {
			slog.Warn("failed to open ignore file", "path", s.ignorePath, "error", err)
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func (s *SyncIgnoreList) ShouldIgnore(path string) bool {
	if s.ignore == nil {
		s.Load()
	}
	return s.ignore.MatchesPath(path)
}

// PathFilter decides which tree paths take part in sync. Hidden segments,
// ignored paths and conflict copies are excluded, and files must match at
// least one include glob.
type PathFilter struct {
	ignore   *SyncIgnoreList
	includes []string
}

func NewPathFilter(ignore *SyncIgnoreList, includes []string) *PathFilter {
	if len(includes) == 0 {
		includes = []string{"**/*.md"}
	}
	return &PathFilter{ignore: ignore, includes: includes}
}

func (f *PathFilter) AllowDir(rel string) bool {
	if hasHiddenSegment(rel) {
		return false
	}
	if f.ignore != nil && f.ignore.ShouldIgnore(rel+"/") {
		return false
	}
	return true
}

func (f *PathFilter) AllowFile(rel string) bool {
	if hasHiddenSegment(rel) || IsConflictPath(rel) {
		return false
	}
	if f.ignore != nil && f.ignore.ShouldIgnore(rel) {
		return false
	}
	for _, pattern := range f.includes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Allow applies the file rules to a remote path and the directory rules to
// each of its parents.
func (f *PathFilter) Allow(rel string) bool {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if !f.AllowDir(strings.Join(parts[:i], "/")) {
			return false
		}
	}
	return f.AllowFile(rel)
}

func hasHiddenSegment(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
