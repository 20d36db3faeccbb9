package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/utils"
)

const (
	metadataVersion  = 1
	DefaultSaveEvery = 50
	metadataFilePerm = 0o600
	rootDirPath      = ""
)

// MetadataEntry is what was true about a path at its last successful sync.
type MetadataEntry struct {
	FileID           string            `json:"fileId"`
	ParentID         string            `json:"parentId"`
	Domain           noteformat.Domain `json:"domain"`
	LocalFingerprint string            `json:"localFingerprint"`
	RemoteVersion    int64             `json:"remoteVersion"`
	LocalModTime     time.Time         `json:"localModTime"`
	RemoteModTime    time.Time         `json:"remoteModTime"`
	CreateTime       time.Time         `json:"createTime"`
	LastSyncTime     time.Time         `json:"lastSyncTime"`
}

// DirEntry caches the remote id of a directory path.
type DirEntry struct {
	DirID    string `json:"dirId"`
	ParentID string `json:"parentId"`
}

type metadataFile struct {
	Version     int                       `json:"version"`
	Files       map[string]*MetadataEntry `json:"files"`
	Directories map[string]*DirEntry      `json:"directories"`
}

// MetadataStore keeps one entry per synced path and persists them to a JSON
// file. All methods are safe for concurrent use.
type MetadataStore struct {
	path      string
	mu        gosync.Mutex
	files     map[string]*MetadataEntry
	dirs      map[string]*DirEntry
	byPrint   map[string]map[string]struct{}
	pending   int
	saveEvery int
}

func NewMetadataStore(path string) *MetadataStore {
	return &MetadataStore{
		path:      path,
		files:     make(map[string]*MetadataEntry),
		dirs:      make(map[string]*DirEntry),
		byPrint:   make(map[string]map[string]struct{}),
		saveEvery: DefaultSaveEvery,
	}
}

// Load reads the metadata file. A missing file leaves the store empty,
// meaning nothing was synced yet.
func (s *MetadataStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = make(map[string]*MetadataEntry)
	s.dirs = make(map[string]*DirEntry)
	s.byPrint = make(map[string]map[string]struct{})
	s.pending = 0

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read metadata: %w", err)
	}

	var file metadataFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse metadata %s: %w", s.path, err)
	}
	if file.Version > metadataVersion {
		return fmt.Errorf("metadata version %d is newer than supported %d", file.Version, metadataVersion)
	}

	for p, e := range file.Files {
		if e == nil {
			continue
		}
		s.files[p] = e
		s.index(p, e.LocalFingerprint)
	}
	for p, d := range file.Directories {
		if d != nil {
			s.dirs[p] = d
		}
	}

	slog.Debug("metadata loaded", "path", s.path, "files", len(s.files), "dirs", len(s.dirs))
	return nil
}

// SaveEvery sets how many mutations Checkpoint lets accumulate before it
// writes the file. n < 1 saves on every checkpoint.
func (s *MetadataStore) SaveEvery(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.saveEvery = n
}

// Get returns a copy of the entry for path.
func (s *MetadataStore) Get(path string) (MetadataEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.files[path]
	if !ok {
		return MetadataEntry{}, false
	}
	return *e, true
}

// Upsert records the state of a path after a completed transfer. It refuses
// to move an existing file id to a different one or to lower the version of
// the same file id; callers replacing a note must Delete first.
func (s *MetadataStore) Upsert(path string, entry MetadataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.files[path]; ok {
		if prev.FileID != entry.FileID {
			return fmt.Errorf("%w: %s: %s -> %s", ErrFileIDChanged, path, prev.FileID, entry.FileID)
		}
		if entry.RemoteVersion < prev.RemoteVersion {
			return fmt.Errorf("%w: %s: %d -> %d", ErrVersionRegression, path, prev.RemoteVersion, entry.RemoteVersion)
		}
		s.unindex(path, prev.LocalFingerprint)
	}

	e := entry
	s.files[path] = &e
	s.index(path, e.LocalFingerprint)
	s.pending++
	return nil
}

func (s *MetadataStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.files[path]; ok {
		s.unindex(path, prev.LocalFingerprint)
		delete(s.files, path)
		s.pending++
	}
}

// Entries returns a snapshot of all file entries.
func (s *MetadataStore) Entries() map[string]MetadataEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]MetadataEntry, len(s.files))
	for p, e := range s.files {
		out[p] = *e
	}
	return out
}

func (s *MetadataStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// FindByFingerprint returns the sorted paths whose last synced content had
// the given fingerprint.
func (s *MetadataStore) FindByFingerprint(fp string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.byPrint[fp]
	if len(paths) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(paths))
}

func (s *MetadataStore) GetDir(path string) (DirEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dirs[path]
	if !ok {
		return DirEntry{}, false
	}
	return *d, true
}

func (s *MetadataStore) SetDir(path string, dir DirEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.dirs[path]; ok && *prev == dir {
		return
	}
	d := dir
	s.dirs[path] = &d
	s.pending++
}

func (s *MetadataStore) DeleteDir(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dirs[path]; ok {
		delete(s.dirs, path)
		s.pending++
	}
}

// Checkpoint saves once enough mutations have accumulated.
func (s *MetadataStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending < s.saveEvery {
		return nil
	}
	return s.saveLocked()
}

// Flush saves if anything changed since the last save.
func (s *MetadataStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == 0 {
		return nil
	}
	return s.saveLocked()
}

// Save writes the whole store to disk through a temporary file and rename.
func (s *MetadataStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *MetadataStore) saveLocked() error {
	file := metadataFile{
		Version:     metadataVersion,
		Files:       s.files,
		Directories: s.dirs,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}
	if err := utils.WriteFileAtomic(s.path, data, metadataFilePerm); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}

	s.pending = 0
	return nil
}

func (s *MetadataStore) index(path, fp string) {
	if fp == "" {
		return
	}
	set, ok := s.byPrint[fp]
	if !ok {
		set = make(map[string]struct{})
		s.byPrint[fp] = set
	}
	set[path] = struct{}{}
}

func (s *MetadataStore) unindex(path, fp string) {
	if set, ok := s.byPrint[fp]; ok {
		delete(set, path)
		if len(set) == 0 {
			delete(s.byPrint, fp)
		}
	}
}

// DirPaths returns the sorted cached directory paths.
func (s *MetadataStore) DirPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.dirs))
}
