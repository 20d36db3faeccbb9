package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeNote struct {
	file    ynote.RemoteFile
	content []byte
	// content by version, for downloads pinned to a listed version
	versions map[int64][]byte
}

func (n *fakeNote) save(content []byte) {
	n.content = slices.Clone(content)
	if n.versions == nil {
		n.versions = make(map[int64][]byte)
	}
	n.versions[n.file.Version] = n.content
}

// fakeRemote is an in-memory note store.
type fakeRemote struct {
	mu      gosync.Mutex
	rootID  string
	notes   map[string]*fakeNote
	nextID  int
	calls   map[string]int
	pushes  []ynote.PushRequest
	deleted []string

	downloadErr map[string]error
	// edits applied by another client right before the download of a note
	editsOnDownload map[string]string
	pushErr         error
	listErr         error
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{
		rootID:          "root",
		notes:           make(map[string]*fakeNote),
		calls:           make(map[string]int),
		downloadErr:     make(map[string]error),
		editsOnDownload: make(map[string]string),
	}
	f.notes["root"] = &fakeNote{file: ynote.RemoteFile{ID: "root", Name: "/", Dir: true}}
	return f
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// transfers counts calls that move content or delete notes.
func (f *fakeRemote) transfers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["Download"] + f.calls["Push"] + f.calls["Delete"]
}

func (f *fakeRemote) addDir(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[id] = &fakeNote{file: ynote.RemoteFile{ID: id, ParentID: parentID, Name: name, Dir: true}}
}

func (f *fakeRemote) addNote(parentID, id, name string, domain noteformat.Domain, content string, version int64, mod time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &fakeNote{
		file: ynote.RemoteFile{
			ID:         id,
			ParentID:   parentID,
			Name:       name,
			Domain:     domain,
			Version:    version,
			ModifyTime: mod,
			CreateTime: mod,
			Size:       int64(len(content)),
		},
	}
	n.save([]byte(content))
	f.notes[id] = n
}

// editNote simulates an edit made by another client.
func (f *fakeRemote) editNote(id, content string, mod time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[id].edit(content, mod)
}

func (n *fakeNote) edit(content string, mod time.Time) {
	n.file.Version++
	n.file.ModifyTime = mod
	n.file.Size = int64(len(content))
	n.save([]byte(content))
}

func (f *fakeRemote) removeNote(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, id)
}

func (f *fakeRemote) note(id string) (*fakeNote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

// find returns the note with the given name under parentID.
func (f *fakeRemote) find(parentID, name string) (*fakeNote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notes {
		if n.file.ParentID == parentID && n.file.Name == name {
			cp := *n
			return &cp, true
		}
	}
	return nil, false
}

func (f *fakeRemote) Root(ctx context.Context) (*ynote.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Root"]++
	root := f.notes[f.rootID].file
	return &root, nil
}

func (f *fakeRemote) ListDirectory(ctx context.Context, dirID string) ([]*ynote.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListDirectory"]++
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []*ynote.RemoteFile
	for _, n := range f.notes {
		if n.file.ParentID == dirID && n.file.ID != f.rootID {
			file := n.file
			out = append(out, &file)
		}
	}
	slices.SortFunc(out, func(a, b *ynote.RemoteFile) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRemote) GetFileInfo(ctx context.Context, fileID string) (*ynote.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetFileInfo"]++
	n, ok := f.notes[fileID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", fileID, ynote.ErrNotFound)
	}
	file := n.file
	return &file, nil
}

func (f *fakeRemote) Download(ctx context.Context, fileID string, version int64) (*ynote.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Download"]++
	if err := f.downloadErr[fileID]; err != nil {
		return nil, err
	}
	n, ok := f.notes[fileID]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", fileID, ynote.ErrNotFound)
	}
	if text, ok := f.editsOnDownload[fileID]; ok {
		delete(f.editsOnDownload, fileID)
		n.edit(text, n.file.ModifyTime.Add(time.Minute))
	}

	content := n.content
	if old, ok := n.versions[version]; ok {
		content = old
	}
	d := &ynote.Download{
		Content: slices.Clone(content),
		Domain:  n.file.Domain,
		Version: version,
	}
	if version < 0 {
		d.Version = n.file.Version
		d.ModifyTime = n.file.ModifyTime
	}
	return d, nil
}

func (f *fakeRemote) Push(ctx context.Context, req *ynote.PushRequest) (*ynote.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Push"]++
	f.pushes = append(f.pushes, *req)
	if f.pushErr != nil {
		return nil, f.pushErr
	}

	if req.Create {
		n := &fakeNote{
			file: ynote.RemoteFile{
				ID:         req.FileID,
				ParentID:   req.ParentID,
				Name:       req.Name,
				Domain:     req.Domain,
				Version:    1,
				ModifyTime: req.ModifyTime.Truncate(time.Second),
				CreateTime: req.CreateTime.Truncate(time.Second),
				Size:       int64(len(req.Content)),
			},
		}
		n.save(req.Content)
		f.notes[req.FileID] = n
		return &ynote.PushResult{FileID: req.FileID, Version: 1}, nil
	}

	n, ok := f.notes[req.FileID]
	if !ok {
		return nil, fmt.Errorf("push %s: %w", req.FileID, ynote.ErrNotFound)
	}
	n.file.Version++
	n.file.ModifyTime = req.ModifyTime.Truncate(time.Second)
	n.file.Size = int64(len(req.Content))
	n.save(req.Content)
	return &ynote.PushResult{FileID: n.file.ID, Version: n.file.Version}, nil
}

func (f *fakeRemote) CreateDir(ctx context.Context, parentID, name string) (*ynote.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateDir"]++
	for _, n := range f.notes {
		if n.file.Dir && n.file.ParentID == parentID && n.file.Name == name {
			file := n.file
			return &file, nil
		}
	}
	f.nextID++
	id := fmt.Sprintf("DIR%d", f.nextID)
	f.notes[id] = &fakeNote{file: ynote.RemoteFile{ID: id, ParentID: parentID, Name: name, Dir: true}}
	file := f.notes[id].file
	return &file, nil
}

func (f *fakeRemote) Delete(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Delete"]++
	if _, ok := f.notes[fileID]; !ok {
		return fmt.Errorf("delete %s: %w", fileID, ynote.ErrNotFound)
	}
	delete(f.notes, fileID)
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeRemote) NewFileID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("WEBNEW%d", f.nextID)
}

type testEnv struct {
	root   string
	tree   *LocalTree
	meta   *MetadataStore
	remote *fakeRemote
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	ignore := NewSyncIgnoreList("")
	ignore.Load()

	env := &testEnv{
		root:   root,
		tree:   NewOSLocalTree(root, NewPathFilter(ignore, nil)),
		meta:   NewMetadataStore(filepath.Join(root, ".notesync", "metadata.json")),
		remote: newFakeRemote(),
		now:    baseTime.Add(time.Hour),
	}
	require.NoError(t, env.meta.Load())
	return env
}

func (env *testEnv) engine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return env.now }
	}
	if opts.IDs == nil {
		opts.IDs = noteformat.NewSequenceIDs("n", env.now.UnixMilli())
	}
	return NewEngine(env.remote, env.tree, env.meta, nil, opts)
}

func (env *testEnv) run(t *testing.T, opts Options) *Report {
	t.Helper()
	report, err := env.engine(opts).Run(t.Context())
	require.NoError(t, err)
	return report
}

func (env *testEnv) writeLocal(t *testing.T, rel, content string, mod time.Time) {
	t.Helper()
	p := filepath.Join(env.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
}

func (env *testEnv) readLocal(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (env *testEnv) localExists(rel string) bool {
	_, err := os.Stat(filepath.Join(env.root, filepath.FromSlash(rel)))
	return !errors.Is(err, os.ErrNotExist)
}

func (env *testEnv) removeLocal(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(env.root, filepath.FromSlash(rel))))
}
