package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MetadataStore {
	t.Helper()
	s := NewMetadataStore(filepath.Join(t.TempDir(), "state", "metadata.json"))
	require.NoError(t, s.Load())
	return s
}

func testEntry(id string, version int64, fp string) MetadataEntry {
	return MetadataEntry{
		FileID:           id,
		ParentID:         "root",
		Domain:           noteformat.PlainText,
		LocalFingerprint: fp,
		RemoteVersion:    version,
		LocalModTime:     baseTime,
		RemoteModTime:    baseTime,
		CreateTime:       baseTime,
		LastSyncTime:     baseTime.Add(time.Minute),
	}
}

func TestMetadataStoreLoadMissing(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("a.md")
	assert.False(t, ok)
}

func TestMetadataStoreSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 2, "fp1")))
	s.SetDir("", DirEntry{DirID: "root"})
	s.SetDir("work", DirEntry{DirID: "D1", ParentID: "root"})
	require.NoError(t, s.Save())

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 1`)
	assert.Contains(t, string(data), `"fileId": "WEB1"`)

	loaded := NewMetadataStore(s.path)
	require.NoError(t, loaded.Load())

	entry, ok := loaded.Get("a.md")
	require.True(t, ok)
	assert.Equal(t, "WEB1", entry.FileID)
	assert.Equal(t, int64(2), entry.RemoteVersion)
	assert.True(t, entry.LastSyncTime.Equal(baseTime.Add(time.Minute)))

	dir, ok := loaded.GetDir("work")
	require.True(t, ok)
	assert.Equal(t, DirEntry{DirID: "D1", ParentID: "root"}, dir)
	assert.Equal(t, []string{"", "work"}, loaded.DirPaths())
	assert.Equal(t, []string{"a.md"}, loaded.FindByFingerprint("fp1"))
}

func TestMetadataStoreInvariants(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 5, "fp")))

	err := s.Upsert("a.md", testEntry("WEB1", 4, "fp"))
	assert.ErrorIs(t, err, ErrVersionRegression)

	err = s.Upsert("a.md", testEntry("WEB2", 9, "fp"))
	assert.ErrorIs(t, err, ErrFileIDChanged)

	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 5, "fp2")), "same version is allowed")
	entry, _ := s.Get("a.md")
	assert.Equal(t, "fp2", entry.LocalFingerprint)
	assert.Equal(t, 1, s.Len(), "one entry per path")

	s.Delete("a.md")
	require.NoError(t, s.Upsert("a.md", testEntry("WEB2", 1, "fp")), "replacing after delete")
}

func TestMetadataStoreGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 1, "fp")))

	entry, _ := s.Get("a.md")
	entry.RemoteVersion = 99

	again, _ := s.Get("a.md")
	assert.Equal(t, int64(1), again.RemoteVersion)
}

func TestMetadataStoreFingerprintIndex(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("b.md", testEntry("WEB2", 1, "same")))
	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 1, "same")))

	assert.Equal(t, []string{"a.md", "b.md"}, s.FindByFingerprint("same"))

	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 2, "other")))
	assert.Equal(t, []string{"b.md"}, s.FindByFingerprint("same"))

	s.Delete("b.md")
	assert.Nil(t, s.FindByFingerprint("same"))
}

func TestMetadataStoreCheckpoint(t *testing.T) {
	s := newTestStore(t)
	s.SaveEvery(2)

	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 1, "fp")))
	require.NoError(t, s.Checkpoint())
	assert.NoFileExists(t, s.path)

	require.NoError(t, s.Upsert("b.md", testEntry("WEB2", 1, "fp")))
	require.NoError(t, s.Checkpoint())
	assert.FileExists(t, s.path)

	require.NoError(t, os.Remove(s.path))
	require.NoError(t, s.Flush())
	assert.NoFileExists(t, s.path, "nothing pending")
}

func TestMetadataStoreSaveIgnoresStaleTmp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path), 0o755))
	require.NoError(t, os.WriteFile(s.path+".tmp", []byte("garbage from a crash"), 0o600))

	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 1, "fp")))
	require.NoError(t, s.Save())

	loaded := NewMetadataStore(s.path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 1, loaded.Len())
	assert.NoFileExists(t, s.path+".tmp")
}

func TestMetadataStoreSaveFailure(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.path, "blocker"), 0o755))

	require.NoError(t, s.Upsert("a.md", testEntry("WEB1", 1, "fp")))
	assert.ErrorIs(t, s.Save(), ErrMetadataWrite)
}

func TestMetadataStoreRejectsNewerVersion(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path), 0o755))
	require.NoError(t, os.WriteFile(s.path, []byte(`{"version": 7, "files": {}}`), 0o600))

	assert.Error(t, s.Load())
}
