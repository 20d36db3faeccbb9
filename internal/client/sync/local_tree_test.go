package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintNormalizesContent(t *testing.T) {
	plain := Fingerprint([]byte("line one\nline two\n"))

	assert.Equal(t, plain, Fingerprint([]byte("line one\r\nline two\r\n")), "CRLF")
	assert.Equal(t, plain, Fingerprint([]byte("\xEF\xBB\xBFline one\nline two\n")), "BOM")
	assert.NotEqual(t, plain, Fingerprint([]byte("line one\nline two")))
	assert.Len(t, plain, 32)
}

func TestLocalTreeScanFilters(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.md", "a", baseTime)
	env.writeLocal(t, "sub/b.md", "b", baseTime)
	env.writeLocal(t, "notes.txt", "not markdown", baseTime)
	env.writeLocal(t, ".hidden.md", "h", baseTime)
	env.writeLocal(t, ".notesync/metadata.json", "{}", baseTime)
	env.writeLocal(t, ".git/config.md", "g", baseTime)
	env.writeLocal(t, "a.conflict.20240101000000.md", "c", baseTime)
	env.writeLocal(t, "scratch.tmp", "t", baseTime)

	files, err := env.tree.Scan(t.Context())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.md", "sub/b.md"}, mapKeys(files))
	a := files["a.md"]
	assert.Equal(t, int64(1), a.Size)
	assert.True(t, a.ModTime.Equal(baseTime))
	assert.Equal(t, Fingerprint([]byte("a")), a.Fingerprint)
}

func TestLocalTreeScanMissingRoot(t *testing.T) {
	tree := NewOSLocalTree(filepath.Join(t.TempDir(), "missing"), nil)
	files, err := tree.Scan(t.Context())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalTreeWrite(t *testing.T) {
	env := newTestEnv(t)
	mod := baseTime.Add(-time.Hour)

	require.NoError(t, env.tree.Write("new/dir/note.md", []byte("content"), mod))

	assert.Equal(t, "content", env.readLocal(t, "new/dir/note.md"))
	info, err := os.Stat(filepath.Join(env.root, "new", "dir", "note.md"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))
	assert.False(t, env.localExists("new/dir/note.md"+tmpSuffix))

	// overwrite invalidates the cached fingerprint
	lf, err := env.tree.Stat("new/dir/note.md")
	require.NoError(t, err)
	require.NoError(t, env.tree.Write("new/dir/note.md", []byte("changed"), mod))
	lf2, err := env.tree.Stat("new/dir/note.md")
	require.NoError(t, err)
	assert.NotEqual(t, lf.Fingerprint, lf2.Fingerprint)
}

func TestLocalTreeStatAndRemove(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.md", "a", baseTime)

	lf, err := env.tree.Stat("a.md")
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.Equal(t, "a.md", lf.Path)

	require.NoError(t, env.tree.Remove("a.md"))
	require.NoError(t, env.tree.Remove("a.md"), "removing a missing file is not an error")

	lf, err = env.tree.Stat("a.md")
	require.NoError(t, err)
	assert.Nil(t, lf)
	assert.False(t, env.tree.Exists("a.md"))
}

func TestLocalTreeInMemory(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "top.md", []byte("top"), 0o644))
	require.NoError(t, fs.MkdirAll("dir", 0o755))
	require.NoError(t, util.WriteFile(fs, "dir/inner.md", []byte("inner"), 0o644))
	require.NoError(t, util.WriteFile(fs, "dir/skip.txt", []byte("x"), 0o644))

	ignore := NewSyncIgnoreList("")
	ignore.Load()
	tree := NewLocalTree(fs, NewPathFilter(ignore, nil))

	files, err := tree.Scan(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top.md", "dir/inner.md"}, mapKeys(files))

	require.NoError(t, tree.Write("dir/inner.md", []byte("rewritten"), time.Time{}))
	data, err := tree.Read("dir/inner.md")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(data))
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
