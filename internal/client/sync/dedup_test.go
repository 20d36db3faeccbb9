package sync

import (
	"testing"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.remote.addNote("root", "WEB1", "a.md", noteformat.PlainText, "shared\n", 1, baseTime)
	env.run(t, Options{})

	env.writeLocal(t, "old/a copy.md", "shared\n", baseTime)
	env.writeLocal(t, "x.md", "twin", baseTime)
	env.writeLocal(t, "y.md", "twin", baseTime)
	env.writeLocal(t, "single.md", "alone", baseTime)
	env.writeLocal(t, "empty1.md", "", baseTime)
	env.writeLocal(t, "empty2.md", "", baseTime)

	groups, err := FindDuplicates(t.Context(), env.tree, env.meta)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	synced := groups[0]
	assert.Equal(t, []string{"a.md"}, synced.Tracked)
	assert.Equal(t, []string{"old/a copy.md"}, synced.Untracked)
	assert.Equal(t, []string{"old/a copy.md"}, synced.Removable)

	local := groups[1]
	assert.Empty(t, local.Tracked)
	assert.Equal(t, []string{"x.md", "y.md"}, local.Untracked)
	assert.Empty(t, local.Removable, "copies that exist only locally are kept")
}

func TestFindDuplicatesKeepsCopiesOfModifiedNotes(t *testing.T) {
	env, _ := syncedEnv(t)
	// a.md was edited after the last sync, so the note store does not hold
	// this content yet
	env.writeLocal(t, "a.md", "edited\n", baseTime)
	env.writeLocal(t, "b.md", "edited\n", baseTime)

	groups, err := FindDuplicates(t.Context(), env.tree, env.meta)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a.md"}, groups[0].Tracked)
	assert.Equal(t, []string{"b.md"}, groups[0].Untracked)
	assert.Empty(t, groups[0].Removable)
}

func TestRemoveDuplicates(t *testing.T) {
	env, _ := syncedEnv(t)
	env.writeLocal(t, "copy.md", "base\n", baseTime)

	groups, err := FindDuplicates(t.Context(), env.tree, env.meta)
	require.NoError(t, err)

	var touched []string
	removed, err := RemoveDuplicates(env.tree, groups, func(p string) { touched = append(touched, p) })
	require.NoError(t, err)
	assert.Equal(t, []string{"copy.md"}, removed)
	assert.Equal(t, removed, touched)
	assert.False(t, env.localExists("copy.md"))
	assert.True(t, env.localExists("a.md"))

	// the next sync has nothing to push
	report := env.run(t, Options{})
	assert.Equal(t, 0, report.Transfers())
}
