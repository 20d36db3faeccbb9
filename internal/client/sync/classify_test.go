package sync

import (
	"testing"

	"github.com/notesync/notesync/internal/ynote"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	local := &LocalFile{Path: "a.md", Fingerprint: "L0"}
	localChanged := &LocalFile{Path: "a.md", Fingerprint: "L1"}
	remote := &ynote.RemoteFile{ID: "WEB1", Version: 3}
	remoteChanged := &ynote.RemoteFile{ID: "WEB1", Version: 4}
	remoteReplaced := &ynote.RemoteFile{ID: "WEB2", Version: 3}
	meta := &MetadataEntry{FileID: "WEB1", LocalFingerprint: "L0", RemoteVersion: 3}

	tests := []struct {
		name      string
		local     *LocalFile
		remote    *ynote.RemoteFile
		meta      *MetadataEntry
		want      State
		untracked bool
	}{
		{name: "local only", local: local, want: StateLocalOnly},
		{name: "remote only", remote: remote, want: StateRemoteOnly},
		{name: "untracked on both sides", local: local, remote: remote, want: StateBothDiverged, untracked: true},
		{name: "unchanged", local: local, remote: remote, meta: meta, want: StateBothUnchanged},
		{name: "local changed", local: localChanged, remote: remote, meta: meta, want: StateLocalChanged},
		{name: "remote changed", local: local, remote: remoteChanged, meta: meta, want: StateRemoteChanged},
		{name: "remote replaced", local: local, remote: remoteReplaced, meta: meta, want: StateRemoteChanged},
		{name: "diverged", local: localChanged, remote: remoteChanged, meta: meta, want: StateBothDiverged},
		{name: "local deleted", remote: remote, meta: meta, want: StateLocalDeleted},
		{name: "remote deleted", local: local, meta: meta, want: StateRemoteDeleted},
		{name: "both deleted", meta: meta, want: StateBothDeleted},
		{name: "nothing", want: StateUnseen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.local, tt.remote, tt.meta)
			assert.Equal(t, tt.want, c.State)
			assert.Equal(t, tt.untracked, c.Untracked)
		})
	}
}

func TestClassifyDeletedKeepsChangeFlags(t *testing.T) {
	meta := &MetadataEntry{FileID: "WEB1", LocalFingerprint: "L0", RemoteVersion: 3}

	c := Classify(nil, &ynote.RemoteFile{ID: "WEB1", Version: 5}, meta)
	assert.Equal(t, StateLocalDeleted, c.State)
	assert.True(t, c.RemoteChanged)

	c = Classify(&LocalFile{Fingerprint: "L0"}, nil, meta)
	assert.Equal(t, StateRemoteDeleted, c.State)
	assert.False(t, c.LocalChanged)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "diverged", StateBothDiverged.String())
	assert.Equal(t, "unknown", State(99).String())
}
