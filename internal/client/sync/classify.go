package sync

import (
	"github.com/notesync/notesync/internal/ynote"
)

// State is the classification of a path before any action is taken.
type State int

const (
	StateUnseen State = iota
	StateLocalOnly
	StateRemoteOnly
	StateBothUnchanged
	StateLocalChanged
	StateRemoteChanged
	StateBothDiverged
	StateLocalDeleted
	StateRemoteDeleted
	StateBothDeleted
)

var stateNames = map[State]string{
	StateUnseen:        "unseen",
	StateLocalOnly:     "local-only",
	StateRemoteOnly:    "remote-only",
	StateBothUnchanged: "unchanged",
	StateLocalChanged:  "local-changed",
	StateRemoteChanged: "remote-changed",
	StateBothDiverged:  "diverged",
	StateLocalDeleted:  "local-deleted",
	StateRemoteDeleted: "remote-deleted",
	StateBothDeleted:   "both-deleted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Classification is the result of comparing the two sides of a path with
// what was recorded at the last sync.
type Classification struct {
	State State
	// LocalChanged and RemoteChanged are relative to the metadata entry and
	// are kept for deleted states so the planner can tell whether the
	// surviving side moved on.
	LocalChanged  bool
	RemoteChanged bool
	// Untracked means both sides exist but nothing was ever recorded, so the
	// contents must be compared before anything is overwritten.
	Untracked bool
}

// Classify places a path in one of the sync states. Any argument may be nil.
func Classify(local *LocalFile, remote *ynote.RemoteFile, meta *MetadataEntry) Classification {
	if meta == nil {
		switch {
		case local != nil && remote != nil:
			return Classification{State: StateBothDiverged, LocalChanged: true, RemoteChanged: true, Untracked: true}
		case local != nil:
			return Classification{State: StateLocalOnly, LocalChanged: true}
		case remote != nil:
			return Classification{State: StateRemoteOnly, RemoteChanged: true}
		default:
			return Classification{State: StateUnseen}
		}
	}

	c := Classification{
		LocalChanged:  local != nil && local.Fingerprint != meta.LocalFingerprint,
		RemoteChanged: remote != nil && remoteMoved(remote, meta),
	}

	switch {
	case local == nil && remote == nil:
		c.State = StateBothDeleted
	case local == nil:
		c.State = StateLocalDeleted
	case remote == nil:
		c.State = StateRemoteDeleted
	case c.LocalChanged && c.RemoteChanged:
		c.State = StateBothDiverged
	case c.LocalChanged:
		c.State = StateLocalChanged
	case c.RemoteChanged:
		c.State = StateRemoteChanged
	default:
		c.State = StateBothUnchanged
	}
	return c
}

// remoteMoved reports whether the remote note is not the one recorded, either
// because its version moved or because a different note now has the path.
func remoteMoved(remote *ynote.RemoteFile, meta *MetadataEntry) bool {
	return remote.ID != meta.FileID || remote.Version != meta.RemoteVersion
}
