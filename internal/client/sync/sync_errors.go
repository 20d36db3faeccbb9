package sync

import (
	"errors"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	// ErrConflictTie is returned when both sides changed at the same second
	// and the tie policy refuses to pick a side.
	ErrConflictTie = errors.New("conflict: local and remote modified at the same time")
	// ErrLocalIO wraps failures reading or writing files in the notes tree.
	ErrLocalIO = errors.New("local io error")
	// ErrMetadataWrite means the metadata file could not be saved. The run
	// stops because further progress could not be recorded.
	ErrMetadataWrite     = errors.New("metadata write failed")
	ErrVersionRegression = errors.New("remote version regressed")
	ErrFileIDChanged     = errors.New("file id changed for path")
)
