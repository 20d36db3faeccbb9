package sync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notesync/notesync/internal/ynote"
	"github.com/stretchr/testify/assert"
)

func TestReportSummaries(t *testing.T) {
	r := &Report{Results: []*Result{
		{Path: "a.md", Outcome: OutcomePulledCreate},
		{Path: "b.md", Outcome: OutcomePushedUpdate, Conflict: &ConflictInfo{Winner: SideLocal, Backup: "b.conflict.20240101000000.md"}},
		{Path: "c.md", Outcome: OutcomeSkipped},
		{Path: "d.md", Outcome: OutcomeFailed, Err: fmt.Errorf("push: %w", ynote.ErrNetwork)},
		{Path: "e.md", Outcome: OutcomeDeletedLocal},
	}}

	counts := r.Counts()
	assert.Equal(t, 1, counts[OutcomePulledCreate])
	assert.Equal(t, 1, counts[OutcomeFailed])
	assert.Equal(t, 3, r.Transfers())
	assert.True(t, r.HasChanges())
	assert.Len(t, r.Conflicts(), 1)
	assert.Len(t, r.Failed(), 1)
	assert.Equal(t, 1, r.ExitCode())
	assert.Equal(t, []string{"a.md", "b.conflict.20240101000000.md", "e.md"}, r.ChangedPaths())

	r.Aborted = true
	assert.Equal(t, 2, r.ExitCode())
}

func TestReportExitCodeClean(t *testing.T) {
	r := &Report{Results: []*Result{{Path: "a.md", Outcome: OutcomeSkipped}}}
	assert.Equal(t, 0, r.ExitCode())
	assert.False(t, r.HasChanges())
}

func TestResultErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ynote.ErrAuth), "auth"},
		{fmt.Errorf("x: %w", ynote.ErrNetwork), "network"},
		{fmt.Errorf("x: %w", ynote.ErrFormat), "format"},
		{fmt.Errorf("x: %w", ynote.ErrNotFound), "not-found"},
		{ErrConflictTie, "conflict-tie"},
		{fmt.Errorf("%w: disk full", ErrLocalIO), "local-io"},
		{fmt.Errorf("%w: rename", ErrMetadataWrite), "metadata"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		r := &Result{Err: tt.err}
		assert.Equal(t, tt.want, r.ErrorKind())
	}
}
