package sync

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
)

// Outcome is the terminal state of a path in a run.
type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomePushedCreate  Outcome = "pushed-create"
	OutcomePushedUpdate  Outcome = "pushed-update"
	OutcomePulledCreate  Outcome = "pulled-create"
	OutcomePulledUpdate  Outcome = "pulled-update"
	OutcomeDeletedLocal  Outcome = "deleted-local"
	OutcomeDeletedRemote Outcome = "deleted-remote"
	OutcomeForgotten     Outcome = "forgotten"
	OutcomeFailed        Outcome = "failed"
	OutcomePlanned       Outcome = "planned"
)

// IsTransfer reports whether the outcome moved content or deleted a note.
func (o Outcome) IsTransfer() bool {
	switch o {
	case OutcomePushedCreate, OutcomePushedUpdate,
		OutcomePulledCreate, OutcomePulledUpdate,
		OutcomeDeletedLocal, OutcomeDeletedRemote:
		return true
	}
	return false
}

// Result is what happened to one path.
type Result struct {
	Path     string
	State    State
	Action   Action
	Outcome  Outcome
	Reason   string
	Err      error
	Conflict *ConflictInfo
	Bytes    int64
}

// ErrorKind names the error class of a failed result for display.
func (r *Result) ErrorKind() string {
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, ynote.ErrAuth):
		return "auth"
	case errors.Is(r.Err, ynote.ErrNetwork):
		return "network"
	case errors.Is(r.Err, ynote.ErrFormat), errors.Is(r.Err, noteformat.ErrMalformed):
		return "format"
	case errors.Is(r.Err, ynote.ErrNotFound):
		return "not-found"
	case errors.Is(r.Err, ErrConflictTie):
		return "conflict-tie"
	case errors.Is(r.Err, ErrLocalIO):
		return "local-io"
	case errors.Is(r.Err, ErrMetadataWrite):
		return "metadata"
	default:
		return "error"
	}
}

// Report is the summary of one run.
type Report struct {
	Mode     Mode
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Results  []*Result
	Aborted  bool
	AbortErr error
}

func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Result returns the result for path, or nil.
func (r *Report) Result(path string) *Result {
	for _, res := range r.Results {
		if res.Path == path {
			return res
		}
	}
	return nil
}

func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

func (r *Report) Failed() []*Result {
	var failed []*Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Transfers counts results that moved content or deleted a note.
func (r *Report) Transfers() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome.IsTransfer() {
			n++
		}
	}
	return n
}

// Conflicts returns the results of diverged paths.
func (r *Report) Conflicts() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Conflict != nil {
			out = append(out, res)
		}
	}
	return out
}

// HasChanges reports whether the run changed either side or the metadata.
func (r *Report) HasChanges() bool {
	for _, res := range r.Results {
		if res.Outcome.IsTransfer() || res.Outcome == OutcomeForgotten {
			return true
		}
	}
	return false
}

// ChangedPaths lists the local paths written or removed in the run, including
// conflict backups.
func (r *Report) ChangedPaths() []string {
	var paths []string
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomePulledCreate, OutcomePulledUpdate, OutcomeDeletedLocal:
			paths = append(paths, res.Path)
		}
		if res.Conflict != nil && res.Conflict.Backup != "" {
			paths = append(paths, res.Conflict.Backup)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

// ExitCode is 0 on success, 1 when any path failed and 2 when the run
// aborted.
func (r *Report) ExitCode() int {
	switch {
	case r.Aborted:
		return 2
	case len(r.Failed()) > 0:
		return 1
	default:
		return 0
	}
}

func (r *Report) sortResults() {
	slices.SortFunc(r.Results, func(a, b *Result) int {
		return strings.Compare(a.Path, b.Path)
	})
}
