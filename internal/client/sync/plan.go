package sync

import (
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/ynote"
)

// Mode restricts the direction of a whole run.
type Mode string

const (
	ModeBoth Mode = "both"
	ModePush Mode = "push"
	ModePull Mode = "pull"
)

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeBoth), "full":
		return ModeBoth, nil
	case string(ModePush), "push-only":
		return ModePush, nil
	case string(ModePull), "pull-only":
		return ModePull, nil
	default:
		return "", fmt.Errorf("invalid mode %q", raw)
	}
}

// DeletePolicy decides what a deletion on one side does to the other.
type DeletePolicy string

const (
	// DeleteRestore recreates the missing side from the surviving one.
	DeleteRestore DeletePolicy = "restore"
	// DeletePropagate deletes the surviving side unless it changed since the
	// last sync.
	DeletePropagate DeletePolicy = "propagate"
)

func ParseDeletePolicy(raw string) (DeletePolicy, error) {
	switch p := DeletePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case DeleteRestore, DeletePropagate:
		return p, nil
	case "":
		return DeleteRestore, nil
	default:
		return "", fmt.Errorf("invalid delete policy %q", raw)
	}
}

type Action string

const (
	ActionNone         Action = "none"
	ActionPushCreate   Action = "push-create"
	ActionPushUpdate   Action = "push-update"
	ActionPullCreate   Action = "pull-create"
	ActionPullUpdate   Action = "pull-update"
	ActionDeleteLocal  Action = "delete-local"
	ActionDeleteRemote Action = "delete-remote"
	ActionForget       Action = "forget"
	ActionAdopt        Action = "adopt"
)

// WritesRemote reports whether the action changes the note store.
func (a Action) WritesRemote() bool {
	return a == ActionPushCreate || a == ActionPushUpdate || a == ActionDeleteRemote
}

// WritesLocal reports whether the action changes the notes tree.
func (a Action) WritesLocal() bool {
	return a == ActionPullCreate || a == ActionPullUpdate || a == ActionDeleteLocal
}

func (a Action) IsPush() bool {
	return a == ActionPushCreate || a == ActionPushUpdate
}

const (
	reasonPushOnly   = "push-only mode"
	reasonPullOnly   = "pull-only mode"
	reasonCapability = "capability mismatch: rich document is pull-only"
	reasonRuleIgnore = "ignored by rule"
	reasonRulePush   = "rule allows push only"
	reasonRulePull   = "rule allows pull only"
	reasonRestore    = "restore deleted copy"
)

// Dispatch priorities; lower runs first.
const (
	priorityPull = iota
	priorityPush
	priorityConflict
	priorityDelete
)

// ConflictInfo describes how a diverged path was resolved.
type ConflictInfo struct {
	Winner      Side
	Overwritten Side
	Tie         bool
	Backup      string
	Diff        string
}

// Operation is the planned handling of one path.
type Operation struct {
	Path   string
	State  State
	Action Action
	// Fallback is what an adopt turns into when the two contents differ.
	Fallback Action
	Local    *LocalFile
	Remote   *ynote.RemoteFile
	Meta     *MetadataEntry
	Conflict *ConflictInfo
	Reason   string
	// Err is set when the path cannot be planned, e.g. an unresolved tie.
	Err error
}

func (op *Operation) priority() int {
	switch {
	case op.Conflict != nil || op.Action == ActionAdopt:
		return priorityConflict
	case op.Action == ActionDeleteLocal || op.Action == ActionDeleteRemote || op.Action == ActionForget:
		return priorityDelete
	case op.Action.IsPush():
		return priorityPush
	default:
		return priorityPull
	}
}

// Planner turns the scanned state of both sides into operations.
type Planner struct {
	Mode         Mode
	TiePolicy    TiePolicy
	DeletePolicy DeletePolicy
	Rules        *Rules
}

// Plan returns one operation per path found on either side or in metadata,
// sorted by path.
func (p *Planner) Plan(local map[string]*LocalFile, remote map[string]*ynote.RemoteFile, meta map[string]MetadataEntry) []*Operation {
	paths := mapset.NewThreadUnsafeSet[string]()
	for k := range local {
		paths.Add(k)
	}
	for k := range remote {
		paths.Add(k)
	}
	for k := range meta {
		paths.Add(k)
	}

	sorted := paths.ToSlice()
	slices.Sort(sorted)

	ops := make([]*Operation, 0, len(sorted))
	for _, path := range sorted {
		var m *MetadataEntry
		if e, ok := meta[path]; ok {
			m = &e
		}
		ops = append(ops, p.PlanPath(path, local[path], remote[path], m))
	}
	return ops
}

// PlanPath classifies one path and applies the rule, mode and capability
// filters to the resulting action.
func (p *Planner) PlanPath(path string, local *LocalFile, remote *ynote.RemoteFile, meta *MetadataEntry) *Operation {
	c := Classify(local, remote, meta)
	op := &Operation{
		Path:   path,
		State:  c.State,
		Action: ActionNone,
		Local:  local,
		Remote: remote,
		Meta:   meta,
	}

	switch c.State {
	case StateLocalOnly:
		op.Action = ActionPushCreate
	case StateRemoteOnly:
		op.Action = ActionPullCreate
	case StateLocalChanged:
		op.Action = ActionPushUpdate
	case StateRemoteChanged:
		op.Action = ActionPullUpdate
	case StateBothDiverged:
		p.planConflict(op, c.Untracked)
	case StateLocalDeleted:
		if p.DeletePolicy == DeletePropagate && !c.RemoteChanged {
			op.Action = ActionDeleteRemote
		} else {
			op.Action = ActionPullCreate
			op.Reason = reasonRestore
		}
	case StateRemoteDeleted:
		if p.DeletePolicy == DeletePropagate && !c.LocalChanged {
			op.Action = ActionDeleteLocal
		} else {
			op.Action = ActionPushCreate
			op.Reason = reasonRestore
		}
	case StateBothDeleted:
		op.Action = ActionForget
	}

	if op.Action == ActionAdopt {
		if reason := p.filter(op, op.Fallback); reason != "" {
			op.Fallback = ActionNone
			op.Reason = reason
		}
		return op
	}

	if reason := p.filter(op, op.Action); reason != "" {
		op.Action = ActionNone
		op.Reason = reason
	}
	return op
}

func (p *Planner) planConflict(op *Operation, untracked bool) {
	res, err := Resolve(op.Local.ModTime, op.Remote.ModifyTime, p.TiePolicy)
	op.Conflict = &ConflictInfo{
		Winner:      res.Winner,
		Overwritten: res.Overwritten(),
		Tie:         res.Tie,
	}

	action := ActionNone
	switch {
	case err != nil:
		op.Err = err
	case res.Winner == SideLocal:
		action = ActionPushUpdate
	default:
		action = ActionPullUpdate
	}

	if untracked {
		op.Action = ActionAdopt
		op.Fallback = action
		return
	}
	op.Action = action
}

// filter returns the reason the action may not run, or "" when it may.
func (p *Planner) filter(op *Operation, action Action) string {
	if action == ActionNone || action == ActionForget {
		return ""
	}

	switch p.Rules.DirectionFor(op.Path) {
	case DirectionIgnore:
		return reasonRuleIgnore
	case DirectionPush:
		if action.WritesLocal() {
			return reasonRulePush
		}
	case DirectionPull:
		if action.WritesRemote() {
			return reasonRulePull
		}
	}

	switch p.Mode {
	case ModePush:
		if action.WritesLocal() {
			return reasonPushOnly
		}
	case ModePull:
		if action.WritesRemote() {
			return reasonPullOnly
		}
	}

	if action.IsPush() && !pushable(op) {
		return reasonCapability
	}
	return ""
}

// pushable reports whether local text may replace the note. Only plain text
// notes accept pushes; a note that is or was rich stays pull-only.
func pushable(op *Operation) bool {
	if op.Remote != nil && !op.Remote.Domain.Pushable() {
		return false
	}
	if op.Meta != nil && op.Meta.Domain != noteformat.PlainText {
		return false
	}
	return true
}
