package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/queue"
	"github.com/notesync/notesync/internal/ynote"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 4
	MaxWorkers         = 16
	DefaultScanWorkers = 8
)

// RemoteStore is the part of the note store the engine needs.
// *ynote.Client implements it.
type RemoteStore interface {
	Root(ctx context.Context) (*ynote.RemoteFile, error)
	ListDirectory(ctx context.Context, dirID string) ([]*ynote.RemoteFile, error)
	GetFileInfo(ctx context.Context, fileID string) (*ynote.RemoteFile, error)
	Download(ctx context.Context, fileID string, version int64) (*ynote.Download, error)
	Push(ctx context.Context, req *ynote.PushRequest) (*ynote.PushResult, error)
	CreateDir(ctx context.Context, parentID, name string) (*ynote.RemoteFile, error)
	Delete(ctx context.Context, fileID string) error
	NewFileID() string
}

// Hook runs after a run that changed something and did not abort.
type Hook func(ctx context.Context, report *Report) error

type Options struct {
	Mode           Mode
	DryRun         bool
	Workers        int
	ScanWorkers    int
	TiePolicy      TiePolicy
	DeletePolicy   DeletePolicy
	DisableBackups bool
	// SaveEvery is the number of metadata mutations between saves.
	SaveEvery int
	Clock     func() time.Time
	IDs       noteformat.IDGenerator
	Hooks     []Hook
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = ModeBoth
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Workers > MaxWorkers {
		o.Workers = MaxWorkers
	}
	if o.ScanWorkers <= 0 {
		o.ScanWorkers = DefaultScanWorkers
	}
	if o.TiePolicy == "" {
		o.TiePolicy = TieRemote
	}
	if o.DeletePolicy == "" {
		o.DeletePolicy = DeleteRestore
	}
	if o.SaveEvery <= 0 {
		o.SaveEvery = DefaultSaveEvery
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IDs == nil {
		o.IDs = noteformat.NewRandomIDs(o.Clock)
	}
}

// Engine reconciles the notes tree with the note store. Runs are serialized.
type Engine struct {
	remote RemoteStore
	tree   *LocalTree
	meta   *MetadataStore
	rules  *RulesManager
	opts   Options

	muSync gosync.Mutex
	muDirs gosync.Mutex

	muHook       gosync.Mutex
	onLocalWrite func(rel string)
}

// NewEngine returns an engine over a loaded metadata store. rules may be nil.
func NewEngine(remote RemoteStore, tree *LocalTree, meta *MetadataStore, rules *RulesManager, opts Options) *Engine {
	opts.setDefaults()
	meta.SaveEvery(opts.SaveEvery)
	return &Engine{
		remote: remote,
		tree:   tree,
		meta:   meta,
		rules:  rules,
		opts:   opts,
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

// OnLocalWrite registers fn to be called before the engine touches a local
// path, so a watcher can skip the resulting event.
func (e *Engine) OnLocalWrite(fn func(rel string)) {
	e.muHook.Lock()
	defer e.muHook.Unlock()
	e.onLocalWrite = fn
}

func (e *Engine) notifyLocalWrite(rel string) {
	e.muHook.Lock()
	fn := e.onLocalWrite
	e.muHook.Unlock()
	if fn != nil {
		fn(rel)
	}
}

// Run performs one full sync. It returns ErrSyncAlreadyRunning if another run
// is in progress. When the run aborts, the partial report is returned along
// with the abort error.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	report := &Report{
		Mode:    e.opts.Mode,
		DryRun:  e.opts.DryRun,
		Started: e.opts.Clock(),
	}
	defer func() {
		report.Finished = e.opts.Clock()
		report.sortResults()
	}()

	tStart := time.Now()
	local, remote, collisions, err := e.scan(ctx)
	if err != nil {
		report.Aborted = true
		report.AbortErr = err
		return report, err
	}
	tScan := time.Since(tStart)
	report.Results = append(report.Results, collisions...)

	planner := &Planner{
		Mode:         e.opts.Mode,
		TiePolicy:    e.opts.TiePolicy,
		DeletePolicy: e.opts.DeletePolicy,
	}
	if e.rules != nil {
		planner.Rules = e.rules.Get()
	}
	ops := planner.Plan(local, remote, e.meta.Entries())
	e.annotateRenames(ops, local)

	if e.opts.DryRun {
		for _, op := range ops {
			report.Results = append(report.Results, plannedResult(op))
		}
		slog.Info("sync dry run", "paths", len(ops), "tsScan", tScan)
		return report, nil
	}

	abortErr := e.dispatch(ctx, ops, report)

	if err := e.meta.Flush(); err != nil && abortErr == nil {
		abortErr = err
	}

	if abortErr != nil {
		report.Aborted = true
		report.AbortErr = abortErr
		slog.Error("sync aborted", "error", abortErr)
		return report, abortErr
	}

	if report.HasChanges() {
		counts := report.Counts()
		slog.Info("full sync",
			"pulled", counts[OutcomePulledCreate]+counts[OutcomePulledUpdate],
			"pushed", counts[OutcomePushedCreate]+counts[OutcomePushedUpdate],
			"deletedLocal", counts[OutcomeDeletedLocal],
			"deletedRemote", counts[OutcomeDeletedRemote],
			"conflicts", len(report.Conflicts()),
			"failed", counts[OutcomeFailed],
			"tsScan", tScan,
			"tsTotal", time.Since(tStart),
		)
		e.runHooks(ctx, report)
	}
	return report, nil
}

// dispatch executes operations in priority order through the worker pool.
// It returns the error that stopped dispatching, if any.
func (e *Engine) dispatch(ctx context.Context, ops []*Operation, report *Report) error {
	var (
		mu       gosync.Mutex
		abortErr error
	)
	addResult := func(res *Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results = append(report.Results, res)
		if res.Err != nil && abortErr == nil && isAbortError(res.Err) {
			abortErr = res.Err
		}
	}
	aborted := func() error {
		mu.Lock()
		defer mu.Unlock()
		return abortErr
	}

	pq := queue.NewPriorityQueue[*Operation]()
	for _, op := range ops {
		switch {
		case op.Err != nil && op.Action != ActionAdopt:
			addResult(&Result{Path: op.Path, State: op.State, Action: op.Action, Outcome: OutcomeFailed, Err: op.Err, Conflict: op.Conflict})
		case op.Action == ActionNone:
			addResult(&Result{Path: op.Path, State: op.State, Action: op.Action, Outcome: OutcomeSkipped, Reason: op.Reason, Conflict: skippedConflict(op)})
		default:
			pq.Enqueue(op, op.priority())
		}
	}

	// transfers in flight finish even if the run is cancelled
	xctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for {
		op, ok := pq.Dequeue()
		if !ok {
			break
		}

		// g.Go blocks until a worker is free; the checks run once it is, so
		// an abort stops everything not yet started.
		g.Go(func() error {
			if err := aborted(); err != nil {
				addResult(stoppedResult(op, "run aborted"))
				return nil
			}
			if ctx.Err() != nil {
				addResult(stoppedResult(op, "cancelled"))
				return nil
			}
			addResult(e.execute(xctx, op))
			return nil
		})
	}
	_ = g.Wait()

	if err := aborted(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) runHooks(ctx context.Context, report *Report) {
	for _, hook := range e.opts.Hooks {
		if err := hook(ctx, report); err != nil {
			slog.Warn("sync hook failed", "error", err)
		}
	}
}

// annotateRenames notes new local files whose content matches a path that
// disappeared locally since the last sync.
func (e *Engine) annotateRenames(ops []*Operation, local map[string]*LocalFile) {
	for _, op := range ops {
		if op.State != StateLocalOnly || op.Local == nil || op.Reason != "" {
			continue
		}
		for _, p := range e.meta.FindByFingerprint(op.Local.Fingerprint) {
			if _, exists := local[p]; !exists {
				op.Reason = "possible rename of " + p
				break
			}
		}
	}
}

func isAbortError(err error) bool {
	return errors.Is(err, ynote.ErrAuth) || errors.Is(err, ErrMetadataWrite)
}

func plannedResult(op *Operation) *Result {
	res := &Result{
		Path:     op.Path,
		State:    op.State,
		Action:   op.Action,
		Reason:   op.Reason,
		Conflict: op.Conflict,
	}
	switch {
	case op.Err != nil && op.Action != ActionAdopt:
		res.Outcome = OutcomeFailed
		res.Err = op.Err
	case op.Action == ActionNone:
		res.Outcome = OutcomeSkipped
	default:
		res.Outcome = OutcomePlanned
	}
	return res
}

func stoppedResult(op *Operation, reason string) *Result {
	return &Result{Path: op.Path, State: op.State, Action: op.Action, Outcome: OutcomeSkipped, Reason: reason}
}

// skippedConflict keeps conflict details only when a side was actually
// chosen and then filtered out.
func skippedConflict(op *Operation) *ConflictInfo {
	if op.Conflict == nil || op.Conflict.Winner == SideNone {
		return nil
	}
	return op.Conflict
}
