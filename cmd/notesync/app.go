package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/notesync/notesync/internal/client/config"
	"github.com/notesync/notesync/internal/client/history"
	"github.com/notesync/notesync/internal/client/sync"
	"github.com/notesync/notesync/internal/client/workspace"
	"github.com/notesync/notesync/internal/gitcommit"
	"github.com/notesync/notesync/internal/noteformat"
	"github.com/notesync/notesync/internal/utils"
	"github.com/notesync/notesync/internal/ynote"
)

// historyKeep is the number of runs kept in the history database.
const historyKeep = 500

// app is everything a command needs to sync one notes directory.
type app struct {
	cfg     *config.Config
	ws      *workspace.Workspace
	tree    *sync.LocalTree
	meta    *sync.MetadataStore
	rules   *sync.RulesManager
	history *history.History
	remote  *ynote.Client
	engine  *sync.Engine

	closeLog func()
}

// openWorkspace locks the notes directory, starts file logging and loads the
// local sync state.
func openWorkspace(cfg *config.Config) (*app, error) {
	ws, err := workspace.NewWorkspace(cfg.NotesDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, ws: ws}
	if a.closeLog, err = enableFileLog(ws.LogPath); err != nil {
		slog.Warn("file logging disabled", "error", err)
	}

	ignore := sync.NewSyncIgnoreList(ws.IgnorePath)
	a.tree = sync.NewOSLocalTree(ws.Root, sync.NewPathFilter(ignore, cfg.Include))
	a.rules = sync.NewRulesManager(ws.RulesPath)

	a.meta = sync.NewMetadataStore(ws.MetadataPath)
	if err := a.meta.Load(); err != nil {
		a.Close()
		return nil, err
	}

	if a.history, err = history.Open(ws.HistoryPath); err != nil {
		slog.Warn("run history disabled", "error", err)
		a.history = nil
	}

	return a, nil
}

// connect builds the remote client and the engine on top of the workspace.
func (a *app) connect() error {
	remote, err := newRemote(a.cfg)
	if err != nil {
		return err
	}
	a.remote = remote

	opts, err := engineOptions(a.cfg)
	if err != nil {
		return err
	}
	if a.cfg.GitCommit {
		opts.Hooks = append(opts.Hooks, gitCommitHook(a.ws.Root))
	}
	a.engine = sync.NewEngine(remote, a.tree, a.meta, a.rules, opts)
	return nil
}

// recordRun stores the report in the run history, if it is available.
func (a *app) recordRun(ctx context.Context, report *sync.Report) {
	if a.history == nil || report == nil {
		return
	}
	run, paths := runFromReport(report)
	if _, err := a.history.Record(ctx, run, paths); err != nil {
		slog.Warn("history record", "error", err)
		return
	}
	if _, err := a.history.Prune(ctx, historyKeep); err != nil {
		slog.Warn("history prune", "error", err)
	}
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("history close", "error", err)
		}
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	if err := a.ws.Unlock(); err != nil {
		slog.Warn("workspace unlock", "error", err)
	}
}

func newRemote(cfg *config.Config) (*ynote.Client, error) {
	session, err := ynote.LoadSession(cfg.CookiesPath)
	if err != nil {
		return nil, err
	}
	return ynote.New(&ynote.Config{
		BaseURL:   cfg.BaseURL,
		Session:   session,
		RateLimit: cfg.RateLimit,
	})
}

func engineOptions(cfg *config.Config) (sync.Options, error) {
	mode, err := sync.ParseMode(cfg.Mode)
	if err != nil {
		return sync.Options{}, err
	}
	tie, err := sync.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		return sync.Options{}, err
	}
	deletes, err := sync.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return sync.Options{}, err
	}

	return sync.Options{
		Mode:           mode,
		DryRun:         cfg.DryRun,
		Workers:        cfg.Workers,
		ScanWorkers:    cfg.ScanWorkers,
		TiePolicy:      tie,
		DeletePolicy:   deletes,
		DisableBackups: !cfg.Backups,
		IDs:            noteformat.NewRandomIDs(time.Now),
	}, nil
}

// runFromReport converts a sync report into a history row and its paths.
// Skipped paths are left out unless they carry a reason.
func runFromReport(report *sync.Report) (*history.Run, []history.PathResult) {
	run := &history.Run{
		StartedAt:  report.Started,
		FinishedAt: report.Finished,
		Mode:       string(report.Mode),
		DryRun:     report.DryRun,
		Aborted:    report.Aborted,
		Transfers:  report.Transfers(),
		Failed:     len(report.Failed()),
		Counts:     make(map[string]int),
	}
	if report.AbortErr != nil {
		run.AbortReason = report.AbortErr.Error()
	}
	for outcome, n := range report.Counts() {
		run.Counts[string(outcome)] = n
	}

	var paths []history.PathResult
	for _, res := range report.Results {
		if res.Outcome == sync.OutcomeSkipped && res.Reason == "" && res.Conflict == nil {
			continue
		}
		paths = append(paths, history.PathResult{
			Path:    res.Path,
			Outcome: string(res.Outcome),
			Detail:  resultDetail(res),
		})
	}
	return run, paths
}

// gitCommitHook commits the local files a run touched to the git repository
// around the notes directory.
func gitCommitHook(root string) sync.Hook {
	return func(ctx context.Context, report *sync.Report) error {
		if report.DryRun {
			return nil
		}
		paths := report.ChangedPaths()
		if len(paths) == 0 {
			return nil
		}

		committer, err := gitcommit.Open(root)
		if errors.Is(err, gitcommit.ErrNotRepository) {
			slog.Warn("git commit skipped", "reason", err)
			return nil
		}
		if err != nil {
			return err
		}

		counts := report.Counts()
		stats := gitcommit.Stats{
			Pulled:    counts[sync.OutcomePulledCreate] + counts[sync.OutcomePulledUpdate],
			Pushed:    counts[sync.OutcomePushedCreate] + counts[sync.OutcomePushedUpdate],
			Conflicts: len(report.Conflicts()),
			Deleted:   counts[sync.OutcomeDeletedLocal] + counts[sync.OutcomeDeletedRemote],
		}
		_, err = committer.Commit(paths, gitcommit.Message(stats, report.Finished), report.Finished)
		if errors.Is(err, gitcommit.ErrNothingToCommit) {
			return nil
		}
		return err
	}
}

// enableFileLog adds the workspace log file to the default logger. The
// returned func restores the console-only logger and closes the file.
func enableFileLog(path string) (func(), error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleOrDiscard(), fileHandler)))
	return func() {
		slog.SetDefault(slog.New(consoleOrDiscard()))
		logInterceptor.Close()
		file.Close()
	}, nil
}

func consoleOrDiscard() slog.Handler {
	if consoleHandler != nil {
		return consoleHandler
	}
	return slog.DiscardHandler
}
