package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notesync/notesync/internal/ynote"
)

const DefaultPollInterval = 60 * time.Second

type WatchOptions struct {
	// PollInterval is the time between runs when nothing changes locally.
	PollInterval time.Duration
	// MinPollInterval is the poll interval right after changes. Without
	// changes the interval backs off to PollInterval. Zero keeps it fixed.
	MinPollInterval time.Duration
	Debounce        time.Duration
	// OnReport receives the outcome of every run.
	OnReport func(report *Report, err error)
}

// Watch runs the engine once, then again after local changes settle or the
// poll interval passes. It returns when ctx is cancelled or the session is
// rejected.
func Watch(ctx context.Context, engine *Engine, opts WatchOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	var allow func(string) bool
	if engine.tree.filter != nil {
		allow = engine.tree.filter.AllowFile
	}
	fw := NewFileWatcher(engine.tree.Root(), allow)
	fw.SetDebounce(opts.Debounce)
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Stop()

	engine.OnLocalWrite(fw.IgnoreOnce)
	defer engine.OnLocalWrite(nil)

	poll := NewAdaptivePoll(opts.MinPollInterval, opts.PollInterval)

	run := func(trigger string) error {
		slog.Debug("watch run", "trigger", trigger)
		report, err := engine.Run(ctx)
		if errors.Is(err, ErrSyncAlreadyRunning) {
			return nil
		}
		if report != nil && report.HasChanges() {
			poll.RecordActivity()
		}
		if opts.OnReport != nil {
			opts.OnReport(report, err)
		}
		if errors.Is(err, ynote.ErrAuth) {
			return err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watch run failed", "trigger", trigger, "error", err)
		}
		return nil
	}

	if err := run("initial"); err != nil {
		return err
	}

	// a timer rather than a ticker, so slow runs do not queue ticks
	timer := time.NewTimer(poll.Interval())
	defer timer.Stop()

	changes := fw.Changes()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			if err := run("poll"); err != nil {
				return err
			}
			next := poll.Interval()
			slog.Debug("next poll", "in", next, "activity", poll.Level())
			timer.Reset(next)

		case change, ok := <-changes:
			if !ok {
				return nil
			}
			n := 1 + drain(changes)
			slog.Info("local changes", "path", change.Path, "count", n)
			poll.RecordActivity()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if err := run("local"); err != nil {
				return err
			}
			timer.Reset(poll.Interval())
		}
	}
}

// drain discards changes already queued, since one run covers them all.
func drain(changes <-chan LocalChange) int {
	n := 0
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
