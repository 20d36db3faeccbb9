package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = 2 * time.Second
	DefaultDebounce        = 2 * time.Second
	defaultCleanupInterval = 15 * time.Second
	eventBufferSize        = 64
)

// LocalChange is a debounced change to a path in the notes tree.
type LocalChange struct {
	Path  string
	Event notify.Event
}

// FileWatcher reports changes under the notes root as relative paths. Bursts
// of events on a path are collapsed into one after the debounce delay, and
// paths the engine is about to write can be ignored once.
type FileWatcher struct {
	root      string
	changes   chan LocalChange
	rawEvents chan notify.EventInfo
	allow     func(rel string) bool
	done      chan struct{}
	wg        gosync.WaitGroup

	ignore          map[string]time.Time
	ignoreMu        gosync.Mutex
	ignoreTimeout   time.Duration
	cleanupInterval time.Duration

	pending  map[string]LocalChange
	timers   map[string]*time.Timer
	muTimers gosync.Mutex
	closed   bool
	debounce time.Duration
}

// NewFileWatcher watches root. allow filters relative paths; nil allows all.
func NewFileWatcher(root string, allow func(rel string) bool) *FileWatcher {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &FileWatcher{
		root:            root,
		allow:           allow,
		done:            make(chan struct{}),
		ignore:          make(map[string]time.Time),
		ignoreTimeout:   DefaultIgnoreTimeout,
		cleanupInterval: defaultCleanupInterval,
		pending:         make(map[string]LocalChange),
		timers:          make(map[string]*time.Timer),
		debounce:        DefaultDebounce,
	}
}

func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.debounce = d
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.root)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.changes = make(chan LocalChange, eventBufferSize)

	if err := notify.Watch(filepath.Join(fw.root, "..."), fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(2)
	go fw.filterEvents(ctx)
	go fw.cleanupExpired(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()
	slog.Info("file watcher stopped")
}

func (fw *FileWatcher) Changes() <-chan LocalChange {
	return fw.changes
}

// IgnoreOnce drops the next change reported for rel within the ignore timeout.
func (fw *FileWatcher) IgnoreOnce(rel string) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[rel] = time.Now().Add(fw.ignoreTimeout)
}

func (fw *FileWatcher) consumeIgnore(rel string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()

	expiry, ok := fw.ignore[rel]
	if !ok {
		return false
	}
	delete(fw.ignore, rel)
	return time.Now().Before(expiry)
}

func (fw *FileWatcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(fw.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.muTimers.Lock()
		fw.closed = true
		for p, timer := range fw.timers {
			timer.Stop()
			delete(fw.timers, p)
		}
		fw.muTimers.Unlock()

		fw.wg.Done()
		close(fw.changes)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ei, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			rel, ok := fw.relPath(ei.Path())
			if !ok {
				continue
			}
			if fw.allow != nil && !fw.allow(rel) {
				continue
			}
			fw.schedule(LocalChange{Path: rel, Event: ei.Event()})
		}
	}
}

// schedule restarts the debounce timer for the change's path.
func (fw *FileWatcher) schedule(change LocalChange) {
	fw.muTimers.Lock()
	defer fw.muTimers.Unlock()

	if timer, ok := fw.timers[change.Path]; ok {
		timer.Stop()
	}
	fw.pending[change.Path] = change
	fw.timers[change.Path] = time.AfterFunc(fw.debounce, func() {
		fw.flush(change.Path)
	})
}

// flush sends the pending change for rel. The send never blocks, so it is
// done under muTimers to keep it ordered before the channel is closed.
func (fw *FileWatcher) flush(rel string) {
	fw.muTimers.Lock()
	defer fw.muTimers.Unlock()

	change, ok := fw.pending[rel]
	delete(fw.pending, rel)
	delete(fw.timers, rel)

	if !ok || fw.closed || fw.consumeIgnore(rel) {
		return
	}

	select {
	case fw.changes <- change:
		slog.Debug("file watcher", "event", change.Event, "path", rel)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", rel)
	}
}

func (fw *FileWatcher) cleanupExpired(ctx context.Context) {
	defer fw.wg.Done()

	ticker := time.NewTicker(fw.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case <-ticker.C:
			now := time.Now()
			fw.ignoreMu.Lock()
			for p, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, p)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}
