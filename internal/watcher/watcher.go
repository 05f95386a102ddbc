// Package watcher finds recordings under the recordings root and reports
// each one once it has stopped changing.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/recording"
)

// Ready is a recording whose size and modification time held still for the
// stability window.
type Ready struct {
	Path         string
	Size         int64
	ModTime      time.Time
	DiscoveredAt time.Time
}

const (
	LayoutTree  = "tree"
	LayoutDaily = "daily"
)

type Config struct {
	Root         string
	Layout       string
	Extensions   []string
	Location     *time.Location
	ScanInterval time.Duration
	StableWindow time.Duration
	StablePoll   time.Duration
	MaxWait      time.Duration
	CheckWorkers int

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Layout == "" {
		c.Layout = LayoutTree
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Second
	}
	if c.StableWindow <= 0 {
		c.StableWindow = 3 * time.Second
	}
	if c.StablePoll <= 0 {
		c.StablePoll = time.Second
	}
	if c.MaxWait <= c.StableWindow {
		c.MaxWait = c.StableWindow * 40
	}
	if c.CheckWorkers <= 0 {
		c.CheckWorkers = 4
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type entryState uint8

const (
	stateChecking entryState = iota + 1
	stateEmitted
)

type candidate struct {
	path         string
	discoveredAt time.Time
}

type Watcher struct {
	cfg Config

	mu   sync.Mutex
	seen map[string]entryState

	checks chan candidate
	wake   chan struct{}
}

func New(cfg Config) *Watcher {
	cfg.setDefaults()
	return &Watcher{
		cfg:    cfg,
		seen:   make(map[string]entryState),
		checks: make(chan candidate, cfg.CheckWorkers*16),
		wake:   make(chan struct{}, 1),
	}
}

// Run scans until ctx is done, sending every stable recording to out
// exactly once.
func (w *Watcher) Run(ctx context.Context, out chan<- Ready) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.CheckWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.checkWorker(ctx, out)
		}()
	}
	defer wg.Wait()

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, polling only", "error", err)
		notify = nil
	} else {
		defer notify.Close()
		go w.forwardEvents(ctx, notify)
	}

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	watched := map[string]struct{}{}
	for {
		dirs := w.activeDirs()
		w.scan(ctx, dirs)
		if notify != nil {
			w.syncWatches(notify, dirs, watched)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

func (w *Watcher) forwardEvents(ctx context.Context, notify *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-notify.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-notify.Errors:
			if !ok {
				return
			}
			slog.Debug("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) syncWatches(notify *fsnotify.Watcher, dirs []string, watched map[string]struct{}) {
	want := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		want[d] = struct{}{}
		if _, ok := watched[d]; ok {
			continue
		}
		if err := notify.Add(d); err == nil {
			watched[d] = struct{}{}
		}
	}
	for d := range watched {
		if _, ok := want[d]; !ok {
			_ = notify.Remove(d)
			delete(watched, d)
		}
	}
}

// activeDirs lists the directories scanned this pass. The daily layout only
// looks at today's and yesterday's folders so late files from before
// midnight are still picked up.
func (w *Watcher) activeDirs() []string {
	root := filepath.Clean(w.cfg.Root)
	if w.cfg.Layout != LayoutDaily {
		return []string{root}
	}
	now := w.cfg.Now()
	var dirs []string
	for _, t := range []time.Time{now, now.AddDate(0, 0, -1)} {
		d := filepath.Join(root, recording.DayFolder(t, w.cfg.Location))
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (w *Watcher) wanted(path string) bool {
	return recording.HasRecordingExt(path, w.cfg.Extensions) && !recording.IsTemporary(path)
}

func (w *Watcher) scan(ctx context.Context, dirs []string) {
	observed := make(map[string]struct{})
	var fresh, complete []string

	for _, dir := range dirs {
		clean := true
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Directories can vanish mid-walk; keep going.
				clean = false
				if path == dir {
					return err
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != dir && recording.IsTemporary(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !w.wanted(path) {
				return nil
			}
			observed[path] = struct{}{}
			fresh = append(fresh, path)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("scan failed", "dir", dir, "error", err)
		}
		if err == nil && clean {
			complete = append(complete, dir)
		}
	}

	now := w.cfg.Now()
	w.mu.Lock()
	var queue []candidate
	for _, p := range fresh {
		if _, ok := w.seen[p]; ok {
			continue
		}
		w.seen[p] = stateChecking
		queue = append(queue, candidate{path: p, discoveredAt: now})
	}
	// An emitted path is forgotten once its directory has rolled out of the
	// active set, or a complete walk of its directory no longer finds it. A
	// failed walk proves nothing.
	for p, st := range w.seen {
		if st != stateEmitted {
			continue
		}
		if _, ok := observed[p]; ok {
			continue
		}
		if !underAny(p, dirs) || underAny(p, complete) {
			delete(w.seen, p)
		}
	}
	w.mu.Unlock()

	for i, c := range queue {
		select {
		case w.checks <- c:
		default:
			// Check pool is saturated; let a later scan pick these up.
			w.mu.Lock()
			for _, rest := range queue[i:] {
				delete(w.seen, rest.path)
			}
			w.mu.Unlock()
			return
		}
	}
}

func underAny(p string, dirs []string) bool {
	for _, dir := range dirs {
		if _, err := recording.RelPath(dir, p); err == nil {
			return true
		}
	}
	return false
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.seen, path)
	w.mu.Unlock()
}

func (w *Watcher) markEmitted(path string) {
	w.mu.Lock()
	w.seen[path] = stateEmitted
	w.mu.Unlock()
}

func (w *Watcher) checkWorker(ctx context.Context, out chan<- Ready) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-w.checks:
			r, ok := w.stabilize(ctx, c)
			if !ok {
				w.release(c.path)
				continue
			}
			select {
			case out <- r:
				w.markEmitted(c.path)
				metrics.FilesReady.Inc()
			case <-ctx.Done():
				return
			}
		}
	}
}

// stabilize polls the file until its size and mtime have been unchanged for
// the stability window. A file that keeps changing or stays missing past
// MaxWait is given up on for now.
func (w *Watcher) stabilize(ctx context.Context, c candidate) (Ready, bool) {
	deadline := time.Now().Add(w.cfg.MaxWait)
	var (
		lastSize   int64 = -1
		lastMod    time.Time
		lastChange = time.Now()
	)

	t := time.NewTicker(w.cfg.StablePoll)
	defer t.Stop()

	for {
		st, err := os.Stat(c.path)
		switch {
		case err != nil:
			// Missing is transient: the recorder may be renaming into place.
			lastSize = -1
			lastChange = time.Now()
		case st.Size() != lastSize || !st.ModTime().Equal(lastMod):
			lastSize = st.Size()
			lastMod = st.ModTime()
			lastChange = time.Now()
		case time.Since(lastChange) >= w.cfg.StableWindow:
			return Ready{
				Path:         c.path,
				Size:         lastSize,
				ModTime:      lastMod,
				DiscoveredAt: c.discoveredAt,
			}, true
		}

		if time.Now().After(deadline) {
			slog.Warn("recording never settled", "path", c.path, "waited", w.cfg.MaxWait)
			metrics.FilesAbandoned.Inc()
			return Ready{}, false
		}

		select {
		case <-ctx.Done():
			return Ready{}, false
		case <-t.C:
		}
	}
}
