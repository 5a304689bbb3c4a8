// Package observer ingests frame files from a watched directory. An
// external capture process drops files there; the ingestor notices new
// ones and turns each into an observer.frame event with a correlated
// timeline entry.
//
// The source of truth is a periodic poll of the directory. fsnotify is
// layered on top purely as a wake-up hint so fresh frames surface before
// the next tick; if the watch cannot be established the poll alone is
// fully correct.
package observer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/frostwall/collabd/pkg/store"
)

// DefaultScanInterval is the poll period when none is configured.
const DefaultScanInterval = 800 * time.Millisecond

// maxScanBackoff caps the retry delay after repeated listing failures.
const maxScanBackoff = 30 * time.Second

// Config controls the ingestor.
type Config struct {
	// Dir is the watched directory. It does not need to exist; scans of
	// a missing directory are noops.
	Dir string

	// ScanInterval is the poll period. Zero means DefaultScanInterval.
	ScanInterval time.Duration

	// SeedOnly changes the cold-start policy: when true, files already
	// present at the first scan are remembered without emitting events,
	// and only genuinely new arrivals are ingested. The default (false)
	// emits everything found on the first scan.
	SeedOnly bool
}

// Ingestor periodically scans the frame directory, diffs it against the
// set of paths it has already emitted, and feeds new files to the store.
// It never fails the process: every filesystem error is swallowed and
// logged at debug.
type Ingestor struct {
	cfg   Config
	store *store.Store

	mu         sync.Mutex
	remembered map[string]struct{}
	seeded     bool

	// wake coalesces fsnotify hints into at most one pending early scan.
	wake chan struct{}
}

// New creates an ingestor. The directory is made absolute so frame
// paths are stable keys regardless of the process working directory.
func New(cfg Config, st *store.Store) *Ingestor {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if abs, err := filepath.Abs(cfg.Dir); err == nil {
		cfg.Dir = abs
	}
	return &Ingestor{
		cfg:        cfg,
		store:      st,
		remembered: make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Run scans until ctx is cancelled. It observes cancellation between
// ticks and between per-file operations, so shutdown is prompt.
func (ing *Ingestor) Run(ctx context.Context) {
	stopWatch := ing.startWatcher(ctx)
	defer stopWatch()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = ing.cfg.ScanInterval
	retry.MaxInterval = maxScanBackoff
	retry.MaxElapsedTime = 0 // retry forever

	slog.Info("observer ingestor started",
		"dir", ing.cfg.Dir,
		"scan_interval", ing.cfg.ScanInterval,
		"seed_only", ing.cfg.SeedOnly)

	timer := time.NewTimer(0) // first scan immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("observer ingestor stopped")
			return
		case <-timer.C:
		case <-ing.wake:
			// Early scan on a filesystem hint. Drain the timer so the
			// reset below doesn't race a stale expiry.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if ok := ing.scan(ctx); ok {
			retry.Reset()
			timer.Reset(ing.cfg.ScanInterval)
		} else {
			timer.Reset(retry.NextBackOff())
		}
	}
}

// scan performs one diff pass. Returns false only for a directory
// listing failure (other than the directory not existing), which backs
// the poll off; per-file errors are skipped without penalty.
func (ing *Ingestor) scan(ctx context.Context) bool {
	entries, err := os.ReadDir(ing.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing to do until the capture process creates it.
			slog.Debug("observer directory missing", "dir", ing.cfg.Dir)
			return true
		}
		slog.Debug("observer directory listing failed",
			"dir", ing.cfg.Dir, "error", err)
		return false
	}

	var fresh []frameCandidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(ing.cfg.Dir, entry.Name())
		if ing.isRemembered(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Likely mid-write or already gone; the next scan retries.
			slog.Debug("observer stat failed", "path", path, "error", err)
			continue
		}
		fresh = append(fresh, frameCandidate{
			path:    path,
			name:    entry.Name(),
			size:    info.Size(),
			mtimeMS: uint64(info.ModTime().UnixMilli()),
		})
	}

	// Deterministic emission order: modification time, then filename.
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].mtimeMS != fresh[j].mtimeMS {
			return fresh[i].mtimeMS < fresh[j].mtimeMS
		}
		return fresh[i].name < fresh[j].name
	})

	if ing.seedIfFirstScan(fresh) {
		return true
	}

	for _, c := range fresh {
		if ctx.Err() != nil {
			return true
		}
		_, ingested, err := ing.store.IngestFrame(c.path, c.name, c.size, c.mtimeMS)
		if err != nil {
			slog.Debug("frame ingest rejected", "path", c.path, "error", err)
			continue
		}
		ing.remember(c.path)
		if ingested {
			slog.Debug("frame ingested", "path", c.path, "size", c.size)
		}
	}
	return true
}

// frameCandidate is a directory entry that passed the remembered-set
// diff and is waiting to be ingested.
type frameCandidate struct {
	path    string
	name    string
	size    int64
	mtimeMS uint64
}

// seedIfFirstScan handles the cold-start policy. With SeedOnly set, the
// first scan's contents are marked remembered without emitting anything;
// the return value tells scan to stop there.
func (ing *Ingestor) seedIfFirstScan(fresh []frameCandidate) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	first := !ing.seeded
	ing.seeded = true
	if !first || !ing.cfg.SeedOnly {
		return false
	}
	for _, c := range fresh {
		ing.remembered[c.path] = struct{}{}
	}
	if len(fresh) > 0 {
		slog.Info("observer seeded without emitting", "files", len(fresh))
	}
	return true
}

func (ing *Ingestor) isRemembered(path string) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	_, ok := ing.remembered[path]
	return ok
}

func (ing *Ingestor) remember(path string) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	ing.remembered[path] = struct{}{}
}

// RememberedCount returns how many paths have been emitted or seeded.
func (ing *Ingestor) RememberedCount() int {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return len(ing.remembered)
}

// startWatcher wires fsnotify as a scan wake-up hint. Failures are
// logged at debug and leave the poll as the only trigger. The returned
// func releases the watcher.
func (ing *Ingestor) startWatcher(ctx context.Context) func() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, polling only", "error", err)
		return func() {}
	}
	if err := w.Add(ing.cfg.Dir); err != nil {
		// Directory may not exist yet; the poll still covers it.
		slog.Debug("fsnotify watch failed, polling only",
			"dir", ing.cfg.Dir, "error", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if evt.Op.Has(fsnotify.Create) || evt.Op.Has(fsnotify.Write) {
					select {
					case ing.wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Debug("fsnotify error", "error", err)
			}
		}
	}()

	return func() {
		if err := w.Close(); err != nil {
			slog.Debug("fsnotify close failed", "error", err)
		}
	}
}
