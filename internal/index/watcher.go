package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notegraph/internal/storage"
)

// Note event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
}

// Watch re-indexes vault files edited outside the service until ctx is
// cancelled. Directories created at runtime are watched too. Renames delete
// the old entry and schedule a reconciliation pass that picks up the new
// path.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, vaultRoot); err != nil {
		return err
	}

	w := &watcher{db: db, store: store, root: vaultRoot, logger: logger, cb: cb}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var (
		reconcileTimer *time.Timer
		reconcileCh    <-chan time.Time
	)
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
			return
		}
		reconcileTimer.Reset(reconcileDelay)
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					w.addDir(fw, ev.Name)
					continue
				}
			}
			if w.handle(ev) {
				scheduleReconcile()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle applies one file event and reports whether a reconciliation pass
// is needed.
func (w *watcher) handle(ev fsnotify.Event) bool {
	rel, ok := w.notePath(ev.Name)
	if !ok {
		return false
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		kind := EventUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = EventCreated
		}
		w.index(rel, kind)

	case ev.Op&fsnotify.Remove != 0:
		w.remove(rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as Create.
		w.remove(rel)
		return true
	}
	return false
}

func (w *watcher) index(rel, kind string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if err := IndexFile(w.db, rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.emit(kind, rel)
}

func (w *watcher) remove(rel string) {
	if err := w.db.DeleteByPath(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.emit(EventDeleted, rel)
}

// reconcile removes index rows whose file is gone and indexes files whose
// checksum differs from the index.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs {
			w.index(p, EventCreated)
		}
	}
}

// addDir watches a new directory and indexes the notes already inside it.
func (w *watcher) addDir(fw *fsnotify.Watcher, dir string) {
	if err := addDirsRecursive(fw, dir); err != nil {
		w.logger.Warn("watcher: add new dir failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := w.notePath(p); ok {
			w.index(rel, EventCreated)
		}
		return nil
	})
}

// notePath maps an absolute path to a vault-relative note path, rejecting
// non-Markdown files and the temporary files of atomic writes.
func (w *watcher) notePath(abs string) (string, bool) {
	if !strings.HasSuffix(abs, ".md") || strings.HasPrefix(filepath.Base(abs), ".") {
		return "", false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *watcher) emit(kind, rel string) {
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
}
