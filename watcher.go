// watcher.go: Filesystem event filter and dispatch loop
//
// Raw notifications arrive from the fsnotify backend on each watched
// parent directory. The filter re-validates path identity on every
// delivery (backends do not guarantee anything for a file deleted and
// recreated under the same name), maps the backend kind onto the domain
// vocabulary and drops anything not explicitly requested for that path.
// Accepted events flow through a bounded channel into a single
// serializing consumer, so processing for one path always completes,
// cache update included, before the next event for that path starts.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
	"github.com/fsnotify/fsnotify"
)

// rawNotification is one accepted domain event awaiting processing.
type rawNotification struct {
	path string
	kind EventKind
}

// FileWatcher runs the monitoring service: notification backend, filter,
// dispatch loop and the downstream report pipeline. Construct once and
// keep a handle; there is no ambient global watcher.
type FileWatcher struct {
	config  *Config
	store   *Store
	history *History
	router  *Router
	audit   *AuditLogger

	// monitored mirrors each path's watch configuration for the filter.
	monitoredMu sync.RWMutex
	monitored   map[string]Monitoring

	backend *fsnotify.Watcher
	events  chan rawNotification

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewFileWatcher creates the monitoring service over the configured
// store, history and alert router.
func NewFileWatcher(config Config) (*FileWatcher, error) {
	cfg := config.WithDefaults()

	audit, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		// Audit must never prevent monitoring; degrade to disabled.
		audit, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	w := &FileWatcher{
		config:    cfg,
		store:     NewStore(cfg.StorePath, cfg.IndexPath).WithAudit(audit),
		history:   NewHistory(cfg.HistoryPath),
		router:    NewRouter(cfg.DispatchTimeout).WithAudit(audit),
		audit:     audit,
		monitored: make(map[string]Monitoring),
		events:    make(chan rawNotification, cfg.EventBufferSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

// Store exposes the baseline store backing this watcher.
func (w *FileWatcher) Store() *Store { return w.store }

// History exposes the alert history backing this watcher.
func (w *FileWatcher) History() *History { return w.history }

// MonitoredCount returns how many paths are currently under watch.
func (w *FileWatcher) MonitoredCount() int {
	w.monitoredMu.RLock()
	defer w.monitoredMu.RUnlock()
	return len(w.monitored)
}

// Start installs directory watches and launches the dispatch loop. A
// watcher is single-use: once stopped it cannot be started again, build
// a new one instead.
func (w *FileWatcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}
	select {
	case <-w.stopCh:
		w.running.Store(false)
		return errors.New(ErrCodeWatcherStopped, "watcher cannot be restarted after stop")
	default:
	}

	w.loadMonitored()

	backend, err := fsnotify.NewWatcher()
	if err != nil {
		w.running.Store(false)
		return errors.Wrap(err, ErrCodeIOError, "failed to create notification backend")
	}
	w.backend = backend
	w.installWatches()

	go w.forwardLoop()
	go w.dispatchLoop()

	w.audit.LogFileWatch("watcher_started", w.store.InfoPath())
	return nil
}

// Stop terminates the blocking wait for notifications and lets in-flight
// processing finish; no event is aborted mid-pipeline.
func (w *FileWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}

	w.cancel()
	close(w.stopCh)
	if w.backend != nil {
		_ = w.backend.Close()
	}
	<-w.stoppedCh

	w.audit.LogFileWatch("watcher_stopped", w.store.InfoPath())
	_ = w.audit.Close()
	return nil
}

// IsRunning reports whether the dispatch loop is active.
func (w *FileWatcher) IsRunning() bool {
	return w.running.Load()
}

// Close is an alias for Stop for defer-friendly resource management.
func (w *FileWatcher) Close() error {
	return w.Stop()
}

// Reload re-reads the monitored set and baselines from the store without
// restarting the service, then installs watches for any new directories.
func (w *FileWatcher) Reload() {
	w.loadMonitored()
	if w.backend != nil {
		w.installWatches()
	}
	w.audit.LogFileWatch("watcher_reloaded", w.store.InfoPath())
}

// loadMonitored snapshots every path's watch configuration and warms the
// baseline cache.
func (w *FileWatcher) loadMonitored() {
	w.store.WarmCache()

	monitored := make(map[string]Monitoring)
	for _, rec := range w.store.Load() {
		monitored[rec.Path()] = *rec.Monitoring
	}

	w.monitoredMu.Lock()
	w.monitored = monitored
	w.monitoredMu.Unlock()
}

// installWatches adds each distinct parent directory of a monitored path,
// non-recursively. Most backends cannot cheaply watch a single file, so
// identity is re-checked per notification instead.
func (w *FileWatcher) installWatches() {
	w.monitoredMu.RLock()
	dirs := make(map[string]struct{}, len(w.monitored))
	for path := range w.monitored {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	w.monitoredMu.RUnlock()

	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.backend.Add(dir); err != nil {
			w.absorb(errors.Wrap(err, ErrCodeIOError, "cannot watch directory").
				WithContext("dir", dir), dir)
		}
	}
}

// forwardLoop drains the backend, filters each raw notification and
// forwards accepted events into the bounded channel. The blocking send
// preserves per-directory delivery order under backpressure.
func (w *FileWatcher) forwardLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case err, ok := <-w.backend.Errors:
			if !ok {
				return
			}
			w.absorb(errors.Wrap(err, ErrCodeIOError, "notification backend error"), "")
		case ev, ok := <-w.backend.Events:
			if !ok {
				return
			}
			n, accepted := w.filter(ev)
			if !accepted {
				continue
			}
			select {
			case w.events <- n:
			case <-w.stopCh:
				return
			}
		}
	}
}

// filter is the per-notification state machine: canonicalize, check
// membership in the monitored set, map the backend kind, check the
// path's watch-event set. Rejections produce no output.
func (w *FileWatcher) filter(ev fsnotify.Event) (rawNotification, bool) {
	path, err := CanonicalPath(ev.Name)
	if err != nil {
		return rawNotification{}, false
	}

	w.monitoredMu.RLock()
	cfg, monitored := w.monitored[path]
	w.monitoredMu.RUnlock()
	if !monitored {
		return rawNotification{}, false
	}

	kind, mapped := mapBackendOp(ev.Op)
	if !mapped {
		return rawNotification{}, false
	}

	wanted := false
	for _, token := range cfg.WatchEvents {
		if token == kind.String() {
			wanted = true
			break
		}
	}
	if !wanted {
		return rawNotification{}, false
	}

	return rawNotification{path: path, kind: kind}, true
}

// mapBackendOp reduces the fsnotify op bitmask to the domain vocabulary.
func mapBackendOp(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventAdd, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove):
		return EventDelete, true
	case op.Has(fsnotify.Rename):
		return EventMove, true
	case op.Has(fsnotify.Chmod):
		return EventPermissions, true
	default:
		return 0, false
	}
}

// dispatchLoop is the single serializing consumer. It blocks waiting for
// the next accepted event and runs until explicitly stopped; a bad event
// never terminates the loop.
func (w *FileWatcher) dispatchLoop() {
	defer close(w.stoppedCh)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stopCh:
			return
		case n := <-w.events:
			w.handleEvent(n)
		}
	}
}

// handleEvent runs the report pipeline for one accepted domain event:
// load baseline, recapture metadata, diff, suppress spurious deliveries,
// build the report, append history, dispatch the alert, update the store.
func (w *FileWatcher) handleEvent(n rawNotification) {
	defer func() {
		if r := recover(); r != nil {
			w.audit.LogSecurityEvent("pipeline_panic", "recovered panic in event pipeline",
				map[string]interface{}{"path": n.path, "panic": r})
		}
	}()

	baseline, ok := w.store.Get(n.path)
	if !ok {
		w.audit.LogFileWatch("baseline_missing", n.path)
		return
	}

	// Full metadata refresh on every accepted event, content hash
	// included. A vanished path yields a nil snapshot, not a failure.
	current, err := CaptureMetadata(n.path)
	if err != nil && !hasErrorCode(err, ErrCodeFileNotFound) {
		w.absorb(err, n.path)
		return
	}

	changes := CompareMetadata(baseline.Metadata, current)

	// Backends coalesce and duplicate deliveries; an empty diff on
	// anything but delete means nothing actually happened. Drop it with
	// no history entry, no alert and no store mutation.
	if len(changes) == 0 && n.kind != EventDelete {
		w.audit.LogFileWatch("spurious_event_dropped", n.path)
		return
	}

	alertMode := AlertModeLog
	if baseline.Monitoring != nil && baseline.Monitoring.AlertMode != "" {
		alertMode = baseline.Monitoring.AlertMode
	}

	report := BuildReport(n.kind, n.path, alertMode, current, changes)

	if err := w.history.Append(report); err != nil {
		w.absorb(err, n.path)
	}

	w.router.Dispatch(report, alertMode)

	if err := w.store.ApplyEvent(n.kind, n.path); err != nil {
		w.absorb(err, n.path)
	}

	if n.kind == EventDelete {
		w.monitoredMu.Lock()
		delete(w.monitored, n.path)
		w.monitoredMu.Unlock()
	}

	w.audit.LogFileWatch("event_"+n.kind.String(), n.path)
}

// absorb routes an error swallowed by the autonomous loop to the
// configured handler and the audit trail. Nothing propagates.
func (w *FileWatcher) absorb(err error, path string) {
	if w.config.ErrorHandler != nil {
		w.config.ErrorHandler(err, path)
	}
	w.audit.LogSecurityEvent("pipeline_error", "error absorbed by event loop",
		map[string]interface{}{"path": path, "error": err.Error()})
}
