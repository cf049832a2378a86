// watcher_test.go: Event filter and pipeline tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

// newTestWatcher builds a watcher over temp storage without starting the
// notification backend, plus one registered file watched for modify and
// delete.
func newTestWatcher(t *testing.T) (*FileWatcher, string) {
	t.Helper()
	dir := t.TempDir()

	config := Config{
		StorePath:   filepath.Join(dir, "file_info.json"),
		IndexPath:   filepath.Join(dir, "file_event.json"),
		HistoryPath: filepath.Join(dir, "alert_history.json"),
		Audit:       AuditConfig{Enabled: false, BufferSize: 1},
	}

	w, err := NewFileWatcher(config)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if err := w.Store().Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	target := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(target, []byte("baseline"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec, err := CaptureRecord(target, []string{"modify", "delete"}, AlertModeSilent)
	if err != nil {
		t.Fatalf("CaptureRecord failed: %v", err)
	}
	if err := w.Store().Register(rec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	w.loadMonitored()
	return w, target
}

func TestMapBackendOp(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want EventKind
	}{
		{fsnotify.Create, EventAdd},
		{fsnotify.Write, EventModify},
		{fsnotify.Remove, EventDelete},
		{fsnotify.Rename, EventMove},
		{fsnotify.Chmod, EventPermissions},
	}

	for _, tc := range cases {
		kind, ok := mapBackendOp(tc.op)
		if !ok {
			t.Errorf("Op %v not mapped", tc.op)
			continue
		}
		if kind != tc.want {
			t.Errorf("Op %v mapped to %v, want %v", tc.op, kind, tc.want)
		}
	}

	t.Run("EmptyOpRejected", func(t *testing.T) {
		if _, ok := mapBackendOp(fsnotify.Op(0)); ok {
			t.Error("Empty op mask was mapped to a domain event")
		}
	})
}

func TestWatcherFilter(t *testing.T) {
	w, target := newTestWatcher(t)

	t.Run("AcceptsWatchedKind", func(t *testing.T) {
		n, ok := w.filter(fsnotify.Event{Name: target, Op: fsnotify.Write})
		if !ok {
			t.Fatal("Watched modify event was rejected")
		}
		if n.path != target || n.kind != EventModify {
			t.Errorf("Unexpected notification %+v", n)
		}
	})

	t.Run("RejectsUnrequestedKind", func(t *testing.T) {
		if _, ok := w.filter(fsnotify.Event{Name: target, Op: fsnotify.Chmod}); ok {
			t.Error("Permissions event accepted though not in the watch set")
		}
	})

	t.Run("RejectsUnmonitoredPath", func(t *testing.T) {
		other := filepath.Join(filepath.Dir(target), "other.txt")
		if _, ok := w.filter(fsnotify.Event{Name: other, Op: fsnotify.Write}); ok {
			t.Error("Event for an unmonitored sibling was accepted")
		}
	})

	t.Run("CanonicalizesBeforeLookup", func(t *testing.T) {
		indirect := filepath.Join(filepath.Dir(target), ".", filepath.Base(target))
		if _, ok := w.filter(fsnotify.Event{Name: indirect, Op: fsnotify.Write}); !ok {
			t.Error("Uncleaned path for a monitored file was rejected")
		}
	})
}

func TestHandleEventPipeline(t *testing.T) {
	t.Run("SpuriousModifyDropped", func(t *testing.T) {
		w, target := newTestWatcher(t)
		before, _ := w.Store().Get(target)

		// Nothing changed on disk, so the diff is empty and the event
		// must leave no trace.
		w.handleEvent(rawNotification{path: target, kind: EventModify})

		if got := w.History().List(); len(got) != 0 {
			t.Errorf("Spurious event reached history: %d reports", len(got))
		}
		after, _ := w.Store().Get(target)
		if after.Metadata.LastModified != before.Metadata.LastModified {
			t.Error("Spurious event refreshed the baseline")
		}
	})

	t.Run("RealModifyReportsAndRefreshes", func(t *testing.T) {
		w, target := newTestWatcher(t)
		before, _ := w.Store().Get(target)

		if err := os.WriteFile(target, []byte("changed content"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		w.handleEvent(rawNotification{path: target, kind: EventModify})

		reports := w.History().List()
		if len(reports) != 1 {
			t.Fatalf("Expected 1 report, got %d", len(reports))
		}
		report := reports[0]
		if report.File != target || report.Event != "modify" {
			t.Errorf("Unexpected report %+v", report)
		}
		if _, ok := report.Changes["checksum"]; !ok {
			t.Error("Content change not reflected in report diff")
		}
		if report.AlertMode != AlertModeSilent {
			t.Errorf("Alert mode not taken from monitoring config: %s", report.AlertMode)
		}

		after, _ := w.Store().Get(target)
		if checksumEqual(before.Metadata.Checksum, after.Metadata.Checksum) {
			t.Error("Baseline not refreshed after a real modify")
		}
	})

	t.Run("DeleteRemovesBaselineAndMonitoring", func(t *testing.T) {
		w, target := newTestWatcher(t)

		if err := os.Remove(target); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		w.handleEvent(rawNotification{path: target, kind: EventDelete})

		if len(w.History().List()) != 1 {
			t.Error("Delete event did not produce a report")
		}
		if _, ok := w.Store().Get(target); ok {
			t.Error("Baseline survived a delete event")
		}
		if w.MonitoredCount() != 0 {
			t.Error("Monitored set still contains the deleted path")
		}
	})

	t.Run("UnknownPathIsDropped", func(t *testing.T) {
		w, _ := newTestWatcher(t)
		w.handleEvent(rawNotification{path: "/tmp/never-registered", kind: EventModify})
		if len(w.History().List()) != 0 {
			t.Error("Event without a baseline produced a report")
		}
	})
}

func TestWatcherLifecycleGuards(t *testing.T) {
	w, _ := newTestWatcher(t)

	if w.IsRunning() {
		t.Error("Watcher reports running before Start")
	}

	err := w.Stop()
	if err == nil || !hasErrorCode(err, ErrCodeWatcherStopped) {
		t.Errorf("Expected %s from Stop before Start, got %v", ErrCodeWatcherStopped, err)
	}

	t.Run("NoRestartAfterStop", func(t *testing.T) {
		w, _ := newTestWatcher(t)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if err := w.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		err := w.Start()
		if err == nil || !hasErrorCode(err, ErrCodeWatcherStopped) {
			t.Errorf("Expected %s from Start after Stop, got %v", ErrCodeWatcherStopped, err)
		}
		if w.IsRunning() {
			t.Error("Spent watcher reports running")
		}
	})
}

func TestWatcherReload(t *testing.T) {
	w, target := newTestWatcher(t)

	second := filepath.Join(filepath.Dir(target), "second.txt")
	if err := os.WriteFile(second, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	rec, err := CaptureRecord(second, []string{"modify"}, AlertModeLog)
	if err != nil {
		t.Fatalf("CaptureRecord failed: %v", err)
	}
	if err := w.Store().Register(rec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if w.MonitoredCount() != 1 {
		t.Fatalf("Expected 1 monitored path before reload, got %d", w.MonitoredCount())
	}
	w.Reload()
	if w.MonitoredCount() != 2 {
		t.Errorf("Expected 2 monitored paths after reload, got %d", w.MonitoredCount())
	}
}
