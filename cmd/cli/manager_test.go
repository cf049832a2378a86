// CLI command tests over temp storage
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/vigilo"
)

// cliFixture wires a Manager to temp storage through the environment.
type cliFixture struct {
	t       *testing.T
	manager *Manager
	dir     string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("VIGILO_STORE_PATH", filepath.Join(dir, "file_info.json"))
	t.Setenv("VIGILO_INDEX_PATH", filepath.Join(dir, "file_event.json"))
	t.Setenv("VIGILO_HISTORY_PATH", filepath.Join(dir, "alert_history.json"))
	t.Setenv("VIGILO_ALLOWED_ROOTS", dir)
	t.Setenv("VIGILO_AUDIT_ENABLED", "false")

	return &cliFixture{t: t, manager: NewManager(), dir: dir}
}

func (f *cliFixture) run(args ...string) error {
	f.t.Helper()
	// Orpheus stores flag values on the command objects, so a Manager is
	// single-shot like a real CLI process; build a fresh one per command.
	f.manager = NewManager()
	return f.manager.Run(args)
}

func (f *cliFixture) createFile(name, content string) string {
	f.t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		f.t.Fatalf("Failed to create %s: %v", name, err)
	}
	return path
}

func (f *cliFixture) store() *vigilo.Store {
	f.t.Helper()
	store, err := f.manager.openStore()
	if err != nil {
		f.t.Fatalf("openStore failed: %v", err)
	}
	return store
}

func TestCLIAddAndList(t *testing.T) {
	fixture := newCLIFixture(t)
	target := fixture.createFile("watched.txt", "content")

	if err := fixture.run("add", "--preset", "default", target); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	rec, ok := fixture.store().Get(target)
	if !ok {
		t.Fatal("add did not register the file")
	}

	t.Run("DefaultPresetWatchSet", func(t *testing.T) {
		events := rec.Monitoring.WatchEvents
		if len(events) != 3 || events[0] != "modify" || events[1] != "delete" || events[2] != "permissions" {
			t.Errorf("Expected [modify delete permissions], got %v", events)
		}
	})

	t.Run("DefaultAlertMode", func(t *testing.T) {
		if rec.Monitoring.AlertMode != vigilo.AlertModeLog {
			t.Errorf("Expected log alert mode, got %s", rec.Monitoring.AlertMode)
		}
	})

	t.Run("ListSucceeds", func(t *testing.T) {
		if err := fixture.run("list"); err != nil {
			t.Errorf("list failed: %v", err)
		}
	})

	t.Run("DuplicateAddFails", func(t *testing.T) {
		if err := fixture.run("add", "--preset", "default", target); err == nil {
			t.Error("Expected duplicate add to fail")
		}
	})

	t.Run("NoEventsSelectedRejected", func(t *testing.T) {
		other := fixture.createFile("unselected.txt", "x")
		if err := fixture.run("add", other); err == nil {
			t.Error("Expected add without event selection to fail")
		}
		if _, ok := fixture.store().Get(other); ok {
			t.Error("File registered despite missing event selection")
		}
	})
}

func TestCLIAddFlagSelection(t *testing.T) {
	fixture := newCLIFixture(t)

	t.Run("FlagsBeforePath", func(t *testing.T) {
		target := fixture.createFile("flagged.txt", "x")
		if err := fixture.run("add", "--permissions", "--move", target); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		rec, ok := fixture.store().Get(target)
		if !ok {
			t.Fatal("add did not register the file")
		}
		if events := rec.Monitoring.WatchEvents; len(events) != 2 {
			t.Fatalf("Expected 2 events, got %v", events)
		}
	})

	t.Run("FlagsAfterPath", func(t *testing.T) {
		target := fixture.createFile("trailing-flags.txt", "x")
		if err := fixture.run("add", target, "--modify", "--delete"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		rec, ok := fixture.store().Get(target)
		if !ok {
			t.Fatal("add did not register the file")
		}
		if events := rec.Monitoring.WatchEvents; len(events) != 2 {
			t.Fatalf("Expected 2 events, got %v", events)
		}
	})

	t.Run("ValueFlagNotTakenAsPath", func(t *testing.T) {
		target := fixture.createFile("valued.txt", "x")
		if err := fixture.run("add", "--alert", vigilo.AlertModeSilent, "-m", target); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		rec, ok := fixture.store().Get(target)
		if !ok {
			t.Fatal("add did not register the file")
		}
		if rec.Monitoring.AlertMode != vigilo.AlertModeSilent {
			t.Errorf("Expected silent alert mode, got %s", rec.Monitoring.AlertMode)
		}
	})

	t.Run("FullPreset", func(t *testing.T) {
		target := fixture.createFile("full.txt", "x")
		if err := fixture.run("add", "--preset", "full", target); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		rec, _ := fixture.store().Get(target)
		if len(rec.Monitoring.WatchEvents) != len(vigilo.EventKinds()) {
			t.Errorf("Full preset incomplete: %v", rec.Monitoring.WatchEvents)
		}
	})

	t.Run("UnknownPresetRejected", func(t *testing.T) {
		target := fixture.createFile("bad-preset.txt", "x")
		if err := fixture.run("add", "--preset", "everything", target); err == nil {
			t.Error("Expected unknown preset to fail")
		}
	})

	t.Run("UnknownAlertModeRejected", func(t *testing.T) {
		target := fixture.createFile("bad-alert.txt", "x")
		if err := fixture.run("add", "-m", "--alert", "pager", target); err == nil {
			t.Error("Expected unknown alert mode to fail")
		}
	})

	t.Run("PathOutsideRootsRejected", func(t *testing.T) {
		if err := fixture.run("add", "-m", "/usr/bin/true"); err == nil {
			t.Error("Expected path outside allowed roots to fail")
		}
	})
}

func TestCLIEventsAndAlert(t *testing.T) {
	fixture := newCLIFixture(t)
	target := fixture.createFile("conf.txt", "x")
	if err := fixture.run("add", "-m", "-d", target); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	t.Run("EventsSet", func(t *testing.T) {
		if err := fixture.run("events", "set", target, "permissions"); err != nil {
			t.Fatalf("events set failed: %v", err)
		}
		rec, _ := fixture.store().Get(target)
		if len(rec.Monitoring.WatchEvents) != 1 || rec.Monitoring.WatchEvents[0] != "permissions" {
			t.Errorf("Expected [permissions], got %v", rec.Monitoring.WatchEvents)
		}
	})

	t.Run("EventsAdd", func(t *testing.T) {
		if err := fixture.run("events", "add", target, "delete"); err != nil {
			t.Fatalf("events add failed: %v", err)
		}
		rec, _ := fixture.store().Get(target)
		if len(rec.Monitoring.WatchEvents) != 2 {
			t.Errorf("Expected 2 events, got %v", rec.Monitoring.WatchEvents)
		}
	})

	t.Run("EventsRemove", func(t *testing.T) {
		if err := fixture.run("events", "remove", target, "permissions"); err != nil {
			t.Fatalf("events remove failed: %v", err)
		}
		rec, _ := fixture.store().Get(target)
		if len(rec.Monitoring.WatchEvents) != 1 || rec.Monitoring.WatchEvents[0] != "delete" {
			t.Errorf("Expected [delete], got %v", rec.Monitoring.WatchEvents)
		}
	})

	t.Run("EventsUnknownTokenRejected", func(t *testing.T) {
		if err := fixture.run("events", "add", target, "explode"); err == nil {
			t.Error("Expected unknown event token to fail")
		}
	})

	t.Run("AlertSet", func(t *testing.T) {
		if err := fixture.run("alert", "set", target, "--method", vigilo.AlertModeSilent); err != nil {
			t.Fatalf("alert set failed: %v", err)
		}
		rec, _ := fixture.store().Get(target)
		if rec.Monitoring.AlertMode != vigilo.AlertModeSilent {
			t.Errorf("Expected silent, got %s", rec.Monitoring.AlertMode)
		}
	})

	t.Run("AlertTest", func(t *testing.T) {
		if err := fixture.run("alert", "test", "--method", vigilo.AlertModeLog); err != nil {
			t.Errorf("alert test failed: %v", err)
		}
	})

	t.Run("AlertModes", func(t *testing.T) {
		if err := fixture.run("alert", "modes"); err != nil {
			t.Errorf("alert modes failed: %v", err)
		}
	})
}

func TestCLIRemoveAndInfo(t *testing.T) {
	fixture := newCLIFixture(t)
	target := fixture.createFile("gone.txt", "x")
	if err := fixture.run("add", "-m", "-d", target); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	t.Run("Info", func(t *testing.T) {
		if err := fixture.run("info", target); err != nil {
			t.Errorf("info failed: %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := fixture.run("remove", target); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if _, ok := fixture.store().Get(target); ok {
			t.Error("Record survives remove")
		}
	})

	t.Run("InfoAfterRemove", func(t *testing.T) {
		if err := fixture.run("info", target); err == nil {
			t.Error("Expected info on removed file to fail")
		}
	})
}

func TestCLIHistoryAndIndex(t *testing.T) {
	fixture := newCLIFixture(t)
	target := fixture.createFile("hist.txt", "x")
	if err := fixture.run("add", "-m", "-d", target); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	t.Run("HistoryShowEmpty", func(t *testing.T) {
		if err := fixture.run("history", "show"); err != nil {
			t.Errorf("history show failed: %v", err)
		}
	})

	t.Run("HistoryPrune", func(t *testing.T) {
		if err := fixture.run("history", "prune", "--years", "1"); err != nil {
			t.Errorf("history prune failed: %v", err)
		}
	})

	t.Run("IndexRebuild", func(t *testing.T) {
		if err := fixture.run("index", "rebuild"); err != nil {
			t.Errorf("index rebuild failed: %v", err)
		}
		data, err := os.ReadFile(fixture.store().IndexPath())
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if len(data) == 0 {
			t.Error("Rebuilt index is empty")
		}
	})
}
