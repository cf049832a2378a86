// event_test.go: Diff engine and report builder tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"testing"
	"time"
)

func sampleMetadata() *Metadata {
	sum := "abc123"
	return &Metadata{
		Size:         42,
		Permissions:  "-rw-r--r--",
		Owner:        "root",
		Group:        "root",
		LastModified: "2025-01-01T00:00:00Z",
		Checksum:     &sum,
	}
}

func TestCompareMetadata(t *testing.T) {
	t.Run("IdenticalSnapshotsYieldEmptyDiff", func(t *testing.T) {
		old, current := sampleMetadata(), sampleMetadata()
		if changes := CompareMetadata(old, current); len(changes) != 0 {
			t.Errorf("Expected empty diff, got %v", changes)
		}
	})

	t.Run("SingleFieldChange", func(t *testing.T) {
		old, current := sampleMetadata(), sampleMetadata()
		current.Size = 43

		changes := CompareMetadata(old, current)
		if len(changes) != 1 {
			t.Fatalf("Expected 1 change, got %v", changes)
		}
		change, ok := changes["size"]
		if !ok {
			t.Fatal("Expected a size change entry")
		}
		if change.Before != int64(42) || change.After != int64(43) {
			t.Errorf("Expected 42 -> 43, got %v -> %v", change.Before, change.After)
		}
	})

	t.Run("ChecksumChange", func(t *testing.T) {
		old, current := sampleMetadata(), sampleMetadata()
		other := "def456"
		current.Checksum = &other

		changes := CompareMetadata(old, current)
		if change, ok := changes["checksum"]; !ok {
			t.Error("Expected a checksum change entry")
		} else if change.Before != "abc123" || change.After != "def456" {
			t.Errorf("Unexpected checksum diff: %v -> %v", change.Before, change.After)
		}
	})

	t.Run("NilChecksumsAreEqual", func(t *testing.T) {
		old, current := sampleMetadata(), sampleMetadata()
		old.Checksum, current.Checksum = nil, nil
		if changes := CompareMetadata(old, current); len(changes) != 0 {
			t.Errorf("Two nil checksums should not differ: %v", changes)
		}
	})

	t.Run("VanishedFileReportsAllFields", func(t *testing.T) {
		old := sampleMetadata()
		changes := CompareMetadata(old, nil)

		for _, field := range []string{"size", "permissions", "owner", "group", "last_modified", "checksum"} {
			change, ok := changes[field]
			if !ok {
				t.Errorf("Missing %s in vanished-file diff", field)
				continue
			}
			if change.After != nil {
				t.Errorf("Expected nil after-value for %s, got %v", field, change.After)
			}
		}
	})

	t.Run("NilOldYieldsEmptyDiff", func(t *testing.T) {
		if changes := CompareMetadata(nil, sampleMetadata()); len(changes) != 0 {
			t.Errorf("Expected empty diff for nil baseline, got %v", changes)
		}
	})
}

func TestEventKindTokens(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, kind := range EventKinds() {
			parsed, err := ParseEventKind(kind.String())
			if err != nil {
				t.Errorf("ParseEventKind(%q) failed: %v", kind.String(), err)
				continue
			}
			if parsed != kind {
				t.Errorf("Round trip changed %v into %v", kind, parsed)
			}
		}
	})

	t.Run("RejectsUnknownToken", func(t *testing.T) {
		if _, err := ParseEventKind("detonate"); err == nil {
			t.Error("Expected unknown token to be rejected")
		}
		if _, err := ParseEventKind(""); err == nil {
			t.Error("Expected empty token to be rejected")
		}
	})
}

func TestInterpretationTotality(t *testing.T) {
	for _, kind := range EventKinds() {
		interpretation, recommendation := kind.Interpretation()
		if interpretation == "" || recommendation == "" {
			t.Errorf("Event %v has an empty interpretation pair", kind)
		}
	}

	t.Run("DeleteRecommendsRestore", func(t *testing.T) {
		_, recommendation := EventDelete.Interpretation()
		if recommendation != "Restore from backup if unauthorized" {
			t.Errorf("Unexpected delete recommendation: %q", recommendation)
		}
	})
}

func TestBuildReport(t *testing.T) {
	current := sampleMetadata()
	changes := ChangeSet{"size": {Before: int64(1), After: int64(2)}}

	report := BuildReport(EventModify, "/tmp/x", AlertModeEmail, current, changes)

	if report.File != "/tmp/x" {
		t.Errorf("Expected file /tmp/x, got %s", report.File)
	}
	if report.Event != "modify" {
		t.Errorf("Expected event modify, got %s", report.Event)
	}
	if report.AlertMode != AlertModeEmail {
		t.Errorf("Expected alert mode %s, got %s", AlertModeEmail, report.AlertMode)
	}
	if report.Owner != "root" || report.Permissions != "-rw-r--r--" {
		t.Errorf("Ownership fields not taken from current metadata: %s %s", report.Owner, report.Permissions)
	}
	if len(report.Changes) != 1 {
		t.Errorf("Changes not carried into report: %v", report.Changes)
	}
	if _, err := time.Parse(time.RFC3339Nano, report.Time); err != nil {
		t.Errorf("Report timestamp is not RFC3339Nano: %q", report.Time)
	}

	t.Run("NilMetadataDegradesOwnership", func(t *testing.T) {
		report := BuildReport(EventDelete, "/tmp/x", AlertModeLog, nil, ChangeSet{})
		if report.Owner != "unknown" || report.Permissions != "unknown" {
			t.Errorf("Expected unknown ownership, got %s %s", report.Owner, report.Permissions)
		}
	})
}
