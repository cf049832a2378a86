// history.go: Append-only alert history with retention pruning
//
// The history log is a single JSON array of alert reports, oldest first,
// rewritten wholesale with the same temp+rename discipline as the baseline
// store and kept owner-only. Entries are immutable once appended; pruning
// removes whole entries and fails safe, keeping anything whose timestamp
// cannot be parsed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// History owns the persisted alert history log.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory creates a history log over the given file path.
func NewHistory(path string) *History {
	return &History{path: path}
}

// Path returns the history log location.
func (h *History) Path() string { return h.path }

// read loads the current history. Corrupt or unreadable files degrade to
// an empty log; read paths never crash the caller.
func (h *History) read() []AlertReport {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}
	var reports []AlertReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil
	}
	return reports
}

// write rewrites the whole log atomically with restrictive permissions.
func (h *History) write(reports []AlertReport) error {
	if reports == nil {
		reports = []AlertReport{}
	}
	data, err := json.MarshalIndent(reports, "", "    ")
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to encode alert history")
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o750); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to create history directory").
			WithContext("path", h.path)
	}
	return atomicWriteFile(h.path, data, storeFileMode)
}

// Append adds one report to the end of the log.
func (h *History) Append(report AlertReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	reports := h.read()
	reports = append(reports, report)
	return h.write(reports)
}

// List returns the full history, oldest first.
func (h *History) List() []AlertReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.read()
}

// Prune removes entries strictly older than the retention window and
// returns how many were dropped. Entries whose timestamp fails to parse
// are retained: format uncertainty never destroys audit data.
func (h *History) Prune(retentionYears int) (int, error) {
	cutoff := timecache.CachedTime().AddDate(-retentionYears, 0, 0)
	return h.PruneBefore(cutoff)
}

// PruneBefore removes entries with a parseable timestamp strictly before
// cutoff.
func (h *History) PruneBefore(cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reports := h.read()
	kept := reports[:0]
	for _, report := range reports {
		ts, err := parseReportTime(report.Time)
		if err != nil {
			kept = append(kept, report) // fail-safe: keep what we cannot date
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		kept = append(kept, report)
	}

	removed := len(reports) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := h.write(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// parseReportTime accepts the formats this engine has ever written.
func parseReportTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
