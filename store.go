// store.go: Baseline store, event index and configuration mutations
//
// The baseline store is a newline-delimited JSON database of monitored
// records plus an in-memory mirror. All mutations are serialized under a
// single write lock and rewritten atomically (temp sibling, fsync, rename);
// the cache has its own lock and is refreshed strictly after a successful
// on-disk write, so readers of unrelated paths never wait on a write in
// progress.
//
// Corruption policy: a line that fails to parse as a structurally valid
// record is skipped during load but carried through verbatim on every
// rewrite. Operator data is never silently destroyed because a different
// entry in the file is corrupt.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agilira/go-errors"
)

// storeFileMode keeps both database artifacts owner-only.
const storeFileMode = 0o600

// IndexEntry is one value of the derived event index: just enough for an
// external consumer to answer "what is watched, and how is it alerted".
type IndexEntry struct {
	WatchEvents []string `json:"watch_events"`
	AlertMode   string   `json:"alert_mode"`
}

// ConfChangeKind enumerates the supported monitoring-configuration
// mutations.
type ConfChangeKind int

const (
	ConfSetEvents ConfChangeKind = iota
	ConfAddEvent
	ConfRemoveEvent
	ConfSetAlert
	ConfSetAll
)

// ConfChange describes one mutation against a path's monitoring block.
type ConfChange struct {
	Kind      ConfChangeKind
	Events    []string // ConfSetEvents, ConfSetAll
	Event     string   // ConfAddEvent, ConfRemoveEvent
	AlertMode string   // ConfSetAlert, ConfSetAll
}

// storeLine pairs the verbatim text of one database line with its parsed
// form. rec is nil for lines that failed structural validation; those are
// preserved as-is on rewrite.
type storeLine struct {
	raw string
	rec *MonitoredRecord
}

// Store owns the persisted baseline database, the derived event index and
// the in-memory mirror. Construct once at startup and hand to all
// collaborators; there is no ambient global.
type Store struct {
	infoPath  string
	indexPath string

	// writeMu serializes every mutating operation end to end, including
	// the event-driven updates performed by the dispatch loop.
	writeMu sync.Mutex

	// cacheMu guards only the in-memory mirror.
	cacheMu sync.RWMutex
	cache   map[string]*MonitoredRecord

	audit *AuditLogger
}

// NewStore creates a baseline store over the given database and index
// file paths.
func NewStore(infoPath, indexPath string) *Store {
	return &Store{
		infoPath:  infoPath,
		indexPath: indexPath,
		cache:     make(map[string]*MonitoredRecord),
	}
}

// WithAudit attaches an audit logger recording every store mutation.
func (s *Store) WithAudit(audit *AuditLogger) *Store {
	s.audit = audit
	return s
}

// InfoPath returns the baseline database location.
func (s *Store) InfoPath() string { return s.infoPath }

// IndexPath returns the event index location.
func (s *Store) IndexPath() string { return s.indexPath }

// Initialize creates the database artifacts when absent: an empty
// newline-delimited store and an empty JSON object index, both owner-only.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.infoPath), 0o750); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to create store directory").
			WithContext("path", s.infoPath)
	}
	if _, err := os.Stat(s.infoPath); os.IsNotExist(err) {
		if err := os.WriteFile(s.infoPath, nil, storeFileMode); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "failed to create baseline store").
				WithContext("path", s.infoPath)
		}
	}
	if _, err := os.Stat(s.indexPath); os.IsNotExist(err) {
		if err := os.WriteFile(s.indexPath, []byte("{}"), storeFileMode); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "failed to create event index").
				WithContext("path", s.indexPath)
		}
	}
	return nil
}

// parseRecord parses one database line into a structurally valid record.
// Anything less than a full record (missing path, metadata or monitoring)
// counts as unparseable and is carried verbatim instead.
func parseRecord(line string) *MonitoredRecord {
	var rec MonitoredRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil
	}
	if rec.File.Path == "" || rec.Metadata == nil || rec.Monitoring == nil {
		return nil
	}
	return &rec
}

// readLines reads the persisted database. I/O failure is an error here;
// read-only callers degrade it to an empty view themselves.
func (s *Store) readLines() ([]storeLine, error) {
	data, err := os.ReadFile(s.infoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to read baseline store").
			WithContext("path", s.infoPath)
	}

	var lines []storeLine
	for _, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lines = append(lines, storeLine{raw: raw, rec: parseRecord(raw)})
	}
	return lines, nil
}

// writeLines rewrites the database atomically: all lines (valid and
// carried-verbatim) to a temp sibling, fsync, rename. On failure the temp
// file is removed and the prior database stays untouched.
func (s *Store) writeLines(lines []storeLine) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.raw)
		b.WriteByte('\n')
	}
	return atomicWriteFile(s.infoPath, []byte(b.String()), storeFileMode)
}

// encodeLine renders a record as one database line.
func encodeLine(rec *MonitoredRecord) (storeLine, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return storeLine{}, errors.Wrap(err, ErrCodeInvalidRecord, "failed to encode record").
			WithContext("path", rec.File.Path)
	}
	return storeLine{raw: string(data), rec: rec}, nil
}

// Load returns every structurally valid record. Read failures degrade to
// an empty view; they never crash the caller.
func (s *Store) Load() []*MonitoredRecord {
	lines, err := s.readLines()
	if err != nil {
		return nil
	}
	var records []*MonitoredRecord
	for _, line := range lines {
		if line.rec != nil {
			records = append(records, line.rec)
		}
	}
	return records
}

// WarmCache loads every valid record into the in-memory mirror.
func (s *Store) WarmCache() {
	records := s.Load()
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for _, rec := range records {
		s.cache[rec.Path()] = rec
	}
}

// Get is the cache-first baseline lookup. On a miss it falls back to a
// full scan of the persisted file and populates the cache. Absence is a
// result, not an error.
func (s *Store) Get(path string) (*MonitoredRecord, bool) {
	s.cacheMu.RLock()
	rec, ok := s.cache[path]
	s.cacheMu.RUnlock()
	if ok {
		return rec, true
	}

	lines, err := s.readLines()
	if err != nil {
		return nil, false
	}
	for _, line := range lines {
		if line.rec != nil && line.rec.Path() == path {
			s.cacheMu.Lock()
			s.cache[path] = line.rec
			s.cacheMu.Unlock()
			return line.rec, true
		}
	}
	return nil, false
}

// MonitoringFor returns the watch configuration for path from the mirror.
// The dispatch loop consults this on every raw notification.
func (s *Store) MonitoringFor(path string) (*Monitoring, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	rec, ok := s.cache[path]
	if !ok || rec.Monitoring == nil {
		return nil, false
	}
	return rec.Monitoring, true
}

// Register appends a new record, rejecting duplicates of the same path.
// Runs entirely under the write lock so concurrent registrations of the
// same path leave exactly one record.
func (s *Store) Register(rec *MonitoredRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if line.rec != nil && line.rec.Path() == rec.Path() {
			return errors.New(ErrCodeDuplicateRecord, "path is already monitored").
				WithContext("path", rec.Path())
		}
	}

	encoded, err := encodeLine(rec)
	if err != nil {
		return err
	}
	if err := s.writeLines(append(lines, encoded)); err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.cache[rec.Path()] = rec
	s.cacheMu.Unlock()

	s.audit.LogStoreChange("record_registered", rec.Path(), nil, rec.Monitoring)
	return s.rebuildIndexLocked()
}

// Upsert replaces the record for rec's path, appending when absent.
func (s *Store) Upsert(rec *MonitoredRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}

	encoded, err := encodeLine(rec)
	if err != nil {
		return err
	}

	replaced := false
	for i, line := range lines {
		if line.rec != nil && line.rec.Path() == rec.Path() {
			lines[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, encoded)
	}

	if err := s.writeLines(lines); err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.cache[rec.Path()] = rec
	s.cacheMu.Unlock()

	s.audit.LogStoreChange("record_upserted", rec.Path(), nil, rec.Monitoring)
	return s.rebuildIndexLocked()
}

// Remove drops the record for path. Reports whether a record was removed;
// removing an unknown path is not an error.
func (s *Store) Remove(path string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return false, err
	}

	kept := lines[:0]
	removed := false
	for _, line := range lines {
		if line.rec != nil && line.rec.Path() == path {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return false, nil
	}

	if err := s.writeLines(kept); err != nil {
		return false, err
	}

	s.cacheMu.Lock()
	delete(s.cache, path)
	s.cacheMu.Unlock()

	s.audit.LogStoreChange("record_removed", path, nil, nil)
	return true, s.rebuildIndexLocked()
}

// SetConf applies one monitoring-configuration mutation. A successful
// store write is always followed by an index rebuild; when the rebuild
// fails the overall operation reports failure even though the store is
// already updated (the returned error says so rather than hiding it).
func (s *Store) SetConf(path string, change ConfChange) error {
	if err := validateConfChange(change); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}

	var updated *MonitoredRecord
	for i, line := range lines {
		if line.rec == nil || line.rec.Path() != path {
			continue
		}

		rec := line.rec
		oldMonitoring := *rec.Monitoring
		applyConfChange(rec.Monitoring, change)

		encoded, encErr := encodeLine(rec)
		if encErr != nil {
			return encErr
		}
		lines[i] = encoded
		updated = rec

		s.audit.LogStoreChange("conf_changed", path, oldMonitoring, *rec.Monitoring)
		break
	}
	if updated == nil {
		return errors.New(ErrCodeRecordNotFound, "path is not monitored").
			WithContext("path", path)
	}

	if err := s.writeLines(lines); err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.cache[path] = updated
	s.cacheMu.Unlock()

	return s.rebuildIndexLocked()
}

// validateConfChange rejects unknown event and alert-mode tokens before
// anything touches disk.
func validateConfChange(change ConfChange) error {
	switch change.Kind {
	case ConfSetEvents:
		return validateEventTokens(change.Events)
	case ConfAddEvent, ConfRemoveEvent:
		_, err := ParseEventKind(change.Event)
		return err
	case ConfSetAlert:
		if !ValidAlertMode(change.AlertMode) {
			return errors.New(ErrCodeInvalidAlertMode, "unknown alert mode").
				WithContext("alert_mode", change.AlertMode)
		}
		return nil
	case ConfSetAll:
		if err := validateEventTokens(change.Events); err != nil {
			return err
		}
		if change.AlertMode != "" && !ValidAlertMode(change.AlertMode) {
			return errors.New(ErrCodeInvalidAlertMode, "unknown alert mode").
				WithContext("alert_mode", change.AlertMode)
		}
		return nil
	default:
		return errors.New(ErrCodeInvalidConfig, "unknown configuration change kind")
	}
}

func validateEventTokens(events []string) error {
	for _, ev := range events {
		if _, err := ParseEventKind(ev); err != nil {
			return err
		}
	}
	return nil
}

// applyConfChange mutates the monitoring block in place. Event sets stay
// in deterministic order so index rebuilds are reproducible.
func applyConfChange(m *Monitoring, change ConfChange) {
	switch change.Kind {
	case ConfSetEvents:
		m.WatchEvents = append([]string(nil), change.Events...)
	case ConfAddEvent:
		for _, ev := range m.WatchEvents {
			if ev == change.Event {
				return
			}
		}
		m.WatchEvents = append(m.WatchEvents, change.Event)
	case ConfRemoveEvent:
		kept := m.WatchEvents[:0]
		for _, ev := range m.WatchEvents {
			if ev != change.Event {
				kept = append(kept, ev)
			}
		}
		m.WatchEvents = kept
	case ConfSetAlert:
		m.AlertMode = change.AlertMode
	case ConfSetAll:
		if change.Events != nil {
			m.WatchEvents = append([]string(nil), change.Events...)
		}
		if change.AlertMode != "" {
			m.AlertMode = change.AlertMode
		}
	}
}

// ApplyEvent performs the event-driven store update after an accepted
// domain event: delete removes the record; every other kind refreshes the
// full metadata snapshot (including the content hash) while preserving the
// monitoring block. A path that vanished between detection and re-read
// keeps its last-known baseline rather than being destroyed.
func (s *Store) ApplyEvent(kind EventKind, path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}

	var refreshed *MonitoredRecord
	kept := lines[:0]
	changed := false
	for _, line := range lines {
		if line.rec == nil || line.rec.Path() != path {
			kept = append(kept, line)
			continue
		}

		if kind == EventDelete {
			changed = true
			continue
		}

		rec, refreshErr := refreshRecord(line.rec)
		if refreshErr != nil {
			// Vanished or unreadable: keep the last-known baseline.
			kept = append(kept, line)
			continue
		}
		encoded, encErr := encodeLine(rec)
		if encErr != nil {
			kept = append(kept, line)
			continue
		}
		kept = append(kept, encoded)
		refreshed = rec
		changed = true
	}
	if !changed {
		return nil
	}

	if err := s.writeLines(kept); err != nil {
		return err
	}

	s.cacheMu.Lock()
	if kind == EventDelete {
		delete(s.cache, path)
	} else if refreshed != nil {
		s.cache[path] = refreshed
	}
	s.cacheMu.Unlock()

	s.audit.LogStoreChange("baseline_"+kind.String(), path, nil, nil)
	return s.rebuildIndexLocked()
}

// refreshRecord recaptures the full metadata snapshot for a record's path,
// preserving its monitoring configuration.
func refreshRecord(old *MonitoredRecord) (*MonitoredRecord, error) {
	info, err := os.Stat(old.File.Path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeFileNotFound, "path no longer resolves").
			WithContext("path", old.File.Path)
	}
	meta, err := CaptureMetadata(old.File.Path)
	if err != nil {
		return nil, err
	}
	return &MonitoredRecord{
		File: FileIdentity{
			Name: filepath.Base(old.File.Path),
			Path: old.File.Path,
			Type: fileKind(info.Mode()),
		},
		Metadata:   meta,
		Monitoring: old.Monitoring,
	}, nil
}

// RebuildIndex re-derives the event index from current store content.
// Idempotent: two rebuilds with no intervening mutation produce
// byte-identical output.
func (s *Store) RebuildIndex() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.rebuildIndexLocked()
}

func (s *Store) rebuildIndexLocked() error {
	lines, err := s.readLines()
	if err != nil {
		return errors.Wrap(err, ErrCodeIndexRebuild, "store updated but index rebuild failed")
	}

	index := make(map[string]IndexEntry, len(lines))
	for _, line := range lines {
		if line.rec == nil {
			continue
		}
		events := line.rec.Monitoring.WatchEvents
		if events == nil {
			events = []string{}
		}
		index[line.rec.Path()] = IndexEntry{
			WatchEvents: events,
			AlertMode:   line.rec.Monitoring.AlertMode,
		}
	}

	data, err := json.MarshalIndent(index, "", "    ")
	if err != nil {
		return errors.Wrap(err, ErrCodeIndexRebuild, "store updated but index rebuild failed")
	}
	if err := atomicWriteFile(s.indexPath, data, storeFileMode); err != nil {
		return errors.Wrap(err, ErrCodeIndexRebuild, "store updated but index rebuild failed").
			WithContext("index_path", s.indexPath)
	}
	return nil
}

// atomicWriteFile writes data to a temp sibling, fsyncs, then renames over
// path. On any failure the temp file is deleted and the original is left
// untouched, so a concurrent reader never observes a half-written file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to create temp file").
			WithContext("path", tmp)
	}

	cleanup := func(cause error, msg string) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(cause, ErrCodeIOError, msg).WithContext("path", tmp)
	}

	if _, err := f.Write(data); err != nil {
		return cleanup(err, "failed to write temp file")
	}
	if err := f.Sync(); err != nil {
		return cleanup(err, "failed to sync temp file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, ErrCodeIOError, "failed to close temp file").
			WithContext("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, ErrCodeIOError, "failed to replace file").
			WithContext("path", path)
	}
	return nil
}
