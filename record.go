// record.go: Monitored file records and baseline metadata capture
//
// A MonitoredRecord is one line of the baseline store: identity, the last
// trusted metadata snapshot, and the operator's monitoring configuration.
// Metadata capture streams file content through SHA-256 in small chunks so
// memory stays bounded regardless of file size, and tolerates the file
// vanishing mid-read.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// File kinds recorded in the baseline store.
const (
	KindFile      = "file"
	KindDirectory = "directory"
	KindOther     = "other"
)

// checksumChunkSize bounds memory use while hashing arbitrarily large files.
const checksumChunkSize = 4096

// FileIdentity identifies the filesystem object under surveillance.
type FileIdentity struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// Metadata is the trusted snapshot compared by the diff engine.
// Checksum is nil for directories and special files.
type Metadata struct {
	Size         int64   `json:"size"`
	Permissions  string  `json:"permissions"`
	Owner        string  `json:"owner"`
	Group        string  `json:"group"`
	LastModified string  `json:"last_modified"`
	Checksum     *string `json:"checksum"`
}

// Monitoring holds the operator's watch configuration for one path.
type Monitoring struct {
	WatchEvents []string `json:"watch_events"`
	AlertMode   string   `json:"alert_mode"`
	AddedOn     string   `json:"added_on"`
}

// MonitoredRecord is one entry of the baseline store, keyed by absolute path.
type MonitoredRecord struct {
	File       FileIdentity `json:"file"`
	Metadata   *Metadata    `json:"metadata"`
	Monitoring *Monitoring  `json:"monitoring"`
}

// Path returns the record's identity key.
func (r *MonitoredRecord) Path() string {
	return r.File.Path
}

// Validate rejects structurally invalid records before they reach disk.
// A record carrying monitoring config without metadata (or vice versa)
// would poison every later diff, so it never gets written.
func (r *MonitoredRecord) Validate() error {
	if r.File.Path == "" || !filepath.IsAbs(r.File.Path) {
		return errors.New(ErrCodeInvalidRecord, "record path must be absolute").
			WithContext("path", r.File.Path)
	}
	if r.Metadata == nil {
		return errors.New(ErrCodeInvalidRecord, "record has no metadata snapshot").
			WithContext("path", r.File.Path)
	}
	if r.Monitoring == nil {
		return errors.New(ErrCodeInvalidRecord, "record has no monitoring configuration").
			WithContext("path", r.File.Path)
	}
	for _, ev := range r.Monitoring.WatchEvents {
		if _, err := ParseEventKind(ev); err != nil {
			return errors.Wrap(err, ErrCodeInvalidRecord, "record has unknown watch event").
				WithContext("path", r.File.Path).
				WithContext("event", ev)
		}
	}
	if !ValidAlertMode(r.Monitoring.AlertMode) {
		return errors.New(ErrCodeInvalidRecord, "record has unknown alert mode").
			WithContext("path", r.File.Path).
			WithContext("alert_mode", r.Monitoring.AlertMode)
	}
	return nil
}

// fileKind classifies the filesystem object the way the store records it.
func fileKind(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDirectory
	default:
		return KindOther
	}
}

// ComputeChecksum returns the SHA-256 hex digest of a regular file's content,
// streaming in fixed-size chunks. A vanished or unreadable file yields nil,
// not an error: "no hash available" is an expected condition during races
// between event detection and re-read.
func ComputeChecksum(path string) *string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil
	}

	sum := fmt.Sprintf("%x", h.Sum(nil))
	return &sum
}

// CaptureMetadata collects the current metadata snapshot for path.
// Returns a coded VIGILO_FILE_NOT_FOUND error when path does not resolve,
// so callers can distinguish a vanished file from real I/O failures.
func CaptureMetadata(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, ErrCodeFileNotFound, "monitored path does not exist").
				WithContext("path", path)
		}
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to stat monitored path").
			WithContext("path", path)
	}

	meta := &Metadata{
		Size:         info.Size(),
		Permissions:  info.Mode().String(),
		LastModified: info.ModTime().Format(time.RFC3339Nano),
	}
	meta.Owner, meta.Group = ownership(info)

	if info.Mode().IsRegular() {
		meta.Checksum = ComputeChecksum(path)
	}

	return meta, nil
}

// CaptureRecord builds a full baseline record for path with the given
// monitoring configuration. The added-on timestamp is stamped here.
func CaptureRecord(path string, watchEvents []string, alertMode string) (*MonitoredRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, ErrCodeFileNotFound, "cannot baseline missing path").
				WithContext("path", path)
		}
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to stat path for baseline").
			WithContext("path", path)
	}

	meta, err := CaptureMetadata(path)
	if err != nil {
		return nil, err
	}

	return &MonitoredRecord{
		File: FileIdentity{
			Name: filepath.Base(path),
			Path: path,
			Type: fileKind(info.Mode()),
		},
		Metadata: meta,
		Monitoring: &Monitoring{
			WatchEvents: watchEvents,
			AlertMode:   alertMode,
			AddedOn:     timecache.CachedTime().Format(time.RFC3339Nano),
		},
	}, nil
}

// ownership resolves numeric uid/gid to names, falling back to the raw
// numbers when the accounts no longer exist.
func ownership(info fs.FileInfo) (owner, group string) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "unknown", "unknown"
	}

	uid := strconv.FormatUint(uint64(st.Uid), 10)
	gid := strconv.FormatUint(uint64(st.Gid), 10)

	owner, group = uid, gid
	if u, err := user.LookupId(uid); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(gid); err == nil {
		group = g.Name
	}
	return owner, group
}
