// audit.go: Internal audit trail for the Vigilo engine
//
// Every store mutation, watcher lifecycle transition and security-relevant
// rejection is recorded here, separately from the operator-facing alert
// history. Events are buffered and flushed in the background; each carries
// a tamper-detection checksum.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"go.yaml.in/yaml/v3"
)

// AuditLevel represents the severity of audit events.
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel maps a level name back to its AuditLevel.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch s {
	case "INFO", "info":
		return AuditInfo, nil
	case "WARN", "warn":
		return AuditWarn, nil
	case "CRITICAL", "critical":
		return AuditCritical, nil
	case "SECURITY", "security":
		return AuditSecurity, nil
	default:
		return 0, errors.New(ErrCodeInvalidAudit, "unknown audit level").
			WithContext("level", s)
	}
}

// AuditEvent represents a single auditable event.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	FilePath    string                 `json:"file_path,omitempty"`
	OldValue    interface{}            `json:"old_value,omitempty"`
	NewValue    interface{}            `json:"new_value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"` // For tamper detection
}

// AuditConfig configures the audit system.
type AuditConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	OutputFile    string        `json:"output_file" yaml:"output_file"`
	MinLevel      AuditLevel    `json:"min_level" yaml:"min_level"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// UnmarshalYAML accepts level names for min_level and duration strings
// for flush_interval.
func (c *AuditConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawAuditConfig struct {
		Enabled       bool         `yaml:"enabled"`
		OutputFile    string       `yaml:"output_file"`
		MinLevel      string       `yaml:"min_level"`
		BufferSize    int          `yaml:"buffer_size"`
		FlushInterval yamlDuration `yaml:"flush_interval"`
	}

	var raw rawAuditConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Enabled = raw.Enabled
	c.OutputFile = raw.OutputFile
	c.BufferSize = raw.BufferSize
	c.FlushInterval = time.Duration(raw.FlushInterval)
	if raw.MinLevel != "" {
		level, err := ParseAuditLevel(raw.MinLevel)
		if err != nil {
			return err
		}
		c.MinLevel = level
	}
	return nil
}

// DefaultAuditConfig returns secure defaults with unified SQLite storage.
// An empty OutputFile selects the system-wide audit database; specify a
// .jsonl path for the newline-delimited format instead.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger provides buffered audit logging with pluggable backends.
// All methods are safe on a nil receiver so callers never have to guard
// the optional integration.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger with automatic backend selection:
// SQLite unified storage when available, JSONL otherwise.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	if !config.Enabled {
		// A disabled trail never touches storage.
		return &AuditLogger{config: config, stopCh: make(chan struct{})}, nil
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidAudit, "failed to initialize audit backend")
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: "vigilo",
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records an audit event.
func (al *AuditLogger) Log(level AuditLevel, event, filePath string, oldVal, newVal interface{}, context map[string]interface{}) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   "vigilo",
		FilePath:    filePath,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // keep the hot path non-fatal
	}
	al.bufferMu.Unlock()
}

// LogStoreChange records a baseline store mutation.
func (al *AuditLogger) LogStoreChange(event, filePath string, oldVal, newVal interface{}) {
	al.Log(AuditCritical, event, filePath, oldVal, newVal, nil)
}

// LogFileWatch records watcher lifecycle and pipeline events.
func (al *AuditLogger) LogFileWatch(event, filePath string) {
	al.Log(AuditInfo, event, filePath, nil, nil, nil)
}

// LogSecurityEvent records security-relevant rejections and failures.
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]interface{}) {
	if context == nil {
		context = map[string]interface{}{}
	}
	context["details"] = details
	al.Log(AuditSecurity, event, "", nil, nil, context)
}

// Flush immediately writes all buffered events.
func (al *AuditLogger) Flush() error {
	if al == nil {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Close gracefully shuts down the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	close(al.stopCh)
	if al.flushTicker != nil {
		al.flushTicker.Stop()
	}

	if err := al.Flush(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to flush audit logger during close")
	}
	if al.backend != nil {
		if err := al.backend.Close(); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "failed to close audit backend")
		}
	}
	return nil
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend; caller holds bufferMu.
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 || al.backend == nil {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to write audit events to backend")
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256.
func generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.OldValue, event.NewValue)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
