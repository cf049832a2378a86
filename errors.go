// errors.go: Error codes for Vigilo operations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import "github.com/agilira/go-errors"

// Error codes for Vigilo operations
const (
	ErrCodeInvalidConfig    = "VIGILO_INVALID_CONFIG"
	ErrCodeInvalidPath      = "VIGILO_INVALID_PATH"
	ErrCodeInvalidRecord    = "VIGILO_INVALID_RECORD"
	ErrCodeInvalidEvent     = "VIGILO_INVALID_EVENT"
	ErrCodeInvalidAlertMode = "VIGILO_INVALID_ALERT_MODE"
	ErrCodeDuplicateRecord  = "VIGILO_DUPLICATE_RECORD"
	ErrCodeRecordNotFound   = "VIGILO_RECORD_NOT_FOUND"
	ErrCodeFileNotFound     = "VIGILO_FILE_NOT_FOUND"
	ErrCodeIOError          = "VIGILO_IO_ERROR"
	ErrCodeIndexRebuild     = "VIGILO_INDEX_REBUILD_FAILED"
	ErrCodeWatcherBusy      = "VIGILO_WATCHER_BUSY"
	ErrCodeWatcherStopped   = "VIGILO_WATCHER_STOPPED"
	ErrCodeInvalidAudit     = "VIGILO_INVALID_AUDIT_CONFIG"
)

// hasErrorCode reports whether err carries the given code.
func hasErrorCode(err error, code string) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == code
}
