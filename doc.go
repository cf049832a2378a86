// doc.go: Package documentation for Vigilo
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package vigilo implements host-level file integrity monitoring: a
// durable baseline store of file metadata and content hashes, a
// filesystem event pipeline that diffs each notification against the
// baseline, and an alert router with a persistent report history.
//
// The unit of monitoring is an absolute file path. Registering a path
// captures its full metadata snapshot (size, mode, ownership, mtime,
// SHA-256) into an append-oriented NDJSON store, plus a compact JSON
// index mapping each path to its watched event kinds and alert mode.
// A running FileWatcher turns raw filesystem notifications into typed
// domain events, drops everything not explicitly requested, and for
// each accepted event produces a field-level change report that is
// appended to history, dispatched as an alert and folded back into the
// baseline.
//
// Basic usage:
//
//	store := vigilo.NewStore(storePath, indexPath)
//	if err := store.Initialize(); err != nil { ... }
//
//	rec, err := vigilo.CaptureRecord("/var/log/auth.log",
//		[]string{"modify", "delete"}, vigilo.AlertModeLog)
//	if err != nil { ... }
//	if err := store.Register(rec); err != nil { ... }
//
//	w, err := vigilo.NewFileWatcher(vigilo.Config{StorePath: storePath})
//	if err != nil { ... }
//	if err := w.Start(); err != nil { ... }
//	defer w.Stop()
//
// All store mutations are serialized and written atomically; a crash
// mid-write never corrupts the previous baseline. Every mutation is
// recorded in a tamper-evident audit trail.
package vigilo
