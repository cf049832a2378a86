// validate.go: Path validation boundary
//
// Every path accepted into monitoring is canonicalized to an absolute form
// and checked against an operator-supplied allow-list of root directories
// and a fixed deny-list of sensitive system paths. Rejection happens before
// any baseline is captured.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
)

// DefaultAllowedRoots is the out-of-the-box allow-list of directories
// whose contents may be placed under surveillance.
var DefaultAllowedRoots = []string{"/home", "/var/log", "/opt", "/srv", "/tmp"}

// deniedPrefixes are sensitive system paths never accepted for monitoring,
// regardless of the allow-list.
var deniedPrefixes = []string{
	"/etc/shadow",
	"/etc/passwd",
	"/root/.ssh",
	"/proc",
	"/sys",
	"/dev",
}

// maxPathLength guards against pathological inputs.
const maxPathLength = 4096

// CanonicalPath normalizes a notified or operator-supplied path to its
// absolute, cleaned form. This is the identity key used everywhere.
func CanonicalPath(path string) (string, error) {
	if path == "" {
		return "", errors.New(ErrCodeInvalidPath, "empty path not allowed")
	}
	if strings.Contains(path, "\x00") {
		return "", errors.New(ErrCodeInvalidPath, "null byte in path not allowed")
	}
	if len(path) > maxPathLength {
		return "", errors.New(ErrCodeInvalidPath, "path too long").
			WithContext("length", len(path))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeInvalidPath, "cannot resolve absolute path").
			WithContext("path", path)
	}
	return filepath.Clean(abs), nil
}

// ValidatePath canonicalizes path and enforces the allow/deny policy.
// allowedRoots may be nil to accept any location outside the deny-list.
func ValidatePath(path string, allowedRoots []string) (string, error) {
	abs, err := CanonicalPath(path)
	if err != nil {
		return "", err
	}

	for _, denied := range deniedPrefixes {
		if abs == denied || strings.HasPrefix(abs, denied+"/") {
			return "", errors.New(ErrCodeInvalidPath, "access to sensitive system path not allowed").
				WithContext("path", abs).
				WithContext("denied_prefix", denied)
		}
	}

	if len(allowedRoots) > 0 {
		allowed := false
		for _, root := range allowedRoots {
			root = filepath.Clean(root)
			if abs == root || strings.HasPrefix(abs, root+"/") {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", errors.New(ErrCodeInvalidPath, "path outside allowed directories").
				WithContext("path", abs).
				WithContext("allowed_roots", strings.Join(allowedRoots, ":"))
		}
	}

	return abs, nil
}
