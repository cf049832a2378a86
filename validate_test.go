// validate_test.go: Path validation boundary tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	t.Run("CleansTraversal", func(t *testing.T) {
		got, err := CanonicalPath("/tmp/a/../b/./c.txt")
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		if got != "/tmp/b/c.txt" {
			t.Errorf("Expected /tmp/b/c.txt, got %s", got)
		}
	})

	t.Run("RejectsEmpty", func(t *testing.T) {
		if _, err := CanonicalPath(""); err == nil {
			t.Error("Expected empty path to be rejected")
		}
	})

	t.Run("RejectsNullByte", func(t *testing.T) {
		if _, err := CanonicalPath("/tmp/evil\x00.txt"); err == nil {
			t.Error("Expected null byte to be rejected")
		}
	})

	t.Run("RejectsOverlongPath", func(t *testing.T) {
		long := "/tmp/" + strings.Repeat("a", maxPathLength)
		if _, err := CanonicalPath(long); err == nil {
			t.Error("Expected overlong path to be rejected")
		}
	})
}

func TestValidatePath(t *testing.T) {
	roots := []string{"/tmp", "/var/log"}

	t.Run("AcceptsAllowedRoot", func(t *testing.T) {
		got, err := ValidatePath("/var/log/auth.log", roots)
		if err != nil {
			t.Fatalf("ValidatePath failed: %v", err)
		}
		if got != "/var/log/auth.log" {
			t.Errorf("Unexpected canonical path %s", got)
		}
	})

	t.Run("RejectsOutsideRoots", func(t *testing.T) {
		if _, err := ValidatePath("/usr/bin/true", roots); err == nil {
			t.Error("Expected path outside allowed roots to be rejected")
		}
	})

	t.Run("TraversalCannotEscape", func(t *testing.T) {
		if _, err := ValidatePath("/tmp/../usr/bin/true", roots); err == nil {
			t.Error("Expected traversal escape to be rejected")
		}
	})

	t.Run("DeniedPrefixBeatsAllowedRoot", func(t *testing.T) {
		wide := append([]string{"/etc", "/proc"}, roots...)
		for _, p := range []string{"/etc/shadow", "/proc/1/mem", "/etc/passwd"} {
			if _, err := ValidatePath(p, wide); err == nil {
				t.Errorf("Expected %s to be denied", p)
			}
		}
	})

	t.Run("DefaultRoots", func(t *testing.T) {
		if _, err := ValidatePath("/tmp/watched.txt", DefaultAllowedRoots); err != nil {
			t.Errorf("Expected /tmp to be inside the default roots: %v", err)
		}
	})
}
