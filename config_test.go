// config_test.go: Service configuration tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	config := (&Config{}).WithDefaults()

	if config.StorePath != DefaultStorePath {
		t.Errorf("Expected %s, got %s", DefaultStorePath, config.StorePath)
	}
	if config.IndexPath != DefaultIndexPath {
		t.Errorf("Expected %s, got %s", DefaultIndexPath, config.IndexPath)
	}
	if config.HistoryPath != DefaultHistoryPath {
		t.Errorf("Expected %s, got %s", DefaultHistoryPath, config.HistoryPath)
	}
	if len(config.AllowedRoots) == 0 {
		t.Error("Default allowed roots not applied")
	}
	if config.EventBufferSize != 256 {
		t.Errorf("Expected buffer size 256, got %d", config.EventBufferSize)
	}
	if config.DispatchTimeout != 5*time.Second {
		t.Errorf("Expected 5s dispatch timeout, got %v", config.DispatchTimeout)
	}
	if config.RetentionYears != 2 {
		t.Errorf("Expected 2 retention years, got %d", config.RetentionYears)
	}
	if !config.Audit.Enabled {
		t.Error("Audit not enabled by default")
	}

	t.Run("ExplicitValuesPreserved", func(t *testing.T) {
		config := (&Config{
			StorePath:       "/tmp/custom.json",
			EventBufferSize: 16,
			RetentionYears:  7,
		}).WithDefaults()
		if config.StorePath != "/tmp/custom.json" {
			t.Error("Explicit store path overwritten")
		}
		if config.EventBufferSize != 16 || config.RetentionYears != 7 {
			t.Error("Explicit numeric values overwritten")
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigilo.yaml")

	yaml := `
store_path: /tmp/vigilo/file_info.json
history_path: /tmp/vigilo/alert_history.json
allowed_roots:
  - /tmp
  - /srv
event_buffer_size: 64
dispatch_timeout: 3s
retention_years: 1
audit:
  enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	config, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if config.StorePath != "/tmp/vigilo/file_info.json" {
		t.Errorf("Unexpected store path %s", config.StorePath)
	}
	if len(config.AllowedRoots) != 2 {
		t.Errorf("Expected 2 allowed roots, got %v", config.AllowedRoots)
	}
	if config.EventBufferSize != 64 {
		t.Errorf("Expected buffer 64, got %d", config.EventBufferSize)
	}
	if config.DispatchTimeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, got %v", config.DispatchTimeout)
	}

	t.Run("DefaultsFillGaps", func(t *testing.T) {
		if config.IndexPath != DefaultIndexPath {
			t.Errorf("Index path default not applied: %s", config.IndexPath)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(dir, "absent.yaml"))
		if err == nil || !hasErrorCode(err, ErrCodeIOError) {
			t.Errorf("Expected %s, got %v", ErrCodeIOError, err)
		}
	})

	t.Run("MalformedFile", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(bad, []byte("store_path: [unclosed"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		_, err := LoadConfigFile(bad)
		if err == nil || !hasErrorCode(err, ErrCodeInvalidConfig) {
			t.Errorf("Expected %s, got %v", ErrCodeInvalidConfig, err)
		}
	})
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("VIGILO_STORE_PATH", "/tmp/env/file_info.json")
	t.Setenv("VIGILO_ALLOWED_ROOTS", "/tmp:/srv")
	t.Setenv("VIGILO_EVENT_BUFFER_SIZE", "128")
	t.Setenv("VIGILO_DISPATCH_TIMEOUT", "2s")
	t.Setenv("VIGILO_RETENTION_YEARS", "3")

	config, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}

	if config.StorePath != "/tmp/env/file_info.json" {
		t.Errorf("Unexpected store path %s", config.StorePath)
	}
	if len(config.AllowedRoots) != 2 || config.AllowedRoots[1] != "/srv" {
		t.Errorf("Allowed roots not split on colon: %v", config.AllowedRoots)
	}
	if config.EventBufferSize != 128 || config.RetentionYears != 3 {
		t.Errorf("Numeric environment values not applied: %d %d",
			config.EventBufferSize, config.RetentionYears)
	}
	if config.DispatchTimeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %v", config.DispatchTimeout)
	}

	t.Run("InvalidNumberRejected", func(t *testing.T) {
		t.Setenv("VIGILO_EVENT_BUFFER_SIZE", "many")
		_, err := LoadConfigFromEnv()
		if err == nil || !hasErrorCode(err, ErrCodeInvalidConfig) {
			t.Errorf("Expected %s, got %v", ErrCodeInvalidConfig, err)
		}
	})

	t.Run("AuditDisableSurvivesDefaults", func(t *testing.T) {
		t.Setenv("VIGILO_EVENT_BUFFER_SIZE", "128")
		t.Setenv("VIGILO_AUDIT_ENABLED", "false")
		config, err := LoadConfigFromEnv()
		if err != nil {
			t.Fatalf("LoadConfigFromEnv failed: %v", err)
		}
		if config.Audit.Enabled {
			t.Error("VIGILO_AUDIT_ENABLED=false did not disable audit")
		}
	})

	t.Run("InvalidDurationRejected", func(t *testing.T) {
		t.Setenv("VIGILO_EVENT_BUFFER_SIZE", "128")
		t.Setenv("VIGILO_DISPATCH_TIMEOUT", "soon")
		_, err := LoadConfigFromEnv()
		if err == nil || !hasErrorCode(err, ErrCodeInvalidConfig) {
			t.Errorf("Expected %s, got %v", ErrCodeInvalidConfig, err)
		}
	})
}
