// config.go: Engine configuration, service file and environment loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// Default artifact locations, matching the layout this engine has always
// used on single-node deployments.
const (
	DefaultStorePath   = "/opt/vigilo/file_info.json"
	DefaultIndexPath   = "/opt/vigilo/file_event.json"
	DefaultHistoryPath = "/opt/vigilo/alert_history.json"
)

// ErrorHandler is called for errors absorbed inside the autonomous event
// loop. If nil they are only audited.
type ErrorHandler func(err error, path string)

// yamlDuration accepts Go duration strings ("5s") as well as bare
// nanosecond integers in YAML configuration files.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = yamlDuration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = yamlDuration(n)
	return nil
}

// Config configures the Vigilo engine.
type Config struct {
	// StorePath is the newline-delimited baseline database.
	StorePath string `yaml:"store_path" json:"store_path"`

	// IndexPath is the derived event index artifact.
	IndexPath string `yaml:"index_path" json:"index_path"`

	// HistoryPath is the alert history log.
	HistoryPath string `yaml:"history_path" json:"history_path"`

	// AllowedRoots restricts which directories may be monitored.
	// Default: /home, /var/log, /opt, /srv, /tmp.
	AllowedRoots []string `yaml:"allowed_roots" json:"allowed_roots"`

	// EventBufferSize bounds the channel between the notification backend
	// and the serializing consumer. Default: 256.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`

	// DispatchTimeout bounds every alert transport call. Default: 5s.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" json:"dispatch_timeout"`

	// RetentionYears is the history pruning window. Default: 2.
	RetentionYears int `yaml:"retention_years" json:"retention_years"`

	// Audit configures the internal audit trail.
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// ErrorHandler receives errors absorbed by the dispatch loop.
	ErrorHandler ErrorHandler `yaml:"-" json:"-"`
}

// UnmarshalYAML decodes the service file, accepting human-readable
// duration strings for timeout fields.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		StorePath       string       `yaml:"store_path"`
		IndexPath       string       `yaml:"index_path"`
		HistoryPath     string       `yaml:"history_path"`
		AllowedRoots    []string     `yaml:"allowed_roots"`
		EventBufferSize int          `yaml:"event_buffer_size"`
		DispatchTimeout yamlDuration `yaml:"dispatch_timeout"`
		RetentionYears  int          `yaml:"retention_years"`
		Audit           AuditConfig  `yaml:"audit"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.StorePath = raw.StorePath
	c.IndexPath = raw.IndexPath
	c.HistoryPath = raw.HistoryPath
	c.AllowedRoots = raw.AllowedRoots
	c.EventBufferSize = raw.EventBufferSize
	c.DispatchTimeout = time.Duration(raw.DispatchTimeout)
	c.RetentionYears = raw.RetentionYears
	c.Audit = raw.Audit
	return nil
}

// WithDefaults applies sensible defaults to the configuration.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.StorePath == "" {
		config.StorePath = DefaultStorePath
	}
	if config.IndexPath == "" {
		config.IndexPath = DefaultIndexPath
	}
	if config.HistoryPath == "" {
		config.HistoryPath = DefaultHistoryPath
	}
	if len(config.AllowedRoots) == 0 {
		config.AllowedRoots = append([]string(nil), DefaultAllowedRoots...)
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 256
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 5 * time.Second
	}
	if config.RetentionYears <= 0 {
		config.RetentionYears = 2
	}
	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}

	return &config
}

// LoadConfigFile reads a YAML (or JSON, which YAML subsumes) service
// configuration file and applies defaults for anything unset.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot read configuration file").
			WithContext("path", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "malformed configuration file").
			WithContext("path", path)
	}
	return config.WithDefaults(), nil
}

// Environment variable names for container deployments.
const (
	envStorePath       = "VIGILO_STORE_PATH"
	envIndexPath       = "VIGILO_INDEX_PATH"
	envHistoryPath     = "VIGILO_HISTORY_PATH"
	envAllowedRoots    = "VIGILO_ALLOWED_ROOTS"
	envEventBufferSize = "VIGILO_EVENT_BUFFER_SIZE"
	envDispatchTimeout = "VIGILO_DISPATCH_TIMEOUT"
	envRetentionYears  = "VIGILO_RETENTION_YEARS"
	envAuditEnabled    = "VIGILO_AUDIT_ENABLED"
	envAuditOutputFile = "VIGILO_AUDIT_OUTPUT_FILE"
	envAuditMinLevel   = "VIGILO_AUDIT_MIN_LEVEL"
)

// LoadConfigFromEnv builds a configuration from VIGILO_* environment
// variables, applying defaults for anything unset.
func LoadConfigFromEnv() (*Config, error) {
	config := &Config{}

	config.StorePath = os.Getenv(envStorePath)
	config.IndexPath = os.Getenv(envIndexPath)
	config.HistoryPath = os.Getenv(envHistoryPath)

	if roots := os.Getenv(envAllowedRoots); roots != "" {
		config.AllowedRoots = strings.Split(roots, ":")
	}

	if v := os.Getenv(envEventBufferSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid event buffer size").
				WithContext(envEventBufferSize, v)
		}
		config.EventBufferSize = size
	}

	if v := os.Getenv(envDispatchTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid dispatch timeout").
				WithContext(envDispatchTimeout, v)
		}
		config.DispatchTimeout = d
	}

	if v := os.Getenv(envRetentionYears); v != "" {
		years, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid retention years").
				WithContext(envRetentionYears, v)
		}
		config.RetentionYears = years
	}

	// Audit overrides start from the full defaults so an explicit
	// VIGILO_AUDIT_ENABLED=false survives WithDefaults.
	config.Audit = DefaultAuditConfig()
	if v := os.Getenv(envAuditEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidAudit, "invalid audit enabled flag").
				WithContext(envAuditEnabled, v)
		}
		config.Audit.Enabled = enabled
	}
	if v := os.Getenv(envAuditOutputFile); v != "" {
		config.Audit.OutputFile = v
	}
	if v := os.Getenv(envAuditMinLevel); v != "" {
		level, err := ParseAuditLevel(v)
		if err != nil {
			return nil, err
		}
		config.Audit.MinLevel = level
	}

	return config.WithDefaults(), nil
}
