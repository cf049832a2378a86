// options.go: Unified service options for Vigilo + FlashFlags
//
// Combines command-line flags, environment variables, an optional YAML
// file and built-in defaults into one Config. Precedence, highest first:
// explicit Set, command-line flags and environment, config file,
// defaults. FlashFlags resolves flags vs environment internally.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"fmt"
	"os"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
)

// OptionsManager resolves the service configuration for embedders and
// the command-line frontend.
type OptionsManager struct {
	flags *flashflags.FlagSet

	appName    string
	fileConfig *Config

	// Explicit overrides, highest precedence.
	values map[string]interface{}
}

// NewOptionsManager creates an options manager with every service flag
// registered.
func NewOptionsManager(appName string) *OptionsManager {
	om := &OptionsManager{
		flags:   flashflags.New(appName),
		appName: appName,
		values:  make(map[string]interface{}),
	}

	om.flags.String("config", "", "Path to YAML service configuration file")
	om.flags.String("store-path", DefaultStorePath, "Baseline store file")
	om.flags.String("index-path", DefaultIndexPath, "Event index file")
	om.flags.String("history-path", DefaultHistoryPath, "Alert history file")
	om.flags.StringSlice("allowed-roots", DefaultAllowedRoots, "Directory roots files may be monitored under")
	om.flags.Int("event-buffer-size", 256, "Capacity of the pending event channel")
	om.flags.Duration("dispatch-timeout", 5*time.Second, "Per-alert delivery timeout")
	om.flags.Int("retention-years", 2, "Alert history retention in years")
	om.flags.String("audit-output", "", "Audit output file (empty selects the system audit database)")
	om.flags.Bool("audit-disabled", false, "Disable the audit trail")

	om.flags.SetEnvPrefix(strings.ToUpper(appName))
	return om
}

// SetDescription sets the application description for help text.
func (om *OptionsManager) SetDescription(description string) *OptionsManager {
	om.flags.SetDescription(description)
	return om
}

// SetVersion sets the application version for help text.
func (om *OptionsManager) SetVersion(version string) *OptionsManager {
	om.flags.SetVersion(version)
	return om
}

// Parse parses command-line arguments, then loads the config file if one
// was named on the command line or in the environment.
func (om *OptionsManager) Parse(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return fmt.Errorf("help requested")
		}
	}

	if err := om.flags.Parse(args); err != nil {
		return fmt.Errorf("failed to parse command-line flags: %w", err)
	}

	if path := om.GetString("config"); path != "" {
		cfg, err := LoadConfigFile(path)
		if err != nil {
			return err
		}
		om.fileConfig = cfg
	}

	return nil
}

// ParseArgs is a convenience method that parses os.Args[1:].
func (om *OptionsManager) ParseArgs() error {
	return om.Parse(os.Args[1:])
}

// ParseArgsOrExit parses command-line arguments and exits gracefully on
// help or error.
func (om *OptionsManager) ParseArgsOrExit() {
	if err := om.ParseArgs(); err != nil {
		if err.Error() == "help requested" {
			om.PrintUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		om.PrintUsage()
		os.Exit(1)
	}
}

// Set explicitly sets a configuration value (highest precedence).
func (om *OptionsManager) Set(key string, value interface{}) {
	om.values[key] = value
}

// GetString retrieves a string configuration value.
func (om *OptionsManager) GetString(key string) string {
	if val, exists := om.values[key]; exists {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return om.flags.GetString(key)
}

// GetInt retrieves an integer configuration value.
func (om *OptionsManager) GetInt(key string) int {
	if val, exists := om.values[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
	}
	return om.flags.GetInt(key)
}

// GetBool retrieves a boolean configuration value.
func (om *OptionsManager) GetBool(key string) bool {
	if val, exists := om.values[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return om.flags.GetBool(key)
}

// GetDuration retrieves a duration configuration value.
func (om *OptionsManager) GetDuration(key string) time.Duration {
	if val, exists := om.values[key]; exists {
		if durVal, ok := val.(time.Duration); ok {
			return durVal
		}
	}
	return om.flags.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value.
func (om *OptionsManager) GetStringSlice(key string) []string {
	if val, exists := om.values[key]; exists {
		if sliceVal, ok := val.([]string); ok {
			return sliceVal
		}
	}
	return om.flags.GetStringSlice(key)
}

// PrintUsage prints help information for all flags.
func (om *OptionsManager) PrintUsage() {
	om.flags.PrintHelp()
}

// BoundFlags returns every registered flag name and its environment key.
func (om *OptionsManager) BoundFlags() map[string]string {
	result := make(map[string]string)
	om.flags.VisitAll(func(flag *flashflags.Flag) {
		result[flag.Name()] = om.flagToEnvKey(flag.Name())
	})
	return result
}

// flagToEnvKey converts "store-path" to "VIGILO_STORE_PATH".
func (om *OptionsManager) flagToEnvKey(flagName string) string {
	return strings.ToUpper(om.appName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}

// ToConfig materializes the resolved Config with all precedence applied.
func (om *OptionsManager) ToConfig() *Config {
	cfg := &Config{}
	if om.fileConfig != nil {
		*cfg = *om.fileConfig
	}

	// Command-line and environment values beat the file only where the
	// flag or its env var was actually provided.
	changed := make(map[string]bool)
	om.flags.VisitAll(func(flag *flashflags.Flag) {
		changed[flag.Name()] = flag.Changed()
	})
	override := func(name string) bool {
		_, explicit := om.values[name]
		return explicit || changed[name] || om.fileConfig == nil
	}

	if override("store-path") {
		cfg.StorePath = om.GetString("store-path")
	}
	if override("index-path") {
		cfg.IndexPath = om.GetString("index-path")
	}
	if override("history-path") {
		cfg.HistoryPath = om.GetString("history-path")
	}
	if override("allowed-roots") {
		cfg.AllowedRoots = om.GetStringSlice("allowed-roots")
	}
	if override("event-buffer-size") {
		cfg.EventBufferSize = om.GetInt("event-buffer-size")
	}
	if override("dispatch-timeout") {
		cfg.DispatchTimeout = om.GetDuration("dispatch-timeout")
	}
	if override("retention-years") {
		cfg.RetentionYears = om.GetInt("retention-years")
	}
	if override("audit-output") || override("audit-disabled") {
		cfg.Audit = DefaultAuditConfig()
		cfg.Audit.OutputFile = om.GetString("audit-output")
		cfg.Audit.Enabled = !om.GetBool("audit-disabled")
	}

	return cfg.WithDefaults()
}
