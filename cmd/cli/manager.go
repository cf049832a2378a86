// Package cli provides the command-line interface for Vigilo file
// integrity monitoring.
//
// Built on the Orpheus framework with git-style subcommands. The CLI
// manipulates the same baseline store and alert history as the
// monitoring service, so registrations made here are picked up by a
// running watcher on its next reload.
//
// Architecture:
// - Manager: command routing and shared service configuration
// - Handlers: individual command implementations
// - Utils: shared store access and output formatting
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/vigilo"
)

// Manager provides CLI operations over the Vigilo baseline store,
// alert history and monitoring service.
type Manager struct {
	app         *orpheus.App
	config      *vigilo.Config
	auditLogger *vigilo.AuditLogger
}

// NewManager creates the CLI manager. Service configuration is resolved
// from VIGILO_* environment variables with built-in defaults; the start
// command can additionally load a YAML file.
func NewManager() *Manager {
	app := orpheus.New("vigilo").
		SetDescription("File integrity monitoring with baseline diffing and alerting").
		SetVersion("1.0.0")

	config, err := vigilo.LoadConfigFromEnv()
	if err != nil {
		// A malformed environment must not brick the CLI; fall back to
		// defaults and let individual commands surface the problem.
		config = (&vigilo.Config{}).WithDefaults()
	}

	manager := &Manager{
		app:    app,
		config: config,
	}

	manager.setupFileCommands()
	manager.setupConfCommands()
	manager.setupHistoryCommands()
	manager.setupServiceCommands()

	return manager
}

// WithAudit enables audit logging for all CLI operations.
func (m *Manager) WithAudit(auditLogger *vigilo.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// Run executes the CLI application with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupFileCommands configures baseline registration and inspection.
func (m *Manager) setupFileCommands() {
	// add <path>... [-a|-m|-d|-v|-p] [--preset=] [--alert=log]
	addCmd := orpheus.NewCommand("add", "Register files for monitoring")
	addCmd.SetHandler(m.handleAdd)
	addCmd.AddBoolFlag("add", "a", false, "Watch file creation events")
	addCmd.AddBoolFlag("modify", "m", false, "Watch content modification events")
	addCmd.AddBoolFlag("delete", "d", false, "Watch deletion events")
	addCmd.AddBoolFlag("move", "v", false, "Watch move and rename events")
	addCmd.AddBoolFlag("permissions", "p", false, "Watch permission change events")
	addCmd.AddFlag("preset", "", "", "Event preset (full|default)")
	addCmd.AddFlag("alert", "", vigilo.AlertModeLog, "Alert mode (system|log|email|remote|silent)")
	m.app.AddCommand(addCmd)

	// remove <path>...
	removeCmd := orpheus.NewCommand("remove", "Stop monitoring files")
	removeCmd.SetHandler(m.handleRemove)
	m.app.AddCommand(removeCmd)

	// list
	listCmd := orpheus.NewCommand("list", "List all monitored files")
	listCmd.SetHandler(m.handleList)
	m.app.AddCommand(listCmd)

	// info <path>
	infoCmd := orpheus.NewCommand("info", "Show the stored baseline for a file")
	infoCmd.SetHandler(m.handleInfo)
	m.app.AddCommand(infoCmd)
}

// setupConfCommands configures monitoring-configuration mutations.
func (m *Manager) setupConfCommands() {
	eventsCmd := orpheus.NewCommand("events", "Manage watched event kinds for a file")
	eventsCmd.Subcommand("add", "Add event kinds to a file's watch set", m.handleEventsAdd)
	eventsCmd.Subcommand("remove", "Remove event kinds from a file's watch set", m.handleEventsRemove)
	eventsCmd.Subcommand("set", "Replace a file's watch set", m.handleEventsSet)
	m.app.AddCommand(eventsCmd)

	alertCmd := orpheus.NewCommand("alert", "Manage alert delivery")

	setCmd := alertCmd.Subcommand("set", "Set a file's alert mode", m.handleAlertSet)
	setCmd.AddFlag("method", "", "", "Alert mode (system|log|email|remote|silent)")

	testCmd := alertCmd.Subcommand("test", "Send a test alert through a delivery channel", m.handleAlertTest)
	testCmd.AddFlag("method", "", vigilo.AlertModeLog, "Alert mode to exercise")

	alertCmd.Subcommand("modes", "List alert modes usable on this host", m.handleAlertModes)
	m.app.AddCommand(alertCmd)

	indexCmd := orpheus.NewCommand("index", "Event index maintenance")
	indexCmd.Subcommand("rebuild", "Rebuild the event index from the baseline store", m.handleIndexRebuild)
	m.app.AddCommand(indexCmd)
}

// setupHistoryCommands configures alert history inspection and pruning.
func (m *Manager) setupHistoryCommands() {
	historyCmd := orpheus.NewCommand("history", "Alert history operations")

	showCmd := historyCmd.Subcommand("show", "Show recorded alert reports", m.handleHistoryShow)
	showCmd.AddIntFlag("limit", "l", 0, "Maximum reports to show, newest last (0 = all)")
	showCmd.AddFlag("file", "f", "", "Only reports for this file path")

	pruneCmd := historyCmd.Subcommand("prune", "Delete reports older than the retention window", m.handleHistoryPrune)
	pruneCmd.AddIntFlag("years", "y", 0, "Retention in years (0 = configured default)")

	m.app.AddCommand(historyCmd)
}

// setupServiceCommands configures the long-running monitoring service.
func (m *Manager) setupServiceCommands() {
	startCmd := orpheus.NewCommand("start", "Run the monitoring service in the foreground")
	startCmd.SetHandler(m.handleStart)
	startCmd.AddFlag("config", "c", "", "YAML service configuration file")
	m.app.AddCommand(startCmd)
}
