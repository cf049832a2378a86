// Command handlers for the Vigilo CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/vigilo"
)

// handleAdd registers one or more files for monitoring. Each path is
// validated against the allowed roots before its baseline is captured.
func (m *Manager) handleAdd(ctx *orpheus.Context) error {
	paths := collectArgs(ctx, "preset", "alert")
	if len(paths) == 0 {
		return errors.New(vigilo.ErrCodeInvalidPath, "at least one file path is required")
	}

	events, err := watchEventsFromFlags(ctx)
	if err != nil {
		return err
	}

	alertMode := ctx.GetFlagString("alert")
	if !vigilo.ValidAlertMode(alertMode) {
		return errors.New(vigilo.ErrCodeInvalidAlertMode,
			fmt.Sprintf("unknown alert mode %q (valid: %s)", alertMode, strings.Join(vigilo.AlertModes(), ", ")))
	}

	store, err := m.openStore()
	if err != nil {
		return err
	}

	var failed []string
	for _, path := range paths {
		canonical, err := vigilo.ValidatePath(path, m.config.AllowedRoots)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}

		rec, err := vigilo.CaptureRecord(canonical, events, alertMode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}

		if err := store.Register(rec); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}

		if m.auditLogger != nil {
			m.auditLogger.LogFileWatch("cli_add", canonical)
		}
		fmt.Printf("Monitoring %s (events: %s, alert: %s)\n",
			canonical, strings.Join(events, ","), alertMode)
	}

	if len(failed) > 0 {
		return errors.New(vigilo.ErrCodeInvalidRecord,
			fmt.Sprintf("%d of %d files were not registered", len(failed), len(paths)))
	}
	return nil
}

// handleRemove stops monitoring one or more files.
func (m *Manager) handleRemove(ctx *orpheus.Context) error {
	paths := collectArgs(ctx)
	if len(paths) == 0 {
		return errors.New(vigilo.ErrCodeInvalidPath, "at least one file path is required")
	}

	store, err := m.openStore()
	if err != nil {
		return err
	}

	for _, path := range paths {
		canonical, err := vigilo.CanonicalPath(path)
		if err != nil {
			return err
		}

		removed, err := store.Remove(canonical)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("%s was not monitored\n", canonical)
			continue
		}

		if m.auditLogger != nil {
			m.auditLogger.LogFileWatch("cli_remove", canonical)
		}
		fmt.Printf("Stopped monitoring %s\n", canonical)
	}
	return nil
}

// handleList prints every monitored file with its watch configuration.
func (m *Manager) handleList(ctx *orpheus.Context) error {
	store, err := m.openStore()
	if err != nil {
		return err
	}

	records := store.Load()
	if len(records) == 0 {
		fmt.Println("No files are being monitored")
		return nil
	}

	fmt.Printf("Monitored files (%d):\n", len(records))
	for _, rec := range records {
		fmt.Printf("  %s\n", formatRecordLine(rec))
	}
	return nil
}

// handleInfo prints the full stored baseline for one file.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return errors.New(vigilo.ErrCodeInvalidPath, "file path is required")
	}

	canonical, err := vigilo.CanonicalPath(path)
	if err != nil {
		return err
	}

	store, err := m.openStore()
	if err != nil {
		return err
	}

	rec, ok := store.Get(canonical)
	if !ok {
		return errors.New(vigilo.ErrCodeRecordNotFound,
			fmt.Sprintf("%s is not monitored", canonical))
	}

	printRecord(rec)
	return nil
}

// handleEventsAdd appends event kinds to a file's watch set.
func (m *Manager) handleEventsAdd(ctx *orpheus.Context) error {
	return m.mutateEvents(ctx, func(store *vigilo.Store, path string, events []string) error {
		for _, event := range events {
			change := vigilo.ConfChange{Kind: vigilo.ConfAddEvent, Event: event}
			if err := store.SetConf(path, change); err != nil {
				return err
			}
		}
		fmt.Printf("Added events %s to %s\n", strings.Join(events, ","), path)
		return nil
	})
}

// handleEventsRemove removes event kinds from a file's watch set.
func (m *Manager) handleEventsRemove(ctx *orpheus.Context) error {
	return m.mutateEvents(ctx, func(store *vigilo.Store, path string, events []string) error {
		for _, event := range events {
			change := vigilo.ConfChange{Kind: vigilo.ConfRemoveEvent, Event: event}
			if err := store.SetConf(path, change); err != nil {
				return err
			}
		}
		fmt.Printf("Removed events %s from %s\n", strings.Join(events, ","), path)
		return nil
	})
}

// handleEventsSet replaces a file's watch set wholesale.
func (m *Manager) handleEventsSet(ctx *orpheus.Context) error {
	return m.mutateEvents(ctx, func(store *vigilo.Store, path string, events []string) error {
		change := vigilo.ConfChange{Kind: vigilo.ConfSetEvents, Events: events}
		if err := store.SetConf(path, change); err != nil {
			return err
		}
		fmt.Printf("Watch set for %s is now %s\n", path, strings.Join(events, ","))
		return nil
	})
}

// mutateEvents factors the shared shape of the events subcommands:
// path argument, one or more event kind arguments, audit, store access.
func (m *Manager) mutateEvents(ctx *orpheus.Context, apply func(*vigilo.Store, string, []string) error) error {
	args := collectArgs(ctx)
	if len(args) < 2 {
		return errors.New(vigilo.ErrCodeInvalidEvent, "usage: <path> <event>...")
	}

	canonical, err := vigilo.CanonicalPath(args[0])
	if err != nil {
		return err
	}

	store, err := m.openStore()
	if err != nil {
		return err
	}

	if m.auditLogger != nil {
		m.auditLogger.LogFileWatch("cli_events", canonical)
	}
	return apply(store, canonical, args[1:])
}

// handleAlertSet changes a file's alert mode.
func (m *Manager) handleAlertSet(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return errors.New(vigilo.ErrCodeInvalidPath, "file path is required")
	}

	mode := ctx.GetFlagString("method")
	if mode == "" {
		mode = ctx.GetArg(1)
	}
	if mode == "" {
		return errors.New(vigilo.ErrCodeInvalidAlertMode, "alert mode is required")
	}

	canonical, err := vigilo.CanonicalPath(path)
	if err != nil {
		return err
	}

	store, err := m.openStore()
	if err != nil {
		return err
	}

	change := vigilo.ConfChange{Kind: vigilo.ConfSetAlert, AlertMode: mode}
	if err := store.SetConf(canonical, change); err != nil {
		return err
	}

	if m.auditLogger != nil {
		m.auditLogger.LogFileWatch("cli_alert_set", canonical)
	}
	fmt.Printf("Alert mode for %s is now %s\n", canonical, mode)
	return nil
}

// handleAlertTest sends a synthetic report through one delivery channel.
func (m *Manager) handleAlertTest(ctx *orpheus.Context) error {
	mode := ctx.GetFlagString("method")
	if !vigilo.ValidAlertMode(mode) {
		return errors.New(vigilo.ErrCodeInvalidAlertMode,
			fmt.Sprintf("unknown alert mode %q (valid: %s)", mode, strings.Join(vigilo.AlertModes(), ", ")))
	}

	router := vigilo.NewRouter(m.config.DispatchTimeout).WithAudit(m.auditLogger)
	router.Dispatch(vigilo.SelfTestReport(), mode)

	fmt.Printf("Test alert dispatched via %s\n", mode)
	return nil
}

// handleAlertModes lists alert modes usable on this host right now.
func (m *Manager) handleAlertModes(ctx *orpheus.Context) error {
	available := vigilo.AvailableAlertModes()
	fmt.Println("Alert modes available on this host:")
	for _, mode := range vigilo.AlertModes() {
		usable := "unavailable"
		for _, a := range available {
			if a == mode {
				usable = "available"
				break
			}
		}
		fmt.Printf("  %-8s %s\n", mode, usable)
	}
	return nil
}

// handleIndexRebuild regenerates the event index from the baseline.
func (m *Manager) handleIndexRebuild(ctx *orpheus.Context) error {
	store, err := m.openStore()
	if err != nil {
		return err
	}

	if err := store.RebuildIndex(); err != nil {
		return err
	}
	fmt.Printf("Event index rebuilt at %s\n", store.IndexPath())
	return nil
}

// handleHistoryShow prints recorded alert reports, oldest first.
func (m *Manager) handleHistoryShow(ctx *orpheus.Context) error {
	history := vigilo.NewHistory(m.config.HistoryPath)
	reports := history.List()

	if file := ctx.GetFlagString("file"); file != "" {
		canonical, err := vigilo.CanonicalPath(file)
		if err != nil {
			return err
		}
		filtered := reports[:0]
		for _, r := range reports {
			if r.File == canonical {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}

	if limit := ctx.GetFlagInt("limit"); limit > 0 && len(reports) > limit {
		reports = reports[len(reports)-limit:]
	}

	if len(reports) == 0 {
		fmt.Println("No alert reports recorded")
		return nil
	}

	for _, report := range reports {
		fmt.Println(vigilo.FormatAlertSummary(report))
	}
	return nil
}

// handleHistoryPrune deletes reports older than the retention window.
func (m *Manager) handleHistoryPrune(ctx *orpheus.Context) error {
	years := ctx.GetFlagInt("years")
	if years <= 0 {
		years = m.config.RetentionYears
	}

	history := vigilo.NewHistory(m.config.HistoryPath)
	removed, err := history.Prune(years)
	if err != nil {
		return err
	}

	if m.auditLogger != nil {
		m.auditLogger.LogFileWatch("cli_history_prune", m.config.HistoryPath)
	}
	fmt.Printf("Pruned %d report(s) older than %d year(s)\n", removed, years)
	return nil
}

// handleStart runs the monitoring service until SIGINT or SIGTERM.
// SIGHUP reloads the monitored set from the store without a restart.
func (m *Manager) handleStart(ctx *orpheus.Context) error {
	config := *m.config
	if path := ctx.GetFlagString("config"); path != "" {
		loaded, err := vigilo.LoadConfigFile(path)
		if err != nil {
			return err
		}
		config = *loaded
	}

	watcher, err := vigilo.NewFileWatcher(config)
	if err != nil {
		return err
	}

	if err := watcher.Store().Initialize(); err != nil {
		return err
	}

	// Retention is enforced at service start; long-running deployments
	// restart often enough for this to hold the window.
	if removed, err := watcher.History().Prune(config.RetentionYears); err == nil && removed > 0 {
		fmt.Printf("Pruned %d expired report(s) from history\n", removed)
	}

	if err := watcher.Start(); err != nil {
		return err
	}

	fmt.Printf("Vigilo monitoring %d file(s); store %s\n",
		watcher.MonitoredCount(), watcher.Store().InfoPath())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			watcher.Reload()
			fmt.Printf("Reloaded; monitoring %d file(s)\n", watcher.MonitoredCount())
			continue
		}
		break
	}

	fmt.Println("Shutting down")
	return watcher.Stop()
}
