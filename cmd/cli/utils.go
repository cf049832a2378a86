// Shared utilities for the Vigilo CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/vigilo"
)

// openStore returns an initialized baseline store using the resolved
// service configuration.
func (m *Manager) openStore() (*vigilo.Store, error) {
	store := vigilo.NewStore(m.config.StorePath, m.config.IndexPath).
		WithAudit(m.auditLogger)
	if err := store.Initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// collectArgs gathers the positional arguments. Orpheus hands back every
// raw token through GetArg, flags included, so flag tokens are filtered
// here; valueFlags names the command's flags that consume the following
// token as their value. Orpheus returns an empty string past the end of
// the argument list.
func collectArgs(ctx *orpheus.Context, valueFlags ...string) []string {
	takesValue := make(map[string]bool, len(valueFlags))
	for _, name := range valueFlags {
		takesValue[name] = true
	}

	var args []string
	skipNext := false
	for i := 0; ; i++ {
		arg := ctx.GetArg(i)
		if arg == "" {
			break
		}
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(arg, "-") {
			name := strings.TrimLeft(arg, "-")
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				continue
			}
			skipNext = takesValue[name]
			continue
		}
		args = append(args, arg)
	}
	return args
}

// watchEventsFromFlags resolves the watch set for the add command.
// A preset wins over individual event flags; selecting nothing at all
// is an error rather than a silent default.
func watchEventsFromFlags(ctx *orpheus.Context) ([]string, error) {
	switch preset := ctx.GetFlagString("preset"); preset {
	case "full":
		kinds := vigilo.EventKinds()
		events := make([]string, len(kinds))
		for i, k := range kinds {
			events[i] = k.String()
		}
		return events, nil
	case "default":
		return []string{
			vigilo.EventModify.String(),
			vigilo.EventDelete.String(),
			vigilo.EventPermissions.String(),
		}, nil
	case "":
	default:
		return nil, errors.New(vigilo.ErrCodeInvalidEvent,
			fmt.Sprintf("unknown preset %q (valid: full, default)", preset))
	}

	var events []string
	for _, kind := range vigilo.EventKinds() {
		if ctx.GetFlagBool(kind.String()) {
			events = append(events, kind.String())
		}
	}
	if len(events) == 0 {
		return nil, errors.New(vigilo.ErrCodeInvalidEvent,
			"no watch events selected (use event flags or --preset)")
	}
	return events, nil
}

// formatRecordLine renders a record for the list command.
func formatRecordLine(rec *vigilo.MonitoredRecord) string {
	return fmt.Sprintf("%-50s %-9s %8d bytes  events=%s alert=%s",
		rec.Path(),
		rec.File.Type,
		rec.Metadata.Size,
		strings.Join(rec.Monitoring.WatchEvents, ","),
		rec.Monitoring.AlertMode)
}

// printRecord renders the full stored baseline for the info command.
func printRecord(rec *vigilo.MonitoredRecord) {
	fmt.Printf("File:          %s\n", rec.Path())
	fmt.Printf("Name:          %s\n", rec.File.Name)
	fmt.Printf("Type:          %s\n", rec.File.Type)
	fmt.Printf("Size:          %d bytes\n", rec.Metadata.Size)
	fmt.Printf("Permissions:   %s\n", rec.Metadata.Permissions)
	fmt.Printf("Owner:         %s:%s\n", rec.Metadata.Owner, rec.Metadata.Group)
	fmt.Printf("Last modified: %s\n", rec.Metadata.LastModified)
	if rec.Metadata.Checksum != nil {
		fmt.Printf("Checksum:      sha256:%s\n", *rec.Metadata.Checksum)
	} else {
		fmt.Printf("Checksum:      unavailable\n")
	}
	fmt.Printf("Watch events:  %s\n", strings.Join(rec.Monitoring.WatchEvents, ","))
	fmt.Printf("Alert mode:    %s\n", rec.Monitoring.AlertMode)
	fmt.Printf("Added on:      %s\n", rec.Monitoring.AddedOn)
}
