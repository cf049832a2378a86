// Vigilo command-line entrypoint
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/vigilo"
	"github.com/agilira/vigilo/cmd/cli"
)

func main() {
	manager := cli.NewManager()

	if auditLogger, err := vigilo.NewAuditLogger(vigilo.DefaultAuditConfig()); err == nil {
		manager = manager.WithAudit(auditLogger)
		defer func() { _ = auditLogger.Close() }()
	}

	if err := manager.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
