// alert.go: Alert router and transport implementations
//
// The router dispatches a finalized report to one named channel. Every
// transport call is bounded in time and side-effect only: a hung desktop
// notifier, an unreachable SMTP server or a failing webhook degrades to a
// logged failure, never a stalled pipeline and never a propagated error.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Alert modes accepted by the router.
const (
	AlertModeSystem = "system"
	AlertModeLog    = "log"
	AlertModeEmail  = "email"
	AlertModeRemote = "remote"
	AlertModeSilent = "silent"
)

// SMTP and webhook transports are configured through the environment,
// never persisted next to the monitored data.
const (
	envSMTPHost     = "SMTP_HOST"
	envSMTPPort     = "SMTP_PORT"
	envSMTPUser     = "SMTP_USER"
	envSMTPPass     = "SMTP_PASS"
	envAlertEmailTo = "ALERT_EMAIL_TO"
	envRemoteURL    = "REMOTE_ALERT_URL"
	envRemoteToken  = "REMOTE_ALERT_TOKEN"
)

// ValidAlertMode reports whether mode is a member of the alert vocabulary.
func ValidAlertMode(mode string) bool {
	switch mode {
	case AlertModeSystem, AlertModeLog, AlertModeEmail, AlertModeRemote, AlertModeSilent:
		return true
	default:
		return false
	}
}

// AlertModes lists every valid alert mode.
func AlertModes() []string {
	return []string{AlertModeSystem, AlertModeLog, AlertModeEmail, AlertModeRemote, AlertModeSilent}
}

// Router dispatches finalized reports to their configured channel.
type Router struct {
	timeout time.Duration
	audit   *AuditLogger
}

// NewRouter creates an alert router with the given per-dispatch timeout.
func NewRouter(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Router{timeout: timeout}
}

// WithAudit attaches an audit logger recording transport failures.
func (r *Router) WithAudit(audit *AuditLogger) *Router {
	r.audit = audit
	return r
}

// Dispatch routes one report. The log mode is a no-op here (the history
// append already happened upstream), silent and unknown modes do nothing,
// and channel failures are absorbed after being audited.
func (r *Router) Dispatch(report AlertReport, mode string) {
	var err error
	switch mode {
	case AlertModeSystem:
		err = r.systemNotification(report)
	case AlertModeEmail:
		err = r.emailNotification(report)
	case AlertModeRemote:
		err = r.remoteNotification(report)
	case AlertModeLog, AlertModeSilent:
		return
	default:
		return
	}

	if err != nil {
		r.audit.LogSecurityEvent("alert_dispatch_failed", "alert transport failure",
			map[string]interface{}{
				"mode":  mode,
				"file":  report.File,
				"error": err.Error(),
			})
	}
}

// systemNotification sends a desktop notification via notify-send with a
// hard timeout. Arguments are passed directly to the process, never
// through a shell.
func (r *Router) systemNotification(report AlertReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	title := "File Monitoring Alert"
	message := notificationBody(report)

	cmd := exec.CommandContext(ctx, "notify-send",
		"--urgency=normal",
		"--icon=dialog-warning",
		title, message)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "notify-send failed").
			WithContext("file", report.File)
	}
	return nil
}

// notificationBody renders a compact change summary, truncating long
// values (checksums) and capping total length for the notification UI.
func notificationBody(report AlertReport) string {
	parts := []string{
		"File: " + report.File,
		"Event: " + report.Event,
		"Time: " + report.Time,
		"",
		"Changes:",
	}
	if len(report.Changes) == 0 {
		parts = append(parts, "- No detailed changes detected")
	} else {
		for field, change := range report.Changes {
			parts = append(parts, fmt.Sprintf("- %s: %s -> %s",
				field, truncateValue(change.Before), truncateValue(change.After)))
		}
	}

	message := strings.Join(parts, "\n")
	if len(message) > 500 {
		message = message[:497] + "..."
	}
	return message
}

func truncateValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 50 {
		return s[:47] + "..."
	}
	return s
}

// emailNotification delivers the report over SMTP with STARTTLS. The
// connection carries a deadline covering the whole exchange.
func (r *Router) emailNotification(report AlertReport) error {
	host := os.Getenv(envSMTPHost)
	port := os.Getenv(envSMTPPort)
	user := os.Getenv(envSMTPUser)
	pass := os.Getenv(envSMTPPass)
	to := os.Getenv(envAlertEmailTo)

	if host == "" || user == "" || pass == "" || to == "" {
		return errors.New(ErrCodeInvalidConfig, "email alert not configured, missing SMTP environment")
	}
	if port == "" {
		port = "587"
	}

	timeout := r.timeout
	if timeout < 10*time.Second {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot reach SMTP server").
			WithContext("addr", addr)
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, ErrCodeIOError, "SMTP handshake failed")
	}
	defer func() { _ = client.Close() }()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "SMTP STARTTLS failed")
	}
	if err := client.Auth(smtp.PlainAuth("", user, pass, host)); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "SMTP authentication failed")
	}
	if err := client.Mail(user); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "SMTP MAIL failed")
	}
	if err := client.Rcpt(to); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "SMTP RCPT failed")
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "SMTP DATA failed")
	}
	if _, err := w.Write([]byte(emailBody(report, user, to))); err != nil {
		_ = w.Close()
		return errors.Wrap(err, ErrCodeIOError, "failed to write email body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to finish email body")
	}
	return client.Quit()
}

// emailBody renders the alert as an RFC 5322 message.
func emailBody(report AlertReport, from, to string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Vigilo Alert: %s on %s\r\n", report.Event, filepath.Base(report.File))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	b.WriteString("File Integrity Monitoring Alert\r\n\r\n")
	fmt.Fprintf(&b, "File: %s\r\n", report.File)
	fmt.Fprintf(&b, "Event: %s\r\n", report.Event)
	fmt.Fprintf(&b, "Time: %s\r\n\r\n", report.Time)

	b.WriteString("Changes Detected:\r\n")
	if len(report.Changes) == 0 {
		b.WriteString("  No detailed changes detected\r\n")
	} else {
		for field, change := range report.Changes {
			fmt.Fprintf(&b, "  %s:\r\n", field)
			fmt.Fprintf(&b, "    Before: %v\r\n", change.Before)
			fmt.Fprintf(&b, "    After:  %v\r\n", change.After)
		}
	}

	fmt.Fprintf(&b, "\r\nInterpretation: %s\r\n", report.Interpretation)
	fmt.Fprintf(&b, "Recommendation: %s\r\n", report.Recommendation)
	b.WriteString("\r\n---\r\nVigilo File Integrity Monitoring\r\n")
	return b.String()
}

// remoteNotification posts the report to the configured monitoring
// endpoint with a bearer token and full TLS verification.
func (r *Router) remoteNotification(report AlertReport) error {
	url := os.Getenv(envRemoteURL)
	token := os.Getenv(envRemoteToken)
	if url == "" || token == "" {
		return errors.New(ErrCodeInvalidConfig, "remote alert not configured, missing URL or token")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to encode report")
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to build webhook request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vigilo/1.0")

	client := &http.Client{Timeout: r.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "webhook delivery failed").
			WithContext("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.New(ErrCodeIOError, "webhook endpoint rejected alert").
			WithContext("status", resp.StatusCode)
	}
	return nil
}

// AvailableAlertModes probes which channels are usable right now: log and
// silent always are, system needs notify-send on PATH, email and remote
// need complete environment configuration.
func AvailableAlertModes() []string {
	available := []string{AlertModeLog, AlertModeSilent}

	if _, err := exec.LookPath("notify-send"); err == nil {
		available = append(available, AlertModeSystem)
	}
	if os.Getenv(envSMTPHost) != "" && os.Getenv(envSMTPUser) != "" &&
		os.Getenv(envSMTPPass) != "" && os.Getenv(envAlertEmailTo) != "" {
		available = append(available, AlertModeEmail)
	}
	if os.Getenv(envRemoteURL) != "" && os.Getenv(envRemoteToken) != "" {
		available = append(available, AlertModeRemote)
	}
	return available
}

// FormatAlertSummary renders a report for operator-facing output.
func FormatAlertSummary(report AlertReport) string {
	var b strings.Builder
	sep := strings.Repeat("=", 60)

	b.WriteString(sep + "\n")
	b.WriteString("FILE MONITORING ALERT\n")
	b.WriteString(sep + "\n")
	fmt.Fprintf(&b, "File:        %s\n", report.File)
	fmt.Fprintf(&b, "Event:       %s\n", report.Event)
	fmt.Fprintf(&b, "Time:        %s\n", report.Time)
	fmt.Fprintf(&b, "Owner:       %s\n", report.Owner)
	fmt.Fprintf(&b, "Permissions: %s\n\n", report.Permissions)

	if len(report.Changes) > 0 {
		b.WriteString("Changes Detected:\n")
		for field, change := range report.Changes {
			fmt.Fprintf(&b, "  %s:\n", field)
			fmt.Fprintf(&b, "    Before: %v\n", change.Before)
			fmt.Fprintf(&b, "    After:  %v\n", change.After)
		}
	} else {
		b.WriteString("No detailed changes detected\n")
	}

	fmt.Fprintf(&b, "\nInterpretation: %s\n", report.Interpretation)
	fmt.Fprintf(&b, "Recommendation: %s\n", report.Recommendation)
	b.WriteString(sep)
	return b.String()
}

// SelfTestReport builds the synthetic report used by the alert self-test.
func SelfTestReport() AlertReport {
	return AlertReport{
		File:        "/tmp/test_file.txt",
		Event:       EventModify.String(),
		Time:        timecache.CachedTime().Format(time.RFC3339Nano),
		AlertMode:   "test",
		Owner:       "testuser",
		Permissions: "-rw-r--r--",
		Changes: ChangeSet{
			"size": {Before: 0, After: 100},
		},
		Interpretation: "This is a test alert",
		Recommendation: "No action needed",
	}
}
