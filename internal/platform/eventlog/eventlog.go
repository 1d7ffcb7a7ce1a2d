// Package eventlog writes provisioning outcomes to the Windows application
// event log so host-local tooling can observe install activity without
// parsing log files. Event IDs distinguish the run phases.
package eventlog

import (
	"fmt"
	"runtime"
)

// Source is the event log source name registered for this tool.
const Source = "WSProvision"

// Event IDs, one per reportable category.
const (
	EventInstallStart   uint32 = 1000
	EventInstallSuccess uint32 = 1001
	EventAgentNotFound  uint32 = 1002
	EventInstallFailure uint32 = 1003
)

// RegisterSource registers the event log source. Safe to call repeatedly;
// an already-registered source is not an error. Performed by hostprep, not
// by the install workflow.
func RegisterSource() error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("event log only supported on Windows")
	}
	return registerSourceWindows()
}

// Info writes an informational entry (start, success categories).
func Info(eventID uint32, msg string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("event log only supported on Windows")
	}
	return infoWindows(eventID, msg)
}

// Warning writes a warning entry (agent-not-found category).
func Warning(eventID uint32, msg string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("event log only supported on Windows")
	}
	return warningWindows(eventID, msg)
}

// Error writes an error entry (failure categories).
func Error(eventID uint32, msg string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("event log only supported on Windows")
	}
	return errorWindows(eventID, msg)
}
