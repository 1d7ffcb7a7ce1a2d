//go:build windows

package eventlog

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows/svc/eventlog"
)

func registerSourceWindows() error {
	err := eventlog.InstallAsEventCreate(Source, eventlog.Info|eventlog.Warning|eventlog.Error)
	if err != nil && !strings.Contains(err.Error(), "registry key already exists") {
		return fmt.Errorf("register event source %s: %w", Source, err)
	}
	return nil
}

func withLog(fn func(l *eventlog.Log) error) error {
	l, err := eventlog.Open(Source)
	if err != nil {
		return fmt.Errorf("open event log source %s: %w", Source, err)
	}
	defer l.Close()
	return fn(l)
}

func infoWindows(eventID uint32, msg string) error {
	return withLog(func(l *eventlog.Log) error { return l.Info(eventID, msg) })
}

func warningWindows(eventID uint32, msg string) error {
	return withLog(func(l *eventlog.Log) error { return l.Warning(eventID, msg) })
}

func errorWindows(eventID uint32, msg string) error {
	return withLog(func(l *eventlog.Log) error { return l.Error(eventID, msg) })
}
