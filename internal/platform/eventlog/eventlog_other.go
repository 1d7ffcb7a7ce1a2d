//go:build !windows

package eventlog

import "fmt"

func registerSourceWindows() error {
	return fmt.Errorf("event log only supported on Windows")
}

func infoWindows(eventID uint32, msg string) error {
	return fmt.Errorf("event log only supported on Windows")
}

func warningWindows(eventID uint32, msg string) error {
	return fmt.Errorf("event log only supported on Windows")
}

func errorWindows(eventID uint32, msg string) error {
	return fmt.Errorf("event log only supported on Windows")
}
