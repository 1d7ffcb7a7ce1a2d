//go:build !windows

package svcctl

import "fmt"

func existsWindows(name string) (bool, error) {
	return false, fmt.Errorf("service queries only supported on Windows")
}

func queryWindows(name string) (State, error) {
	return StateUnknown, fmt.Errorf("service queries only supported on Windows")
}

func startWindows(name string) error {
	return fmt.Errorf("service control only supported on Windows")
}
