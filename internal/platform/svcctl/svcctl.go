// Package svcctl wraps Windows Service Control Manager queries used for
// agent detection and post-install verification.
package svcctl

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// State is a coarse service state. Transitional SCM states (start pending,
// stop pending) are reported as StatePending.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StatePending State = "pending"
	StateUnknown State = "unknown"
)

// Exists reports whether a service with the given name is registered,
// regardless of its running state.
func Exists(name string) (bool, error) {
	if runtime.GOOS != "windows" {
		return false, fmt.Errorf("service queries only supported on Windows")
	}
	return existsWindows(name)
}

// Query returns the current state of a registered service.
func Query(name string) (State, error) {
	if runtime.GOOS != "windows" {
		return StateUnknown, fmt.Errorf("service queries only supported on Windows")
	}
	return queryWindows(name)
}

// Start asks the SCM to start a service. It does not wait for the service to
// reach running state; use WaitForState for that.
func Start(name string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("service control only supported on Windows")
	}
	return startWindows(name)
}

// WaitForState polls the service until it reaches the wanted state or the
// timeout elapses. SCM offers no portable notification for state
// transitions, so polling it is.
func WaitForState(ctx context.Context, name string, want State, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		state, err := Query(name)
		if err == nil && state == want {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("service %s did not reach %s within %v: %w", name, want, timeout, err)
			}
			return fmt.Errorf("service %s did not reach %s within %v (last state: %s)", name, want, timeout, state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}
