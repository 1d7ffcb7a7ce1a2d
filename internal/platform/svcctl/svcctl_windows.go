//go:build windows

package svcctl

import (
	"fmt"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// withService opens the SCM and the named service, then runs fn against it.
func withService(name string, fn func(s *mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()

	return fn(s)
}

func existsWindows(name string) (bool, error) {
	m, err := mgr.Connect()
	if err != nil {
		return false, fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		// OpenService fails with ERROR_SERVICE_DOES_NOT_EXIST for unknown
		// names; any open failure means "not detectable as installed".
		return false, nil
	}
	s.Close()
	return true, nil
}

func queryWindows(name string) (State, error) {
	var state State = StateUnknown
	err := withService(name, func(s *mgr.Service) error {
		status, err := s.Query()
		if err != nil {
			return fmt.Errorf("query service %s: %w", name, err)
		}
		switch status.State {
		case svc.Running:
			state = StateRunning
		case svc.Stopped:
			state = StateStopped
		case svc.StartPending, svc.StopPending, svc.ContinuePending, svc.PausePending:
			state = StatePending
		default:
			state = StateUnknown
		}
		return nil
	})
	return state, err
}

func startWindows(name string) error {
	return withService(name, func(s *mgr.Service) error {
		if err := s.Start(); err != nil {
			return fmt.Errorf("start service %s: %w", name, err)
		}
		return nil
	})
}
