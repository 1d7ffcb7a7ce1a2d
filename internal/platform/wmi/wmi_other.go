//go:build !windows

// Package wmi provides stubs for non-Windows platforms.
package wmi

import (
	"context"
	"fmt"
)

func queryWindows(ctx context.Context, namespace, query string) ([]QueryResult, error) {
	return nil, fmt.Errorf("WMI queries only supported on Windows")
}

func getRegistryStringWindows(ctx context.Context, hive uint32, subKey, valueName string) (string, error) {
	return "", fmt.Errorf("registry queries only supported on Windows")
}

func installedProductsWindows(ctx context.Context) ([]Product, error) {
	return nil, fmt.Errorf("registry queries only supported on Windows")
}
