// Package wmi provides helpers for Windows Management Instrumentation queries
// and registry reads used by agent detection.
//
// This package uses the go-ole library on Windows. On non-Windows platforms
// every operation returns an explicit error so callers can degrade cleanly.
package wmi

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// QueryResult represents a single WMI object result as a map of property
// names to values.
type QueryResult map[string]interface{}

// Query executes a WQL query and returns the results.
//
// namespace: WMI namespace (e.g., "root\\CIMV2")
// query: WQL query string (e.g., "SELECT Name FROM Win32_Service")
func Query(ctx context.Context, namespace, query string) ([]QueryResult, error) {
	if runtime.GOOS != "windows" {
		return nil, fmt.Errorf("WMI queries only supported on Windows")
	}
	return queryWindows(ctx, namespace, query)
}

// GetPropertyString extracts a string property from a QueryResult.
func GetPropertyString(result QueryResult, name string) (string, bool) {
	val, ok := result[name]
	if !ok {
		return "", false
	}
	sval, ok := val.(string)
	return sval, ok
}

// GetPropertyBool extracts a boolean property from a QueryResult.
func GetPropertyBool(result QueryResult, name string) (bool, bool) {
	val, ok := result[name]
	if !ok {
		return false, false
	}
	bval, ok := val.(bool)
	return bval, ok
}

// Registry hive constants for StdRegProv.
const (
	HKEY_LOCAL_MACHINE uint32 = 0x80000002
	HKEY_CURRENT_USER  uint32 = 0x80000001
)

// Uninstall hive subkeys. 64-bit installers register under the native path,
// 32-bit installers under WOW6432Node; detection must scan both.
const (
	uninstallKeyNative = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`
	uninstallKeyWow64  = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`
)

// Product is one entry from the installed-products registry catalog.
type Product struct {
	DisplayName    string
	DisplayVersion string
	Hive           string // "native" or "wow6432"
}

// InstalledProducts enumerates the uninstall registry hives (native and
// 32-bit-compatibility) and returns the merged candidate set. Entries without
// a DisplayName are skipped; they are servicing stubs, not products.
func InstalledProducts(ctx context.Context) ([]Product, error) {
	if runtime.GOOS != "windows" {
		return nil, fmt.Errorf("registry queries only supported on Windows")
	}
	return installedProductsWindows(ctx)
}

// GetRegistryString reads a string value from the registry via StdRegProv.
func GetRegistryString(ctx context.Context, hive uint32, subKey, valueName string) (string, error) {
	if runtime.GOOS != "windows" {
		return "", fmt.Errorf("registry queries only supported on Windows")
	}
	return getRegistryStringWindows(ctx, hive, subKey, valueName)
}

// MatchDisplayName reports whether any product's display name contains the
// pattern (case-insensitive substring, not exact equality), returning the
// first match.
func MatchDisplayName(products []Product, pattern string) (Product, bool) {
	needle := strings.ToLower(pattern)
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.DisplayName), needle) {
			return p, true
		}
	}
	return Product{}, false
}
