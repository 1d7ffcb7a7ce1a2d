package wmi

import (
	"context"
	"runtime"
	"testing"
)

func TestQueryResultPropertyHelpers(t *testing.T) {
	result := QueryResult{
		"StringProp": "value",
		"BoolProp":   true,
	}

	if val, ok := GetPropertyString(result, "StringProp"); !ok || val != "value" {
		t.Errorf("expected 'value', got '%s', ok=%v", val, ok)
	}
	if _, ok := GetPropertyString(result, "Missing"); ok {
		t.Error("expected ok=false for missing property")
	}
	if val, ok := GetPropertyBool(result, "BoolProp"); !ok || !val {
		t.Errorf("expected true, got %v, ok=%v", val, ok)
	}
	if _, ok := GetPropertyBool(result, "StringProp"); ok {
		t.Error("expected ok=false for wrong type")
	}
}

func TestMatchDisplayName(t *testing.T) {
	products := []Product{
		{DisplayName: "Zscaler Client Connector", DisplayVersion: "4.3.0.128", Hive: "native"},
		{DisplayName: "Winlogbeat OSS 8.13.4", DisplayVersion: "8.13.4", Hive: "wow6432"},
		{DisplayName: "BigFix Client", DisplayVersion: "11.0.2", Hive: "wow6432"},
	}

	tests := []struct {
		pattern string
		want    string
		found   bool
	}{
		{"zscaler", "Zscaler Client Connector", true},
		{"Winlogbeat", "Winlogbeat OSS 8.13.4", true},
		{"BIGFIX", "BigFix Client", true},
		{"CrowdStrike", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, found := MatchDisplayName(products, tt.pattern)
			if found != tt.found {
				t.Fatalf("pattern %q: found=%v, want %v", tt.pattern, found, tt.found)
			}
			if found && p.DisplayName != tt.want {
				t.Errorf("pattern %q: matched %q, want %q", tt.pattern, p.DisplayName, tt.want)
			}
		})
	}
}

func TestQueryOnNonWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("non-Windows behavior")
	}

	if _, err := Query(context.Background(), "root\\CIMV2", "SELECT Name FROM Win32_Service"); err == nil {
		t.Error("expected error on non-Windows platform")
	}
	if _, err := InstalledProducts(context.Background()); err == nil {
		t.Error("expected error on non-Windows platform")
	}
	if _, err := GetRegistryString(context.Background(), HKEY_LOCAL_MACHINE, `SOFTWARE\Test`, "Value"); err == nil {
		t.Error("expected error on non-Windows platform")
	}
}
