package catalog

import (
	"strings"
	"testing"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

// Every ${VAR} any built-in spec references.
var testSecrets = map[string]string{
	"FLEET_URL":                "https://fleet.example.net:8220",
	"FLEET_ENROLLMENT_TOKEN":   "tok-elastic",
	"SPLUNK_DEPLOYMENT_SERVER": "splunk-ds.example.net:8089",
	"ZSCALER_CLOUD":            "zscalertwo.net",
	"ZSCALER_DOMAIN":           "example.net",
	"NESSUS_GROUPS":            "Workstations",
	"NESSUS_SERVER":            "nessus.example.net:8834",
	"NESSUS_LINKING_KEY":       "key-nessus",
	"NESSUS_SERVER_HOST":       "nessus.example.net",
	"NESSUS_SERVER_PORT":       "8834",
	"CBAC_SERVER_ID":           "srv-1",
	"CBAC_SERVER_ADDR":         "cbac.example.net",
	"CROWDSTRIKE_CID":          "cid-falcon",
}

func TestBuiltinSpecsResolveAndValidate(t *testing.T) {
	for name, raw := range Builtin() {
		spec, err := Resolve(raw, testSecrets)
		if err != nil {
			t.Errorf("%s: resolve: %v", name, err)
			continue
		}
		if err := spec.Validate(); err != nil {
			t.Errorf("%s: validate: %v", name, err)
		}
		for _, a := range spec.InstallCommand.Args {
			if strings.Contains(a, "${") {
				t.Errorf("%s: unexpanded placeholder in arg %q", name, a)
			}
		}
	}
}

func TestBuiltinSpecsCarryNoLiteralSecrets(t *testing.T) {
	// Secret-bearing fields in the raw catalog must be placeholders, never
	// values: resolving with an empty secrets map (and no matching env vars)
	// has to fail for every agent that needs one.
	needsSecret := map[string]bool{
		"elastic": true, "splunk": true, "zscaler": true,
		"nessus": true, "cbac": true, "crowdstrike": true,
	}
	for name, raw := range Builtin() {
		_, err := Resolve(raw, map[string]string{})
		if needsSecret[name] && err == nil {
			t.Errorf("%s: resolved without secrets; expected unresolved placeholder error", name)
		}
		if !needsSecret[name] && err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	raw := Builtin()["crowdstrike"]
	before := strings.Join(raw.InstallCommand.Args, " ")
	if _, err := Resolve(raw, testSecrets); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(raw.InstallCommand.Args, " "); got != before {
		t.Fatalf("input spec mutated: %q", got)
	}
}

func TestGetUnknownAgent(t *testing.T) {
	if _, err := Get("sccm", testSecrets); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestNamesStable(t *testing.T) {
	names := Names()
	if len(names) != 8 {
		t.Fatalf("expected 8 built-in agents, got %d: %v", len(names), names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestEveryBuiltinHasServiceOrRegistryDetection(t *testing.T) {
	for name, raw := range Builtin() {
		switch raw.Detection.Kind {
		case agentspec.DetectService, agentspec.DetectRegistry, agentspec.DetectExecutable:
		default:
			t.Errorf("%s: unexpected detection kind %q", name, raw.Detection.Kind)
		}
		if raw.LogDestination == "" {
			t.Errorf("%s: missing log destination", name)
		}
		if raw.SettleDelay <= 0 {
			t.Errorf("%s: missing settle delay", name)
		}
	}
}
