// Package catalog holds the built-in specs for the eight supported endpoint
// agents. Everything here is parameter data: detection predicate, source,
// silent-install arguments, settle delay, verification list. Secrets appear
// only as ${VAR} placeholders resolved at invocation time.
package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/pallav98/windows-ws/internal/agentspec"
)

const (
	scratchRoot = `C:\Temp\ws-provision`
	logRoot     = `C:\Temp\ws-provision\logs`
)

// Builtin returns the built-in agent specs keyed by short identifier.
func Builtin() map[string]*agentspec.Spec {
	return map[string]*agentspec.Spec{
		"elastic":     elasticAgent(),
		"splunk":      splunkForwarder(),
		"zscaler":     zscaler(),
		"winlogbeat":  winlogbeat(),
		"nessus":      nessusAgent(),
		"cbac":        carbonBlackAppControl(),
		"bigfix":      bigFix(),
		"crowdstrike": crowdStrikeFalcon(),
	}
}

// Names returns the built-in identifiers in stable order.
func Names() []string {
	specs := Builtin()
	names := make([]string, 0, len(specs))
	for k := range specs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get returns one built-in spec with its ${VAR} placeholders expanded from
// the secrets map and the environment.
func Get(name string, secrets map[string]string) (*agentspec.Spec, error) {
	spec, ok := Builtin()[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (known: %v)", name, Names())
	}
	return Resolve(spec, secrets)
}

// Resolve expands ${VAR} placeholders in the spec's acquisition and command
// fields. The input spec is not mutated; the resolved copy is validated
// before it is returned.
func Resolve(spec *agentspec.Spec, secrets map[string]string) (*agentspec.Spec, error) {
	out := *spec

	var err error
	if out.Source.URL, err = expand(spec.Source.URL, secrets); err != nil {
		return nil, fmt.Errorf("%s: source url: %w", spec.Name, err)
	}
	if out.Source.SharePath, err = expand(spec.Source.SharePath, secrets); err != nil {
		return nil, fmt.Errorf("%s: share path: %w", spec.Name, err)
	}
	if out.InstallCommand.Args, err = expandAll(spec.InstallCommand.Args, secrets); err != nil {
		return nil, fmt.Errorf("%s: install args: %w", spec.Name, err)
	}

	out.PostInstallChecks = make([]agentspec.Check, len(spec.PostInstallChecks))
	copy(out.PostInstallChecks, spec.PostInstallChecks)
	for i := range out.PostInstallChecks {
		c := &out.PostInstallChecks[i]
		if c.RelinkArgs, err = expandAll(c.RelinkArgs, secrets); err != nil {
			return nil, fmt.Errorf("%s: relink args: %w", spec.Name, err)
		}
		if c.StatusArgs, err = expandAll(c.StatusArgs, secrets); err != nil {
			return nil, fmt.Errorf("%s: status args: %w", spec.Name, err)
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func expand(s string, secrets map[string]string) (string, error) {
	if s == "" {
		return "", nil
	}
	return agentspec.ExpandSecrets(s, secrets)
}

func expandAll(args []string, secrets map[string]string) ([]string, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		v, err := agentspec.ExpandSecrets(a, secrets)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func elasticAgent() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Elastic Agent",
		Expected: "8.13.4",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "Elastic Agent",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "https://artifacts.elastic.co/downloads/beats/elastic-agent/elastic-agent-8.13.4-windows-x86_64.zip",
			StagingDir: scratchRoot + `\elastic`,
			Filename:   "elastic-agent-8.13.4-windows-x86_64.zip",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "powershell.exe",
			Args: []string{
				"-NoProfile", "-NonInteractive", "-Command",
				`Expand-Archive -Force -Path "{{installer}}" -DestinationPath "` + scratchRoot + `\elastic"; ` +
					`& "` + scratchRoot + `\elastic\elastic-agent-8.13.4-windows-x86_64\elastic-agent.exe" install -f ` +
					`--url=${FLEET_URL} --enrollment-token=${FLEET_ENROLLMENT_TOKEN}`,
			},
			LogFile: logRoot + `\elastic_agent_install.log`,
		},
		SettleDelay: 10 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "Elastic Agent", StartTimeout: 60 * time.Second},
		},
		LogDestination: logRoot + `\elastic_agent.log`,
	}
}

func splunkForwarder() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Splunk Universal Forwarder",
		Expected: "9.2.1",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "SplunkForwarder",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "https://download.splunk.com/products/universalforwarder/releases/9.2.1/windows/splunkforwarder-9.2.1-78803f08aabb-x64-release.msi",
			StagingDir: scratchRoot + `\splunk`,
			Filename:   "splunkforwarder-9.2.1-x64-release.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "msiexec.exe",
			Args: []string{
				"/i", "{{installer}}",
				"DEPLOYMENT_SERVER=${SPLUNK_DEPLOYMENT_SERVER}",
				"AGREETOLICENSE=Yes",
				"SERVICESTARTTYPE=auto",
				"LAUNCHSPLUNK=1",
				"/qn", "/norestart",
				"/L*v", logRoot + `\splunk_msi.log`,
			},
		},
		SettleDelay: 15 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "SplunkForwarder", StartTimeout: 60 * time.Second},
		},
		LogDestination: logRoot + `\splunk_uf.log`,
	}
}

func zscaler() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Zscaler Client Connector",
		Expected: "4.3.0.128",
		Detection: agentspec.Detection{
			Kind:               agentspec.DetectRegistry,
			DisplayNamePattern: "Zscaler",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceShare,
			SharePath:  `\\fileserver\agents\Zscaler\Zscaler-windows-4.3.0.128-installer-x64.msi`,
			StagingDir: scratchRoot + `\zscaler`,
			Filename:   "Zscaler-windows-4.3.0.128-installer-x64.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "msiexec.exe",
			Args: []string{
				"/i", "{{installer}}",
				"CLOUDNAME=${ZSCALER_CLOUD}",
				"USERDOMAIN=${ZSCALER_DOMAIN}",
				"HIDEAPPUIONLAUNCH=1",
				"/qn", "/norestart",
				"/L*v", logRoot + `\zscaler_msi.log`,
			},
		},
		SettleDelay: 10 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "ZSAService", StartTimeout: 60 * time.Second},
		},
		LogDestination: logRoot + `\zscaler.log`,
	}
}

func winlogbeat() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Winlogbeat",
		Expected: "8.13.4",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "winlogbeat",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "https://artifacts.elastic.co/downloads/beats/winlogbeat/winlogbeat-8.13.4-windows-x86_64.msi",
			StagingDir: scratchRoot + `\winlogbeat`,
			Filename:   "winlogbeat-8.13.4-windows-x86_64.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "msiexec.exe",
			Args: []string{
				"/i", "{{installer}}",
				"/qn", "/norestart",
				"/L*v", logRoot + `\winlogbeat_msi.log`,
			},
		},
		SettleDelay: 5 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "winlogbeat", StartTimeout: 30 * time.Second},
		},
		LogDestination: logRoot + `\winlogbeat.log`,
	}
}

func nessusAgent() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Nessus Agent",
		Expected: "10.6.1",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "Tenable Nessus Agent",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceURL,
			URL:        "https://www.tenable.com/downloads/api/v2/pages/nessus-agents/files/NessusAgent-10.6.1-x64.msi",
			StagingDir: scratchRoot + `\nessus`,
			Filename:   "NessusAgent-10.6.1-x64.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "msiexec.exe",
			Args: []string{
				"/i", "{{installer}}",
				"NESSUS_GROUPS=${NESSUS_GROUPS}",
				"NESSUS_SERVER=${NESSUS_SERVER}",
				"NESSUS_KEY=${NESSUS_LINKING_KEY}",
				"/qn", "/norestart",
				"/L*v", logRoot + `\nessus_msi.log`,
			},
		},
		SettleDelay: 10 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "Tenable Nessus Agent", StartTimeout: 60 * time.Second},
			{
				Kind:         agentspec.CheckEnrollment,
				StatusExe:    `C:\Program Files\Tenable\Nessus Agent\nessuscli.exe`,
				StatusArgs:   []string{"agent", "status"},
				LinkedMarker: "Link status: Connected",
				UnlinkExe:    `C:\Program Files\Tenable\Nessus Agent\nessuscli.exe`,
				UnlinkArgs:   []string{"agent", "unlink"},
				RelinkExe:    `C:\Program Files\Tenable\Nessus Agent\nessuscli.exe`,
				RelinkArgs: []string{
					"agent", "link",
					"--key=${NESSUS_LINKING_KEY}",
					"--host=${NESSUS_SERVER_HOST}",
					"--port=${NESSUS_SERVER_PORT}",
					"--groups=${NESSUS_GROUPS}",
				},
			},
		},
		LogDestination: logRoot + `\nessus.log`,
	}
}

func carbonBlackAppControl() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "Carbon Black App Control",
		Expected: "8.9.4",
		Detection: agentspec.Detection{
			Kind:               agentspec.DetectRegistry,
			DisplayNamePattern: "Carbon Black App Control",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceShare,
			SharePath:  `\\fileserver\agents\CBAC\ParityHostAgent.msi`,
			StagingDir: scratchRoot + `\cbac`,
			Filename:   "ParityHostAgent.msi",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "msiexec.exe",
			Args: []string{
				"/i", "{{installer}}",
				"B9_SERVER_ID=${CBAC_SERVER_ID}",
				"B9_SERVER_IP=${CBAC_SERVER_ADDR}",
				"/qn", "/norestart",
				"/L*v", logRoot + `\cbac_msi.log`,
			},
		},
		SettleDelay: 15 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "Parity", StartTimeout: 90 * time.Second},
		},
		LogDestination: logRoot + `\cbac.log`,
	}
}

func bigFix() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "BigFix Client",
		Expected: "11.0.2",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "BESClient",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceShare,
			SharePath:  `\\fileserver\agents\BigFix\BigFix-BES-Client-11.0.2.125.exe`,
			StagingDir: scratchRoot + `\bigfix`,
			Filename:   "BigFix-BES-Client-11.0.2.125.exe",
		},
		InstallCommand: agentspec.InstallCommand{
			// The setup exe carries its masthead; no per-site arguments.
			Exe:     "{{installer}}",
			Args:    []string{"/s", "/v/qn"},
			LogFile: logRoot + `\bigfix_setup.log`,
		},
		SettleDelay: 15 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "BESClient", StartTimeout: 120 * time.Second},
		},
		LogDestination: logRoot + `\bigfix.log`,
	}
}

func crowdStrikeFalcon() *agentspec.Spec {
	return &agentspec.Spec{
		Name:     "CrowdStrike Falcon Sensor",
		Expected: "7.13",
		Detection: agentspec.Detection{
			Kind:        agentspec.DetectService,
			ServiceName: "CSFalconService",
		},
		Source: agentspec.Source{
			Kind:       agentspec.SourceShare,
			SharePath:  `\\fileserver\agents\CrowdStrike\WindowsSensor.exe`,
			StagingDir: scratchRoot + `\crowdstrike`,
			Filename:   "WindowsSensor.exe",
		},
		InstallCommand: agentspec.InstallCommand{
			Exe: "{{installer}}",
			Args: []string{
				"/install", "/quiet", "/norestart",
				"CID=${CROWDSTRIKE_CID}",
			},
		},
		SettleDelay: 10 * time.Second,
		PostInstallChecks: []agentspec.Check{
			{Kind: agentspec.CheckServiceRunning, ServiceName: "CSFalconService", StartTimeout: 60 * time.Second},
		},
		LogDestination: logRoot + `\crowdstrike.log`,
	}
}
