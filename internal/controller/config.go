// Package controller drives the provisioning workflow across a fleet of
// workstations over WinRM: read the host list, run the provisioner for an
// ordered sequence of agents on each host, collect every structured result,
// and write a summary CSV. Credentials are never stored in the host list or
// the config file; the password comes from the environment.
package controller

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls how the fleet run talks to hosts and what it runs there.
type Config struct {
	// Port is the WinRM port on every host. 0 selects 5985 or 5986 by SSL.
	Port      int  `yaml:"port"`
	UseSSL    bool `yaml:"use_ssl"`
	VerifySSL bool `yaml:"verify_ssl"`

	// TimeoutSeconds bounds one remote command. Retries and
	// RetryDelaySeconds govern re-attempts after transport failures
	// (not installer failures).
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	Retries           int `yaml:"retries"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`

	// ProvisionerPath is where ws-provision.exe lives on each host.
	ProvisionerPath string `yaml:"provisioner_path"`

	// Sequence is the ordered list of agent identifiers to install per host.
	Sequence []string `yaml:"sequence"`

	// PasswordEnv names the environment variable holding the WinRM password.
	PasswordEnv string `yaml:"password_env"`
}

// DefaultConfig returns the config used when no file is given.
func DefaultConfig() Config {
	return Config{
		Port:            0,
		UseSSL:          false,
		VerifySSL:       false,
		TimeoutSeconds:    600,
		Retries:           2,
		RetryDelaySeconds: 30,
		ProvisionerPath: `C:\Program Files\ws-provision\ws-provision.exe`,
		Sequence: []string{
			"elastic", "splunk", "zscaler", "winlogbeat",
			"nessus", "cbac", "bigfix", "crowdstrike",
		},
		PasswordEnv: "WS_WINRM_PASSWORD",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configs that cannot drive a run.
func (c *Config) Validate() error {
	if c.ProvisionerPath == "" {
		return fmt.Errorf("config: provisioner_path is required")
	}
	if len(c.Sequence) == 0 {
		return fmt.Errorf("config: sequence must name at least one agent")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: timeout_seconds must be positive")
	}
	if c.PasswordEnv == "" {
		return fmt.Errorf("config: password_env is required")
	}
	return nil
}

// Timeout returns the per-command bound as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the transport retry backoff unit as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Password resolves the WinRM password from the environment.
func (c *Config) Password() (string, error) {
	pw := os.Getenv(c.PasswordEnv)
	if pw == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.PasswordEnv)
	}
	return pw, nil
}
