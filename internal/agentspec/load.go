package agentspec

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Catalog is a set of agent specs keyed by a short identifier
// (e.g. "nessus", "crowdstrike").
type Catalog struct {
	Agents map[string]*Spec `yaml:"agents"`
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadCatalog reads a YAML catalog file, expands ${VAR} placeholders from the
// resolver, and validates every spec. Placeholders keep secrets (enrollment
// tokens, service accounts) out of the catalog file itself.
func LoadCatalog(path string, secrets map[string]string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	expanded, err := ExpandSecrets(string(data), secrets)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	if err := yaml.Unmarshal([]byte(expanded), &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for key, spec := range cat.Agents {
		if spec == nil {
			return nil, fmt.Errorf("catalog entry %q is empty", key)
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", key, err)
		}
	}

	return &cat, nil
}

// ExpandSecrets substitutes every ${VAR} in text with the resolver value.
// A placeholder with no value is an error: a spec must never run with an
// empty enrollment token silently spliced in.
func ExpandSecrets(text string, secrets map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := secrets[name]; ok && v != "" {
			return v
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved secret placeholders: %v", missing)
	}
	return out, nil
}
