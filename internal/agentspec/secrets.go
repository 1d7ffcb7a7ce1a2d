package agentspec

import (
	"bufio"
	"os"
	"strings"
)

// LoadSecretsEnv reads KEY=VALUE pairs from a secrets.env file. Lines starting
// with # are ignored. A missing file is not an error: secrets may equally come
// from the process environment, injected by the invoking controller.
func LoadSecretsEnv(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return out, nil
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out[k] = v
		}
	}
	return out, s.Err()
}
