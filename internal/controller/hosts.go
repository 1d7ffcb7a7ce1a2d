package controller

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Host is one row of the fleet host list.
type Host struct {
	Hostname string
	Username string // DOMAIN\user
}

// LoadHosts reads a CSV host list of `hostname,username` rows. A header row
// starting with "hostname" is skipped; blank lines and #-comments are ignored.
func LoadHosts(path string) ([]Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open host list: %w", err)
	}
	defer f.Close()
	return parseHosts(f)
}

func parseHosts(r io.Reader) ([]Host, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var hosts []Host
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("host list: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "hostname") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("host list line %d: want hostname,username, got %d fields", line, len(rec))
		}
		h := Host{
			Hostname: strings.TrimSpace(rec[0]),
			Username: strings.TrimSpace(rec[1]),
		}
		if h.Hostname == "" || h.Username == "" {
			return nil, fmt.Errorf("host list line %d: empty hostname or username", line)
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("host list is empty")
	}
	return hosts, nil
}
