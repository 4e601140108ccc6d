package npdata

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type npiEntry struct {
	NPI string `json:"npi"`
}

// LoadNPIFilter reads an NPI allowlist for Query.NPIIn. The file is either a
// JSON array of objects with an "npi" string field, or plain text with one
// NPI per line (blank lines and lines starting with # are ignored).
func LoadNPIFilter(path string) (map[NPI]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read NPI file: %w", err)
	}

	var raw []string
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []npiEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("parse NPI file: %w", err)
		}
		for _, e := range entries {
			raw = append(raw, e.NPI)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("parse NPI file: %w", err)
		}
	}

	filter := make(map[NPI]bool, len(raw))
	for _, s := range raw {
		npi, err := ParseNPI(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid NPI %q: %w", s, err)
		}
		filter[npi] = true
	}
	return filter, nil
}
