package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExportRules writes the raw rule strings to path as a JSON array,
// preserving order. The file is replaced atomically.
func ExportRules(path string, rules []string) error {
	if rules == nil {
		rules = []string{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return atomicWrite(path, append(data, '\n'))
}

// ImportRules reads a JSON array of raw rule strings from path.
// The strings are returned unparsed so the caller can validate the whole set.
func ImportRules(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rules []string
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules file: %w", err)
	}
	return rules, nil
}

// atomicWrite writes data to path atomically (write + rename).
func atomicWrite(path string, data []byte) error {
	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}
