package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tables carries optional overrides for the static lookup tables: instrument
// symbol → broker token and signal label → order quantity. Entries merge over
// the built-in defaults, they do not replace the whole table.
type Tables struct {
	Instruments      map[string]string `yaml:"instruments"`
	SignalQuantities map[string]int    `yaml:"signal_quantities"`
}

// LoadTables reads a tables YAML file. An empty path returns nil overrides,
// which leaves the built-in tables untouched.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tables: read %s: %w", path, err)
	}
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("tables: parse %s: %w", path, err)
	}
	for sig, qty := range t.SignalQuantities {
		if qty <= 0 {
			return nil, fmt.Errorf("tables: signal %q has non-positive quantity %d", sig, qty)
		}
	}
	return &t, nil
}
