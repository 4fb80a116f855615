// Package config loads the optional racelab YAML configuration file.
//
// A file is checked twice: first against the embedded CUE schema, which
// catches out-of-range numbers, malformed durations and misspelled keys
// with a line and column, then decoded into File with unknown fields
// rejected. Command-line flags override anything set here.
//
// Example:
//
//	seed: 42
//	trials: 50
//	parallel: 4
//	database: runs.db
//	scenarios:
//	  lost-update:
//	    params:
//	      actors: 16
//	  lock-leak:
//	    timeout: 500ms
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// File is a decoded configuration file. Zero values mean "not set".
type File struct {
	Seed      *uint64                   `yaml:"seed"`
	Trials    int                       `yaml:"trials"`
	Parallel  int                       `yaml:"parallel"`
	Database  string                    `yaml:"database"`
	Scenarios map[string]ScenarioConfig `yaml:"scenarios"`
}

// ScenarioConfig holds per-scenario overrides.
type ScenarioConfig struct {
	Timeout Duration          `yaml:"timeout"`
	Params  map[string]string `yaml:"params"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads, validates and decodes the file at path. An empty path
// returns an empty File.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes configuration data. name is used in error
// positions.
func Parse(name string, data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &File{}, nil
	}
	if err := validateSchema(name, data); err != nil {
		return nil, err
	}

	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// Scenario returns the overrides for the named scenario, or a zero value.
func (f *File) Scenario(name string) ScenarioConfig {
	if f == nil {
		return ScenarioConfig{}
	}
	return f.Scenarios[name]
}

// Check reports the first configured scenario that known rejects. Names
// are checked in sorted order so the error is stable.
func (f *File) Check(known func(name string) bool) error {
	for _, name := range slices.Sorted(maps.Keys(f.Scenarios)) {
		if !known(name) {
			return &ConfigError{Field: "scenarios." + name, Message: "no such scenario"}
		}
	}
	return nil
}

// MergeParams layers overrides on top of base. Neither map is modified.
func MergeParams(base, overrides map[string]string) map[string]string {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overrides))
	maps.Copy(out, base)
	maps.Copy(out, overrides)
	return out
}
