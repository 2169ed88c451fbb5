// Package dbconfig loads the YAML fixture files that describe a set of
// tables for the radb CLI to create before running a schedule (§4.13).
package dbconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// AttributeSpec is one schema attribute as written in YAML.
type AttributeSpec struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

// TableSpec describes one table to create before a schedule runs.
type TableSpec struct {
	Name         string          `yaml:"name"`
	Attributes   []AttributeSpec `yaml:"attributes"`
	Multiversion bool            `yaml:"multiversion"`
}

// Fixture is a collection of tables, the unit a config file loads.
type Fixture struct {
	Tables []TableSpec `yaml:"tables"`
}

// Config is the top-level radb run configuration: which fixture to load
// and which isolation level to run the schedule under.
type Config struct {
	Isolation string  `yaml:"isolation"`
	Fixture   Fixture `yaml:"fixture"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dbconfig: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("dbconfig: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// ToAttributes converts a TableSpec's YAML attribute list into
// ra.Attribute values, rejecting unknown domain names.
func (t TableSpec) ToAttributes() ([]ra.Attribute, error) {
	attrs := make([]ra.Attribute, 0, len(t.Attributes))
	for _, a := range t.Attributes {
		d, err := parseDomain(a.Domain)
		if err != nil {
			return nil, fmt.Errorf("dbconfig: table %s attribute %s: %w", t.Name, a.Name, err)
		}
		attrs = append(attrs, ra.Attribute{Name: a.Name, Domain: d})
	}
	return attrs, nil
}

func parseDomain(name string) (ra.Domain, error) {
	switch name {
	case "integer", "int":
		return ra.Integer, nil
	case "floating", "float":
		return ra.Floating, nil
	case "string", "str":
		return ra.String, nil
	default:
		return 0, fmt.Errorf("unknown domain %q", name)
	}
}
