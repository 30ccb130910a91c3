// Package config loads the optional run configuration for mpeg4mudex.
//
// Configuration comes from a single YAML file named by the --config
// flag or the MPEG4MUDEX_CONFIG environment variable (the flag wins).
// There is no automatic discovery and no fallback file: with neither
// set, Default() applies. Command-line flags override file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is given.
const EnvVar = "MPEG4MUDEX_CONFIG"

type Config struct {
	// Strip lists the box tags to remove, each exactly four bytes.
	Strip []string `yaml:"strip"`

	// Verify controls the post-write verification pass.
	Verify *bool `yaml:"verify,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

func Default() *Config {
	verify := true
	return &Config{
		Strip:  []string{"meta"},
		Verify: &verify,
	}
}

// Load reads the config file at flagPath, or at $MPEG4MUDEX_CONFIG if
// flagPath is empty. With neither set it returns Default().
func Load(flagPath string) (*Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Strip) == 0 {
		return fmt.Errorf("strip list is empty")
	}
	for _, tag := range c.Strip {
		if len(tag) != 4 {
			return fmt.Errorf("strip tag %q is not four bytes", tag)
		}
	}
	return nil
}
