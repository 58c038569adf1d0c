package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with all defaults applied and no file
// loaded. API keys come from TWELVE_DATA_API_KEY, FRED_API_KEY and
// NARRATIVE_API_KEY when set.
func Default() *Config {
	cfg := &Config{}
	cfg.TwelveData.APIKey = os.Getenv("TWELVE_DATA_API_KEY")
	cfg.FRED.APIKey = os.Getenv("FRED_API_KEY")
	cfg.Narrative.APIKey = os.Getenv("NARRATIVE_API_KEY")
	cfg.applyDefaults()
	return cfg
}
