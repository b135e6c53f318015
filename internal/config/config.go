// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"arealloc/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Tolerance contains the numeric tolerances
	Tolerance ToleranceConfig `json:"tolerance"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`

	// Store contains run-store configuration
	Store StoreConfig `json:"store"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// ToleranceConfig contains the numeric tolerances. Values are decimal
// strings so the configured bounds survive round-tripping exactly.
type ToleranceConfig struct {
	// WeightAbsolute bounds |sum(membership weights) - 1| per unit
	WeightAbsolute string `json:"weight_absolute"`

	// MagnitudeAbsolute bounds |actual - expected| per stratum total
	MagnitudeAbsolute string `json:"magnitude_absolute"`

	// ShareRelative bounds share-sum drift from 1 per stratum
	ShareRelative string `json:"share_relative"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default output format (table, json, csv)
	DefaultFormat string `json:"default_format"`

	// ShowFindings includes findings in rendered output
	ShowFindings bool `json:"show_findings"`
}

// StoreConfig contains run-store settings
type StoreConfig struct {
	// Backend is the store backend (memory, sqlite)
	Backend string `json:"backend"`

	// Path is the sqlite database path
	Path string `json:"path"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".arealloc", "runs.db")

	return &Config{
		Version: "1.0",
		Tolerance: ToleranceConfig{
			WeightAbsolute:    "0.00001",
			MagnitudeAbsolute: "0.01",
			ShareRelative:     "0.001",
		},
		Output: OutputConfig{
			DefaultFormat: "table",
			ShowFindings:  true,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    dbPath,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
