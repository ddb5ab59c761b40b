// Package config provides configuration management for the window engine
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device backend identifiers
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// Default configuration values
const (
	DefaultDevice          = DeviceCPU
	DefaultPipelineWorkers = 0 // Auto-detect from CPU count
)

// Config represents the engine configuration
type Config struct {
	// Device selects the aggregation backend
	Device string `json:"device" yaml:"device"`

	// PipelineWorkers is the number of partition streams processed in
	// parallel (0 = auto-detect)
	PipelineWorkers int `json:"pipeline_workers" yaml:"pipeline_workers"`

	// EnforcePartitionLocality rejects batches whose first partition
	// continues the previous batch's last partition
	EnforcePartitionLocality bool `json:"enforce_partition_locality" yaml:"enforce_partition_locality"`

	// VerboseLogging enables per-expression debug logging
	VerboseLogging bool `json:"verbose_logging" yaml:"verbose_logging"`
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		Device:                   DefaultDevice,
		PipelineWorkers:          DefaultPipelineWorkers,
		EnforcePartitionLocality: true,
		VerboseLogging:           false,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Device != DeviceCPU && c.Device != DeviceGPU {
		return fmt.Errorf("Device must be %q or %q, got %q", DeviceCPU, DeviceGPU, c.Device)
	}

	if c.PipelineWorkers < 0 {
		return fmt.Errorf("PipelineWorkers must be non-negative, got %d", c.PipelineWorkers)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	if c.Device == "" {
		c.Device = DefaultDevice
	}

	// Boolean fields keep their zero values so an explicitly set false is
	// distinguishable from unset; use NewConfig() for boolean defaults.

	return c
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON and YAML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() Config {
	config := NewConfig()

	if val := os.Getenv("VELO_DEVICE"); val != "" {
		config.Device = val
	}

	if val := os.Getenv("VELO_PIPELINE_WORKERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.PipelineWorkers = parsed
		}
	}

	if val := os.Getenv("VELO_ENFORCE_PARTITION_LOCALITY"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.EnforcePartitionLocality = parsed
		}
	}

	if val := os.Getenv("VELO_VERBOSE_LOGGING"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.VerboseLogging = parsed
		}
	}

	return config
}
