// Package config provides configuration loading and management for cardio.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/pkg/mpr"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// Store backends for rotation files
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// VolumeConfig describes one cine series to load
type VolumeConfig struct {
	// Label identifies the volume and names its rotation directory
	Label string `yaml:"label"`

	// Directory holds the frame files
	Directory string `yaml:"directory"`

	// Pattern is the per-frame file name with a ${frame} placeholder. Empty
	// loads every MetaImage file in Directory in numeric order.
	Pattern string `yaml:"pattern,omitempty"`

	// Visible volumes are listed to the front end
	Visible bool `yaml:"visible"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Server struct {
		// Addr is the HTTP listen address
		Addr string `yaml:"addr"`

		// AllowedOrigins for CORS; empty allows none
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Logging struct {
		// Level is debug, info or error
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Rotations struct {
		// Backend is local or s3
		Backend string `yaml:"backend"`

		// Root is the local rotations directory
		Root string `yaml:"root"`

		// Bucket, Region and Prefix locate rotation files on S3
		Bucket string `yaml:"bucket"`
		Region string `yaml:"region"`
		Prefix string `yaml:"prefix"`
	} `yaml:"rotations"`

	MPR struct {
		// OriginPolicy is unbounded or clamp
		OriginPolicy string `yaml:"originPolicy"`

		// WindowLevelPreset names the window new planes start with
		WindowLevelPreset string `yaml:"windowLevelPreset"`

		// IndexOrder and AngleUnits are used for new rotation sequences
		IndexOrder string `yaml:"indexOrder"`
		AngleUnits string `yaml:"angleUnits"`
	} `yaml:"mpr"`

	Cine struct {
		BPM float64 `yaml:"bpm"`
	} `yaml:"cine"`

	Sentry struct {
		// DSN enables error reporting when set
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`

	Volumes []VolumeConfig `yaml:"volumes"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8080"
	cfg.Logging.Level = "info"

	cfg.Rotations.Backend = BackendLocal
	cfg.Rotations.Root = "rotations"

	cfg.MPR.OriginPolicy = string(mpr.Unbounded)
	cfg.MPR.WindowLevelPreset = mpr.DefaultWindowLevel.Name
	cfg.MPR.IndexOrder = string(orientation.ITK)
	cfg.MPR.AngleUnits = string(orientation.Radians)

	cfg.Cine.BPM = 60
	cfg.Sentry.Environment = "development"

	cfg.Volumes = []VolumeConfig{}
	return cfg
}

// Validate checks every field that has a fixed set of values
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr must be set")
	}
	if _, err := logger.ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.Rotations.Backend {
	case BackendLocal:
		if c.Rotations.Root == "" {
			return errors.New("rotations root must be set for the local backend")
		}
	case BackendS3:
		if c.Rotations.Bucket == "" {
			return errors.New("rotations bucket must be set for the s3 backend")
		}
	default:
		return errors.Errorf("unknown rotations backend %q", c.Rotations.Backend)
	}

	if _, err := mpr.ParseOriginPolicy(c.MPR.OriginPolicy); err != nil {
		return err
	}
	if _, ok := mpr.PresetByName(c.MPR.WindowLevelPreset); !ok {
		return errors.Errorf("unknown window/level preset %q", c.MPR.WindowLevelPreset)
	}
	if _, err := orientation.ParseAxisConvention(c.MPR.IndexOrder); err != nil {
		return err
	}
	if _, err := orientation.ParseAngleUnits(c.MPR.AngleUnits); err != nil {
		return err
	}
	if c.Cine.BPM <= 0 {
		return errors.Errorf("cine bpm must be positive, got %g", c.Cine.BPM)
	}

	labels := map[string]bool{}
	for i, v := range c.Volumes {
		if err := models.ValidateLabel(v.Label); err != nil {
			return errors.Wrapf(err, "volume %d", i)
		}
		if labels[v.Label] {
			return errors.Errorf("volume label %s is used twice", v.Label)
		}
		labels[v.Label] = true
		if v.Directory == "" {
			return errors.Errorf("volume %s has no directory", v.Label)
		}
		if v.Pattern != "" {
			if err := models.ValidateFramePattern(v.Pattern); err != nil {
				return errors.Wrapf(err, "volume %s", v.Label)
			}
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
