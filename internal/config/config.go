// Package config loads the YAML settings that drive stacking and output.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mrsinham/dcmstack/internal/dcmmeta"
	"github.com/mrsinham/dcmstack/internal/stack"
	"github.com/mrsinham/dcmstack/internal/util"
	"github.com/mrsinham/dcmstack/internal/volume"
)

// DefaultExclude drops identifying and bulky attributes from embedded metadata.
var DefaultExclude = []string{
	"Patient", "Physician", "Operator", "Date", "Birth", "Address", "Institution",
	"Station", "SiteName", "Age", "Comment", "Phone", "Telephone", "Insurance",
	"Religious", "Language", "Military", "MedicalRecord", "Ethnic", "Occupation",
	"UID", "StudyDescription", "DeviceSerialNumber", "RequestedProcedureDescription",
	"PerformedProcedureStepDescription", "PerformedProcedureStepID",
}

// OrderingConfig selects the attribute ordering a time or vector axis.
type OrderingConfig struct {
	// Key is the DICOM keyword, e.g. EchoTime.
	Key string `yaml:"key"`
	// Abs lists the expected values in axis order. Empty means sort by value.
	Abs []any `yaml:"abs,omitempty"`
	// AsText compares Abs entries and slice values as text.
	AsText bool `yaml:"as_text,omitempty"`
}

// StackConfig holds the grid assembly settings.
type StackConfig struct {
	AllowDummies     bool            `yaml:"allow_dummies"`
	TimeOrder        *OrderingConfig `yaml:"time_order,omitempty"`
	VectorOrder      *OrderingConfig `yaml:"vector_order,omitempty"`
	SpacingTolerance float64         `yaml:"spacing_tolerance"`
	Workers          int             `yaml:"workers"`
}

// OutputConfig holds the NIfTI output settings.
type OutputConfig struct {
	// VoxelOrder is the three letter orientation the voxels are reordered to.
	// Empty keeps the stacked order.
	VoxelOrder string  `yaml:"voxel_order"`
	EmbedMeta  bool    `yaml:"embed_meta"`
	DummyFill  float64 `yaml:"dummy_fill"`
}

// MetaConfig holds the key patterns applied to embedded metadata.
type MetaConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Config is the complete configuration file.
type Config struct {
	Stack  StackConfig  `yaml:"stack"`
	Output OutputConfig `yaml:"output"`
	Meta   MetaConfig   `yaml:"meta"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Stack.SpacingTolerance = stack.DefaultSpacingTolerance
	cfg.Output.VoxelOrder = "LAS"
	cfg.Output.EmbedMeta = false
	cfg.Output.DummyFill = stack.DefaultDummyFill
	cfg.Meta.Exclude = append([]string(nil), DefaultExclude...)
	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks the voxel order, ordering keys and metadata patterns.
func (c *Config) Validate() error {
	if c.Output.VoxelOrder != "" {
		if _, err := volume.ParseOrder(c.Output.VoxelOrder); err != nil {
			return fmt.Errorf("output.voxel_order: %w", err)
		}
	}
	orderings := []struct {
		name string
		o    *OrderingConfig
	}{
		{"stack.time_order", c.Stack.TimeOrder},
		{"stack.vector_order", c.Stack.VectorOrder},
	}
	for _, entry := range orderings {
		if entry.o == nil {
			continue
		}
		if _, err := util.GetTagByName(entry.o.Key); err != nil {
			return fmt.Errorf("%s.key: %w", entry.name, err)
		}
	}
	if c.Stack.SpacingTolerance < 0 {
		return fmt.Errorf("stack.spacing_tolerance must be >= 0, got %g", c.Stack.SpacingTolerance)
	}
	if _, err := c.KeyFilter(); err != nil {
		return fmt.Errorf("meta: %w", err)
	}
	return nil
}

// StackConfig converts the stack and output sections into an engine
// configuration. Ordering keys are normalized to their DICOM keyword.
func (c *Config) StackConfig() stack.Config {
	fill := c.Output.DummyFill
	return stack.Config{
		AllowDummies:     c.Stack.AllowDummies,
		TimeOrder:        c.Stack.TimeOrder.ordering(),
		VectorOrder:      c.Stack.VectorOrder.ordering(),
		DummyFill:        &fill,
		SpacingTolerance: c.Stack.SpacingTolerance,
	}
}

func (o *OrderingConfig) ordering() *stack.Ordering {
	if o == nil || o.Key == "" {
		return nil
	}
	key := o.Key
	if info, err := util.GetTagByName(key); err == nil {
		key = info.Name
	}
	out := &stack.Ordering{Key: key, Abs: o.Abs}
	if o.AsText {
		out.Coerce = stack.CoerceText
	}
	return out
}

// KeyFilter builds the metadata key predicate from the meta section.
func (c *Config) KeyFilter() (func(string) bool, error) {
	return dcmmeta.KeyRegexFilter(c.Meta.Include, c.Meta.Exclude)
}
