// Package config implements the Configuration knobs of spec.md §6:
// capacity, derivation limits, queue sizing, worker count, priority decay,
// and the forward-instantiation/rule-derivation/skolemization feature
// flags. Grounded on internal/config/config.go's DefaultConfig-plus-Load-
// plus-env-override shape; generalized from codeNERD's many nested
// subsystem config structs to this engine's single flat knob set.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	Capacity              int     `yaml:"capacity"`
	MaxDerivationDepth     int     `yaml:"max_derivation_depth"`
	MaxDerivedTermWeight   int     `yaml:"max_derived_term_weight"`
	CommitQueueCapacity    int     `yaml:"commit_queue_capacity"`
	TaskQueueCapacity      int     `yaml:"task_queue_capacity"`
	MinInferenceWorkers    int     `yaml:"min_inference_workers"`
	DerivedPriorityDecay   float64 `yaml:"derived_priority_decay"`

	EnableForwardInstantiation bool `yaml:"enable_forward_instantiation"`
	EnableRuleDerivation       bool `yaml:"enable_rule_derivation"`
	EnableSkolemization        bool `yaml:"enable_skolemization"`

	RulesDir string `yaml:"rules_dir"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures internal/logging's bootstrap.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Capacity:             65536,
		MaxDerivationDepth:   10,
		MaxDerivedTermWeight: 150,
		CommitQueueCapacity:  1 << 20,
		TaskQueueCapacity:    1 << 20,
		MinInferenceWorkers:  2,
		DerivedPriorityDecay: 0.95,

		EnableForwardInstantiation: true,
		EnableRuleDerivation:       true,
		EnableSkolemization:        true,

		Logging: LoggingConfig{Debug: false},
	}
}

// Load reads a YAML config file, falling back to DefaultConfig if path
// does not exist. Environment overrides are applied after either path.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets a few high-value knobs be tuned without a config
// file, matching codeNERD's pattern of environment-variable overrides
// layered on top of whatever Load already parsed.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOEMA_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Capacity = n
		}
	}
	if v := os.Getenv("NOEMA_MIN_INFERENCE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinInferenceWorkers = n
		}
	}
	if v := os.Getenv("NOEMA_RULES_DIR"); v != "" {
		c.RulesDir = v
	}
	if v := os.Getenv("NOEMA_DEBUG"); v != "" {
		c.Logging.Debug = v == "1" || v == "true"
	}
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
