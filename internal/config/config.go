package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"extendaudit/internal/ruleconfig"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the wall-clock budget of one run.
const DefaultTimeout = 300 * time.Second

type Config struct {
	Run struct {
		Workers int           `yaml:"workers"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"run"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	// Rules holds per-rule overrides in the layered configuration format.
	Rules ruleconfig.Layer `yaml:"rules"`
	// DisabledRules is a shorthand for `enabled: false`.
	DisabledRules []string `yaml:"disabled_rules"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Run.Timeout = DefaultTimeout
	cfg.Log.Level = "info"
	cfg.Storage.Path = "extendaudit.db"
	return &cfg
}

// LoadConfig reads path on top of the defaults and applies EXTENDAUDIT_*
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			var raw struct {
				Rules map[string]interface{} `yaml:"rules"`
			}
			if err := yaml.Unmarshal(file, &raw); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			if raw.Rules != nil {
				if err := ruleconfig.ValidateDocument(raw.Rules); err != nil {
					return nil, fmt.Errorf("invalid rules in %s: %w", path, err)
				}
			}
		}
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("EXTENDAUDIT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("EXTENDAUDIT_WORKERS: %w", err)
		}
		cfg.Run.Workers = n
	}
	if v := os.Getenv("EXTENDAUDIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("EXTENDAUDIT_TIMEOUT: %w", err)
		}
		cfg.Run.Timeout = d
	}
	if v := os.Getenv("EXTENDAUDIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EXTENDAUDIT_DISABLED_RULES"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.DisabledRules = append(cfg.DisabledRules, id)
			}
		}
	}

	return cfg, nil
}

// Layers returns the rule configuration layers of cfg: the file's rules
// first, then the disabled-rule shorthand.
func (c *Config) Layers() []ruleconfig.Layer {
	var layers []ruleconfig.Layer
	if len(c.Rules) > 0 {
		layers = append(layers, c.Rules)
	}
	if len(c.DisabledRules) > 0 {
		off := false
		layer := make(ruleconfig.Layer, len(c.DisabledRules))
		for _, id := range c.DisabledRules {
			p := layer[id]
			p.Enabled = &off
			layer[id] = p
		}
		layers = append(layers, layer)
	}
	return layers
}

// LoadLayers reads several rule files as successive layers. Each file is a
// mapping of rule id to override, or a full config with a `rules` key.
func LoadLayers(paths ...string) ([]ruleconfig.Layer, error) {
	var layers []ruleconfig.Layer
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule config: %w", err)
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse rule config %s: %w", path, err)
		}
		var raw interface{} = map[string]interface{}{}
		if doc != nil {
			raw = doc
		}
		if rules, ok := doc["rules"]; ok && rules != nil {
			raw = rules
		}
		if err := ruleconfig.ValidateDocument(raw); err != nil {
			return nil, fmt.Errorf("invalid rule config %s: %w", path, err)
		}

		// Re-encode the selected subtree so it decodes into typed overrides.
		encoded, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rule config %s: %w", path, err)
		}
		var layer ruleconfig.Layer
		if err := yaml.Unmarshal(encoded, &layer); err != nil {
			return nil, fmt.Errorf("failed to parse rule config %s: %w", path, err)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
