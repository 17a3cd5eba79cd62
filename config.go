package texatlas

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HitBoxConfig selects the default hit-box algorithm and where computed hit
// boxes are persisted.
type HitBoxConfig struct {
	// Algorithm is "none", "simple" or "detailed". Default: "simple"
	Algorithm string `yaml:"algorithm"`
	// Detail tunes the detailed algorithm. Default: 4.5
	Detail float64 `yaml:"detail"`
	// CacheFile is loaded by NewContext and saved by Context.Close when set.
	// A ".gz" suffix selects gzip.
	CacheFile string `yaml:"cache_file"`
	// SaveIndent pretty-prints the saved cache with that many spaces; 0
	// writes compact JSON.
	SaveIndent int `yaml:"save_indent"`
}

// Config is the top-level configuration of a Context.
type Config struct {
	Atlas  AtlasConfig  `yaml:"atlas"`
	HitBox HitBoxConfig `yaml:"hitbox"`

	// HotReload watches loaded files and re-uploads them on change.
	HotReload bool `yaml:"hot_reload"`
	// HotReloadDebounce is how long a file must stay quiet before it is
	// reloaded. Default: 100ms
	HotReloadDebounce time.Duration `yaml:"hot_reload_debounce"`

	// Debug enables stderr diagnostics.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Atlas: DefaultAtlasConfig(),
		HitBox: HitBoxConfig{
			Algorithm: "simple",
			Detail:    DefaultHitBoxDetail,
		},
		HotReloadDebounce: 100 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Atlas.Validate(); err != nil {
		return err
	}
	if _, err := HitBoxAlgorithmByName(c.HitBox.Algorithm, c.HitBox.Detail); err != nil {
		return &ConfigError{Field: "HitBox.Algorithm", Reason: fmt.Sprintf("unknown algorithm %q", c.HitBox.Algorithm)}
	}
	if c.HitBox.Detail <= 0 {
		return &ConfigError{Field: "HitBox.Detail", Reason: "must be positive"}
	}
	if c.HitBox.SaveIndent < 0 {
		return &ConfigError{Field: "HitBox.SaveIndent", Reason: "must be non-negative"}
	}
	if c.HotReloadDebounce < 0 {
		return &ConfigError{Field: "HotReloadDebounce", Reason: "must be non-negative"}
	}
	return nil
}

// HitBoxAlgorithm returns the configured default algorithm.
func (c *Config) HitBoxAlgorithm() HitBoxAlgorithm {
	algo, err := HitBoxAlgorithmByName(c.HitBox.Algorithm, c.HitBox.Detail)
	if err != nil {
		return SimpleHitBox{}
	}
	return algo
}

// ParseConfig decodes YAML on top of DefaultConfig, so omitted keys keep
// their defaults, and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("texatlas: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("texatlas: load config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("texatlas: load config %s: %w", path, err)
	}
	return cfg, nil
}
