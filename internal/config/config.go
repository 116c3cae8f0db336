// internal/config/config.go
//
// This package loads streamsynth.yaml, the per-project synthesis settings.
// Missing files fall back to defaults; the CLI layers flags and environment
// variables on top.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the configuration file looked up in the project directory.
	FileName = "streamsynth.yaml"

	defaultMaxSweeps = 64
	defaultCacheSize = 512
	defaultLogLevel  = "info"
	defaultOutputDir = "plans"
)

const defaultConfigYAML = `# streamsynth configuration
version: 1

# Software pipelining: compute a prime-pump schedule and rotating buffers.
pipelining: true

balance:
  # Append buffering inside the producing segment when it is legal.
  in_place: true
  max_sweeps: 64

primepump:
  # 0 means one round per segment.
  max_rounds: 0

rate_cache:
  size: 512

logging:
  level: info
  # file: streamsynth.log

output:
  dir: plans
`

// BalanceConfig tunes the multiplicity balancer.
type BalanceConfig struct {
	InPlace   bool `yaml:"in_place"`
	MaxSweeps int  `yaml:"max_sweeps"`
}

// PrimePumpConfig tunes the prime-pump scheduler.
type PrimePumpConfig struct {
	MaxRounds int `yaml:"max_rounds"`
}

// RateCacheConfig sizes the rate info cache.
type RateCacheConfig struct {
	Size int `yaml:"size"`
}

// LoggingConfig selects log level and destination.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// OutputConfig controls where plans are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Config models streamsynth.yaml.
type Config struct {
	Version    int             `yaml:"version"`
	Pipelining bool            `yaml:"pipelining"`
	Balance    BalanceConfig   `yaml:"balance"`
	PrimePump  PrimePumpConfig `yaml:"primepump"`
	RateCache  RateCacheConfig `yaml:"rate_cache"`
	Logging    LoggingConfig   `yaml:"logging"`
	Output     OutputConfig    `yaml:"output"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version:    1,
		Pipelining: true,
		Balance:    BalanceConfig{InPlace: true, MaxSweeps: defaultMaxSweeps},
		RateCache:  RateCacheConfig{Size: defaultCacheSize},
		Logging:    LoggingConfig{Level: defaultLogLevel},
		Output:     OutputConfig{Dir: defaultOutputDir},
	}
}

// Load reads the configuration at path. A missing file yields the defaults.
// Relative paths resolve against the file's directory either way.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			cfg.normalize(filepath.Dir(path))
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// LoadDir loads FileName from dir.
func LoadDir(dir string) (Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse decodes YAML onto the defaults, then normalizes and validates.
func Parse(data []byte, base string) (Config, error) {
	parsed := Default()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	parsed.applyDefaults()
	parsed.normalize(base)
	if err := parsed.Validate(); err != nil {
		return Config{}, err
	}
	return parsed, nil
}

// WriteDefault creates dir/streamsynth.yaml with the commented defaults
// unless the file already exists.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: ensure %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if c.Balance.MaxSweeps < 1 {
		return fmt.Errorf("balance.max_sweeps must be >= 1")
	}
	if c.PrimePump.MaxRounds < 0 {
		return fmt.Errorf("primepump.max_rounds must be >= 0")
	}
	if c.RateCache.Size < 1 {
		return fmt.Errorf("rate_cache.size must be >= 1")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Balance.MaxSweeps == 0 {
		c.Balance.MaxSweeps = defaultMaxSweeps
	}
	if c.RateCache.Size == 0 {
		c.RateCache.Size = defaultCacheSize
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = defaultOutputDir
	}
}

func (c *Config) normalize(base string) {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.File = resolvePath(base, c.Logging.File)
	c.Output.Dir = resolvePath(base, c.Output.Dir)
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) || base == "" {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
