// Package config loads the optional YAML configuration of the onstage tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// DefaultFileName is looked up when no config path is given.
const DefaultFileName = "onstage.yaml"

// ErrNotFound is returned when no config file matches the search path.
var ErrNotFound = errors.New("config: file not found")

// Config holds the tool settings. Zero fields take defaults.
type Config struct {
	SampleRate       float64 `yaml:"sample_rate,omitempty"`
	BlockSize        int     `yaml:"block_size,omitempty"`
	RecordingsFolder string  `yaml:"recordings_folder,omitempty"`
	RecorderName     string  `yaml:"recorder_name,omitempty"`
	SyncMode         *bool   `yaml:"sync_mode,omitempty"`
	PitchStrategy    string  `yaml:"pitch_strategy,omitempty"`
	LogLevel         string  `yaml:"log_level,omitempty"`
	Chain            string  `yaml:"chain,omitempty"`
	Monitor          bool    `yaml:"monitor,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	sync := true

	return &Config{
		SampleRate:    48000,
		BlockSize:     256,
		RecorderName:  "Untitled",
		SyncMode:      &sync,
		PitchStrategy: "hps",
		LogLevel:      "info",
	}
}

// SyncEnabled reports the sync mode, true when unset.
func (c *Config) SyncEnabled() bool {
	return c.SyncMode == nil || *c.SyncMode
}

// Load reads name from the search path and fills missing fields with
// defaults. An empty name looks for DefaultFileName and returns the
// defaults when none exists.
func Load(name string) (*Config, error) {
	explicit := name != ""
	if !explicit {
		name = DefaultFileName
	}

	path, err := Find(name)
	if errors.Is(err, ErrNotFound) && !explicit {
		return Default(), nil
	}

	if err != nil {
		return nil, err
	}

	return LoadFile(path)
}

// LoadFile decodes the YAML file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := Default()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Find resolves name: absolute paths and "~/" paths are used as given,
// other names are looked up in the working directory and then in
// ~/.config/onstage.
func Find(name string) (string, error) {
	if strings.HasPrefix(name, "~") {
		expanded, err := homedir.Expand(name)
		if err != nil {
			return "", fmt.Errorf("config: expand %s: %w", name, err)
		}

		name = expanded
	}

	if filepath.IsAbs(name) {
		if fileExists(name) {
			return name, nil
		}

		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var candidates []string

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, name))
	}

	if home, err := homedir.Dir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "onstage", name))
	}

	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (c *Config) normalize() error {
	d := Default()

	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}

	if c.BlockSize <= 0 {
		c.BlockSize = d.BlockSize
	}

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	c.PitchStrategy = strings.ToLower(strings.TrimSpace(c.PitchStrategy))
	switch c.PitchStrategy {
	case "":
		c.PitchStrategy = d.PitchStrategy
	case "hps", "yin":
	default:
		return fmt.Errorf("unknown pitch_strategy %q", c.PitchStrategy)
	}

	if c.RecordingsFolder != "" {
		folder, err := homedir.Expand(c.RecordingsFolder)
		if err != nil {
			return fmt.Errorf("expand recordings_folder: %w", err)
		}

		c.RecordingsFolder = folder
	}

	if c.Chain != "" {
		chain, err := homedir.Expand(c.Chain)
		if err != nil {
			return fmt.Errorf("expand chain: %w", err)
		}

		c.Chain = chain
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
