package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"zmapd/internal/server"
	"zmapd/pkg/types"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr           string         `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel       string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	PollIntervalMS int            `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	StatePath      string         `json:"state_path" yaml:"state_path" toml:"state_path"`
	DataDir        string         `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	Samtools       string         `json:"samtools" yaml:"samtools" toml:"samtools"`
	DNA            bool           `json:"dna" yaml:"dna" toml:"dna"`
	CORSOrigins    []string       `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	Sources        []types.Source `json:"sources" yaml:"sources" toml:"sources"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every source URL and rejects duplicate source names.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("source %d: missing url", i)
		}
		addr, err := server.ParseAddress(s.URL)
		if err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		if !server.Known(addr.Protocol) {
			return fmt.Errorf("source %d: unknown protocol %q", i, addr.Protocol)
		}
		if s.TimeoutSeconds < 0 {
			return fmt.Errorf("source %d: negative timeout", i)
		}
		name := s.Name
		if name == "" {
			name = s.URL
		}
		if seen[name] {
			return fmt.Errorf("duplicate source %q", name)
		}
		seen[name] = true
	}
	if c.PollIntervalMS < 0 {
		return fmt.Errorf("negative poll_interval_ms")
	}
	return nil
}

// PollInterval returns the configured poll tick, or 0 for the default.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
