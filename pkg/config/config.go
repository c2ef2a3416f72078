package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the authority server
type Config struct {
	Port         int    `koanf:"port"`
	SnapshotPath string `koanf:"snapshot"`
	Watch        bool   `koanf:"watch"`
	SaveQuietSec int    `koanf:"save_quiet_sec"`
	SaveMaxSec   int    `koanf:"save_max_sec"`
	JSONLogs     bool   `koanf:"json_logs"`
	VerboseCnt   int    `koanf:"verbose"`

	LayoutWidth        float64 `koanf:"layout_width"`
	LayoutHeight       float64 `koanf:"layout_height"`
	LayoutBaseDistance float64 `koanf:"layout_base_distance"`
	LayoutSeed         int64   `koanf:"layout_seed"`
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"port":                 8080,
		"snapshot":             "valuegraph.json",
		"watch":                false,
		"save_quiet_sec":       2,
		"save_max_sec":         30,
		"json_logs":            false,
		"verbose":              0,
		"layout_width":         1280.0,
		"layout_height":        800.0,
		"layout_base_distance": 120.0,
		"layout_seed":          int64(1),
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - valuegraph.toml
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider("valuegraph.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: VALUEGRAPH_ (e.g., VALUEGRAPH_PORT=9090)
	if err := k.Load(env.Provider("VALUEGRAPH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "VALUEGRAPH_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
