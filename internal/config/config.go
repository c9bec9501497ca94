package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all cortex configuration. Values come from
// ~/.claude-cortex/hooks.json with CORTEX_* environment overrides;
// everything is optional and falls back to Default().
type Config struct {
	MaxShortTerm          int     `mapstructure:"maxShortTerm"`
	MaxLongTerm           int     `mapstructure:"maxLongTerm"`
	DecayRate             float64 `mapstructure:"decayRate"`
	SalienceThreshold     float64 `mapstructure:"salienceThreshold"`
	ConsolidationInterval int     `mapstructure:"consolidationInterval"` // seconds
	Project               string  `mapstructure:"project"`
	MergeThreshold        float64 `mapstructure:"mergeThreshold"`
	BulkDeleteLimit       int     `mapstructure:"bulkDeleteLimit"`
	MinRetentionHours     float64 `mapstructure:"minRetentionHours"`

	Server ServerConfig `mapstructure:"server"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxShortTerm:          100,
		MaxLongTerm:           1000,
		DecayRate:             0.995,
		SalienceThreshold:     0.6,
		ConsolidationInterval: 4 * 60 * 60,
		MergeThreshold:        0.25,
		BulkDeleteLimit:       50,
		MinRetentionHours:     24,
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37707,
		},
	}
}

// DefaultDir returns the cortex state directory: ~/.claude-cortex.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".claude-cortex"), nil
}

// LegacyDir returns the pre-rename state directory: ~/.claude-memory.
func LegacyDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".claude-memory"), nil
}

// Load reads hooks.json from the cortex directory, merged over Default().
// A missing file is not an error.
func Load() (Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(filepath.Join(dir, "hooks.json"))
}

// LoadFrom reads the given JSON config file, merged over Default().
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("cortex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("maxShortTerm", cfg.MaxShortTerm)
	v.SetDefault("maxLongTerm", cfg.MaxLongTerm)
	v.SetDefault("decayRate", cfg.DecayRate)
	v.SetDefault("salienceThreshold", cfg.SalienceThreshold)
	v.SetDefault("consolidationInterval", cfg.ConsolidationInterval)
	v.SetDefault("project", cfg.Project)
	v.SetDefault("mergeThreshold", cfg.MergeThreshold)
	v.SetDefault("bulkDeleteLimit", cfg.BulkDeleteLimit)
	v.SetDefault("minRetentionHours", cfg.MinRetentionHours)
	v.SetDefault("server.bind", cfg.Server.Bind)
	v.SetDefault("server.port", cfg.Server.Port)

	if err := v.ReadInConfig(); err != nil {
		// Only a present-but-broken file is fatal; absent config is fine.
		if fileExists(path) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Interval returns the consolidation interval as a duration.
func (c Config) Interval() time.Duration {
	if c.ConsolidationInterval <= 0 {
		return 4 * time.Hour
	}
	return time.Duration(c.ConsolidationInterval) * time.Second
}

// ListenAddr returns the bind:port address string.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// ResolveProject returns the configured project override, or the base name of
// the working directory when unset. "*" is the global sentinel.
func (c Config) ResolveProject() string {
	if c.Project != "" {
		return c.Project
	}
	wd, err := os.Getwd()
	if err != nil || wd == "" {
		return "*"
	}
	return filepath.Base(wd)
}
