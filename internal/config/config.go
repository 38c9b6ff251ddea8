// Package config loads the pagelogic.yaml project file.
package config

import (
	"strings"
	"time"
)

// Config is the project configuration.
type Config struct {
	BaseDir    string        `yaml:"-"` // directory containing the config file
	Pages      string        `yaml:"pages"`
	Database   string        `yaml:"database"`
	Scripts    string        `yaml:"scripts"`
	Extensions []string      `yaml:"extensions"`
	Globals    []string      `yaml:"globals"` // extra global names, never qualified
	Parallel   bool          `yaml:"parallel"`
	Watch      WatchConfig   `yaml:"watch"`
	Logging    LoggingConfig `yaml:"logging"`
}

// WatchConfig holds settings of the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Output string `yaml:"output"` // stderr, stdout or a file path
	Quiet  bool   `yaml:"quiet"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Pages:      ".",
		Database:   ".pagelogic.db",
		Scripts:    "scripts",
		Extensions: []string{".html"},
		Parallel:   true,
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Output: "stderr",
		},
	}
}

// IsPage reports whether path has one of the configured page extensions.
func (c *Config) IsPage(path string) bool {
	for _, ext := range c.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
