package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/pagelogic/internal/expr"
)

// FileName is the project file searched for in the working directory.
const FileName = "pagelogic.yaml"

// Load reads configuration from a file with ENV interpolation. If
// configPath is empty, PAGELOGIC_CONFIG and then ./pagelogic.yaml are tried;
// when neither exists the defaults are returned, rooted at the working
// directory.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Defaults()
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: working directory: %w", err)
		}
		cfg.BaseDir = wd
		cfg.resolvePaths()
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(absPath)
	cfg.resolvePaths()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes relative paths relative to BaseDir.
func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.Pages, &c.Database, &c.Scripts} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.BaseDir, *p)
		}
	}
	out := c.Logging.Output
	if out != "" && out != "stderr" && out != "stdout" && !filepath.IsAbs(out) {
		c.Logging.Output = filepath.Join(c.BaseDir, out)
	}
}

// Validate checks cfg for errors.
func Validate(cfg *Config) error {
	var errs []string
	if len(cfg.Extensions) == 0 {
		errs = append(errs, "extensions: at least one page extension is required")
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Sprintf("extensions[%d]: %q must start with a dot", i, ext))
		}
	}
	for i, g := range cfg.Globals {
		if !expr.IsIdentifierName(g) {
			errs = append(errs, fmt.Sprintf("globals[%d]: %q is not an identifier", i, g))
		}
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, fmt.Sprintf("watch.debounce: %s must not be negative", cfg.Watch.Debounce))
	}
	if cfg.Database == "" {
		errs = append(errs, "database: path is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// resolveConfigPath finds the config file to use, or "" for none.
// Search order: explicit path > PAGELOGIC_CONFIG env > ./pagelogic.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	if envPath := getenv("PAGELOGIC_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("PAGELOGIC_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName, nil
	}
	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}
