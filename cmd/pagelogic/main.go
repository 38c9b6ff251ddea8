package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/pagelogic"
	"github.com/jward/pagelogic/internal/config"
	"github.com/jward/pagelogic/scripts"
)

var (
	flagConfig     string
	flagDB         string
	flagFormat     string
	flagScriptsDir string
)

// cfg is loaded by the root command before any subcommand runs.
var cfg *config.Config

// stdout is where results are written.
var stdout io.Writer = os.Stdout

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pagelogic",
	Short:         "Compile reactive HTML pages into scope descriptors",
	Long:          "pagelogic compiles HTML annotated with ${expr} interpolations and :name=\"expr\" attributes into reactive scope trees, stores them in SQLite and renders them server-side.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: $PAGELOGIC_CONFIG or ./pagelogic.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "helper scripts directory (overrides config)")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the project config and applies flag overrides.
func loadConfig() error {
	c, err := config.Load(flagConfig, os.Getenv)
	if err != nil {
		return err
	}
	if flagDB != "" {
		abs, err := filepath.Abs(flagDB)
		if err != nil {
			return fmt.Errorf("resolving database path %q: %w", flagDB, err)
		}
		c.Database = abs
	}
	if flagScriptsDir != "" {
		abs, err := filepath.Abs(flagScriptsDir)
		if err != nil {
			return fmt.Errorf("resolving scripts path %q: %w", flagScriptsDir, err)
		}
		c.Scripts = abs
	}
	cfg = c
	return nil
}

// newLogger builds the logger described by the logging config. The returned
// closer releases a log file, if one was opened.
func newLogger(c config.LoggingConfig) (func(string, ...any), func() error, error) {
	nop := func() error { return nil }
	if c.Quiet {
		return func(string, ...any) {}, nop, nil
	}
	switch c.Output {
	case "", "stderr":
		return log.New(os.Stderr, "", log.LstdFlags).Printf, nop, nil
	case "stdout":
		return log.New(os.Stdout, "", log.LstdFlags).Printf, nop, nil
	}
	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags).Printf, f.Close, nil
}

// engineOptions translates the config into engine options. Without a
// scripts directory on disk the built-in helpers are used.
func engineOptions(c *config.Config, logf func(string, ...any)) []pagelogic.Option {
	opts := []pagelogic.Option{
		pagelogic.WithParallel(c.Parallel),
		pagelogic.WithExtensions(c.Extensions...),
		pagelogic.WithGlobals(c.Globals...),
		pagelogic.WithLogger(logf),
	}
	if info, err := os.Stat(c.Scripts); err == nil && info.IsDir() {
		return append(opts, pagelogic.WithScriptsDir(c.Scripts))
	}
	return append(opts, pagelogic.WithScriptsFS(scripts.FS))
}

// openEngine opens an engine over the configured database, creating its
// directory if needed. Call the returned function to close it.
func openEngine(c *config.Config) (*pagelogic.Engine, func(), error) {
	logf, closeLog, err := newLogger(c.Logging)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(c.Database), 0o755); err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(c.Database), err)
	}
	e, err := pagelogic.New(c.Database, engineOptions(c, logf)...)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, func() {
		e.Close()
		closeLog()
	}, nil
}

// openMemoryEngine opens an engine whose store lives in memory, for commands
// that compile without persisting.
func openMemoryEngine(c *config.Config) (*pagelogic.Engine, func(), error) {
	mem := *c
	mem.Database = ":memory:"
	logf, closeLog, err := newLogger(c.Logging)
	if err != nil {
		return nil, nil, err
	}
	e, err := pagelogic.New(mem.Database, engineOptions(&mem, logf)...)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, func() {
		e.Close()
		closeLog()
	}, nil
}

// resolveTargetDir returns the absolute path of the directory to compile,
// defaulting to the configured pages directory.
func resolveTargetDir(args []string) (string, error) {
	dir := cfg.Pages
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}
