package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/pagelogic"
)

var flagForce bool

var compileCmd = &cobra.Command{
	Use:   "compile [dir]",
	Short: "Compile every page under a directory into the database",
	Long:  "Discovers pages, compiles the changed ones and stores scopes, values, dependency edges, diagnostics and descriptors. Exits non-zero when any page has errors.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and compile from scratch")
}

func runCompile(cmd *cobra.Command, args []string) error {
	start := time.Now()
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}

	if flagForce {
		if err := os.Remove(cfg.Database); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", cfg.Database)
	}

	engine, done, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer done()

	if err := engine.CompileDirectory(compileContext(cmd), targetDir); err != nil {
		return outputError("compile", fmt.Errorf("compiling: %w", err))
	}

	ds, errCount, err := collectDiagnostics(engine, targetDir)
	if err != nil {
		return outputError("compile", err)
	}
	if err := outputResult(CLIResult{Command: "compile", Results: ds}); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Compiled %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.Database)

	if errCount > 0 {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "%d page(s) failed to compile\n", errCount)
		return fmt.Errorf("%d page(s) failed to compile", errCount)
	}
	return nil
}

// collectDiagnostics gathers the diagnostics of every stored page under
// root and counts the pages with errors.
func collectDiagnostics(engine *pagelogic.Engine, root string) ([]CLIDiagnostic, int, error) {
	paths, err := engine.ListPages(root)
	if err != nil {
		return nil, 0, err
	}
	q := engine.Query()
	all := []CLIDiagnostic{}
	failed := 0
	for _, path := range paths {
		p, err := q.Page(path)
		if err != nil {
			return nil, 0, err
		}
		if p == nil {
			continue
		}
		if p.ErrorCount > 0 {
			failed++
		}
		ds, err := q.Diagnostics(path)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, diagnosticsToCLI(path, ds)...)
	}
	return all, failed, nil
}

// compileContext returns the command context, or a background one when the
// command runs outside Execute.
func compileContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
