package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Compile a page in memory, boot it and print the rendered HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return err
	}
	src, err := os.ReadFile(file)
	if err != nil {
		return outputError("render", fmt.Errorf("reading page: %w", err))
	}

	engine, done, err := openMemoryEngine(cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx := compileContext(cmd)
	res, err := engine.CompileSource(ctx, file, src)
	if err != nil {
		return outputError("render", err)
	}
	if res.HasErrors() {
		return failWithDiagnostics("render", res.Diagnostics, res.Err())
	}
	p, err := engine.BootSource(ctx, file, src)
	if err != nil {
		return outputError("render", err)
	}
	return outputResult(CLIResult{Command: "render", Results: CLIRender{File: file, HTML: p.HTML()}})
}
