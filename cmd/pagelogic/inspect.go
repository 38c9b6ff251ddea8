package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/pagelogic"
	"github.com/jward/pagelogic/internal/descriptor"
)

var flagEmit string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the compiled descriptor of a page",
	Long:  "Compiles a page in memory and prints its scope descriptor, either as JSON or as the JavaScript initializer call consumed by the client runtime.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&flagEmit, "emit", "json", "descriptor form: json|js")
}

func runInspect(cmd *cobra.Command, args []string) error {
	if flagEmit != "json" && flagEmit != "js" {
		return fmt.Errorf("invalid --emit %q: must be json or js", flagEmit)
	}
	file, err := resolveFilePath(args[0])
	if err != nil {
		return err
	}
	src, err := os.ReadFile(file)
	if err != nil {
		return outputError("inspect", fmt.Errorf("reading page: %w", err))
	}

	engine, done, err := openMemoryEngine(cfg)
	if err != nil {
		return err
	}
	defer done()

	res, err := engine.CompileSource(compileContext(cmd), file, src)
	if err != nil {
		return outputError("inspect", err)
	}
	if res.HasErrors() {
		return failWithDiagnostics("inspect", res.Diagnostics, res.Err())
	}

	if flagEmit == "js" {
		_, err := fmt.Fprint(stdout, descriptor.Source(res.Descriptor))
		return err
	}
	data, err := descriptor.Encode(res.Descriptor)
	if err != nil {
		return outputError("inspect", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return outputError("inspect", err)
	}
	buf.WriteByte('\n')
	_, err = stdout.Write(buf.Bytes())
	return err
}

// failWithDiagnostics prints compile diagnostics in the selected format and
// returns err.
func failWithDiagnostics(command string, ds []pagelogic.Diagnostic, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		formatDiagnosticsText(os.Stderr, resultDiagnosticsToCLI(ds))
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Results: resultDiagnosticsToCLI(ds), Error: err.Error()})
	return err
}
