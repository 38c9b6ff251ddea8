package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/pagelogic"
)

var flagReverse bool

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query compiled pages",
	Long:  "Run queries against the compiled page database. Scope ids are data-lid values; lines and columns are 1-based.",
}

func init() {
	queryCmd.AddCommand(pagesCmd)
	queryCmd.AddCommand(diagnosticsCmd)
	queryCmd.AddCommand(scopesCmd)
	queryCmd.AddCommand(valuesCmd)
	queryCmd.AddCommand(depsCmd)

	depsCmd.Flags().BoolVar(&flagReverse, "reverse", false, "list the values that read the given value instead")
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List compiled pages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("pages", func(q *pagelogic.QueryBuilder) (any, error) {
			pages, err := q.Pages()
			if err != nil {
				return nil, err
			}
			out := make([]CLIPage, 0, len(pages))
			for _, p := range pages {
				out = append(out, CLIPage{Path: p.Path, Scopes: p.ScopeCount, Errors: p.ErrorCount})
			}
			return out, nil
		})
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics <file>",
	Short: "List the compile diagnostics of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPage("diagnostics", args[0], func(q *pagelogic.QueryBuilder, file string) (any, error) {
			ds, err := q.Diagnostics(file)
			if err != nil {
				return nil, err
			}
			return diagnosticsToCLI(file, ds), nil
		})
	},
}

var scopesCmd = &cobra.Command{
	Use:   "scopes <file>",
	Short: "List the scopes of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPage("scopes", args[0], func(q *pagelogic.QueryBuilder, file string) (any, error) {
			scopes, err := q.Scopes(file)
			if err != nil {
				return nil, err
			}
			return scopesToCLI(scopes), nil
		})
	},
}

var valuesCmd = &cobra.Command{
	Use:   "values <file> <scope>",
	Short: "List the values of a scope",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := parseIntArg(args[1], "scope")
		if err != nil {
			return err
		}
		return withPage("values", args[0], func(q *pagelogic.QueryBuilder, file string) (any, error) {
			vs, err := q.Values(file, scope)
			if err != nil {
				return nil, err
			}
			return valuesToCLI(vs), nil
		})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <file> <scope> <key>",
	Short: "List the values a value reads",
	Long:  "Lists the values read by value <key> of scope <scope>. With --reverse, lists the values that read it.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := parseIntArg(args[1], "scope")
		if err != nil {
			return err
		}
		key := args[2]
		return withPage("deps", args[0], func(q *pagelogic.QueryBuilder, file string) (any, error) {
			var vs []pagelogic.ValueInfo
			if flagReverse {
				vs, err = q.Dependents(file, scope, key)
			} else {
				vs, err = q.Dependencies(file, scope, key)
			}
			if err != nil {
				return nil, err
			}
			return valuesToCLI(vs), nil
		})
	},
}

// withQuery opens the existing database and runs fn against it.
func withQuery(command string, fn func(q *pagelogic.QueryBuilder) (any, error)) error {
	if _, err := os.Stat(cfg.Database); os.IsNotExist(err) {
		return outputError(command, fmt.Errorf("database not found: %s (run 'pagelogic compile' first)", cfg.Database))
	}
	engine, done, err := openEngine(cfg)
	if err != nil {
		return outputError(command, err)
	}
	defer done()

	results, err := fn(engine.Query())
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(CLIResult{Command: command, Results: results})
}

// withPage is withQuery for commands addressing one compiled page.
func withPage(command, arg string, fn func(q *pagelogic.QueryBuilder, file string) (any, error)) error {
	file, err := resolveFilePath(arg)
	if err != nil {
		return err
	}
	return withQuery(command, func(q *pagelogic.QueryBuilder) (any, error) {
		p, err := q.Page(file)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("page not compiled: %s", file)
		}
		return fn(q, file)
	})
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}
