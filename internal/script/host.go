// Package script hosts Risor helper scripts. A script publishes functions
// with export("name", fn); each exported function becomes a global that page
// expressions can call.
package script

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/pagelogic/internal/expr"
)

// Ext is the file extension of helper scripts.
const Ext = ".risor"

// Host loads helper scripts and calls the functions they export.
type Host struct {
	scriptsDir string
	fsys       fs.FS
	logf       func(format string, args ...any)

	mu      sync.Mutex
	helpers map[string]*helper
}

type helper struct {
	name   string
	label  string
	source string
}

// Option configures a Host.
type Option func(*Host)

// WithFS loads scripts from fsys instead of from disk. Risor import
// statements resolve within the same filesystem.
func WithFS(fsys fs.FS) Option {
	return func(h *Host) { h.fsys = fsys }
}

// WithLogger sets the logger behind the log global of scripts.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(h *Host) {
		if logf != nil {
			h.logf = logf
		}
	}
}

// NewHost creates a Host reading scripts from scriptsDir.
func NewHost(scriptsDir string, opts ...Option) *Host {
	h := &Host{
		scriptsDir: scriptsDir,
		logf:       func(format string, args ...any) { fmt.Printf(format+"\n", args...) },
		helpers:    map[string]*helper{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LoadAll runs every script in the scripts directory (or filesystem) in
// lexical path order and collects their exports.
func (h *Host) LoadAll(ctx context.Context) error {
	fsys := h.fsys
	if fsys == nil {
		if h.scriptsDir == "" {
			return nil
		}
		if _, err := os.Stat(h.scriptsDir); os.IsNotExist(err) {
			return nil
		}
		fsys = os.DirFS(h.scriptsDir)
	}
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == Ext {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("script: listing scripts: %w", err)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := h.RunScript(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RunScript loads and runs one script, recording its exports.
func (h *Host) RunScript(ctx context.Context, scriptPath string) error {
	src, err := h.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return h.RunSource(ctx, scriptPath, src)
}

// RunSource runs script source under the given label, recording its
// exports.
func (h *Host) RunSource(ctx context.Context, label, source string) error {
	var exported []string
	export := object.NewBuiltin("export", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("export", 2, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("export: name must be a string, got %s", args[0].Type())
		}
		switch args[1].(type) {
		case *object.Function, *object.Builtin:
		default:
			return object.Errorf("export: %s must be a function, got %s", name.Value(), args[1].Type())
		}
		if !expr.IsIdentifierName(name.Value()) {
			return object.Errorf("export: invalid helper name %q", name.Value())
		}
		exported = append(exported, name.Value())
		return object.Nil
	})
	if _, err := h.eval(ctx, source, label, export, nil); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range exported {
		if prev, ok := h.helpers[name]; ok && prev.label != label {
			return fmt.Errorf("script: %s: helper %q already exported by %s", label, name, prev.label)
		}
		h.helpers[name] = &helper{name: name, label: label, source: source}
	}
	return nil
}

// Names returns the exported helper names, sorted.
func (h *Host) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.helpers))
	for name := range h.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Globals returns one expression global per exported helper.
func (h *Host) Globals() map[string]any {
	globals := map[string]any{}
	for _, name := range h.Names() {
		globals[name] = expr.Func(func(args ...any) (any, error) {
			return h.Call(context.Background(), name, args...)
		})
	}
	return globals
}

// Call invokes an exported helper. The defining script is evaluated again
// with the call appended, so helper scripts should only define functions at
// top level.
func (h *Host) Call(ctx context.Context, name string, args ...any) (any, error) {
	h.mu.Lock()
	hp, ok := h.helpers[name]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("script: no helper %q", name)
	}

	globals := make(map[string]any, len(args))
	params := make([]string, len(args))
	for i, a := range args {
		params[i] = fmt.Sprintf("__arg%d", i)
		globals[params[i]] = toRisor(a)
	}
	noop := object.NewBuiltin("export", func(context.Context, ...object.Object) object.Object { return object.Nil })
	src := hp.source + "\n" + name + "(" + strings.Join(params, ", ") + ")\n"
	res, err := h.eval(ctx, src, hp.label, noop, globals)
	if err != nil {
		return nil, err
	}
	return fromRisor(res), nil
}

func (h *Host) eval(ctx context.Context, source, label string, export *object.Builtin, extra map[string]any) (object.Object, error) {
	globals := map[string]any{
		"export": export,
		"log":    mustProxy(&logObject{logf: h.logf, label: label}),
	}
	for k, v := range extra {
		globals[k] = v
	}

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := h.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	res, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("script: %s: %w", label, err)
	}
	return res, nil
}

// buildImporter returns a Risor importer for the Host's script source, or
// nil when neither a filesystem nor a directory is configured.
func (h *Host) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	if h.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    h.fsys,
			Extensions:  []string{Ext},
		})
	}
	if h.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   h.scriptsDir,
			Extensions:  []string{Ext},
		})
	}
	return nil
}

// LoadScript reads a script. With a filesystem configured the path is
// relative to its root; otherwise relative paths are joined to the scripts
// directory.
func (h *Host) LoadScript(p string) (string, error) {
	if h.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(p), "/")
		data, err := fs.ReadFile(h.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("script: loading %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}
	fullPath := p
	if !filepath.IsAbs(p) {
		fullPath = filepath.Join(h.scriptsDir, p)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("script: loading %s: %w", fullPath, err)
	}
	return string(data), nil
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("script: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	logf  func(format string, args ...any)
	label string
}

func (l *logObject) Info(msg string)  { l.logf("[%s] INFO: %s", l.label, msg) }
func (l *logObject) Warn(msg string)  { l.logf("[%s] WARN: %s", l.label, msg) }
func (l *logObject) Error(msg string) { l.logf("[%s] ERROR: %s", l.label, msg) }
