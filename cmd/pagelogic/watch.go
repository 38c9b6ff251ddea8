package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/pagelogic"
	"github.com/jward/pagelogic/internal/script"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Compile pages and recompile them as they change",
	Long:  "Compiles every page under dir, then watches it and recompiles changed pages once writes settle. A change to a helper script reloads the helpers and recompiles everything.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(compileContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := newPageWatcher(targetDir, cfg.Scripts, cfg.Watch.Debounce, cfg.IsPage,
		func() (*pagelogic.Engine, func(), error) { return openEngine(cfg) }, os.Stderr)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

// pageWatcher recompiles pages under root as they change on disk.
type pageWatcher struct {
	root     string
	scripts  string
	debounce time.Duration
	isPage   func(string) bool
	open     func() (*pagelogic.Engine, func(), error)
	out      io.Writer

	fs     *fsnotify.Watcher
	engine *pagelogic.Engine
	done   func()
}

func newPageWatcher(root, scripts string, debounce time.Duration, isPage func(string) bool,
	open func() (*pagelogic.Engine, func(), error), out io.Writer) (*pageWatcher, error) {
	engine, done, err := open()
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		done()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &pageWatcher{
		root:     root,
		scripts:  scripts,
		debounce: debounce,
		isPage:   isPage,
		open:     open,
		out:      out,
		fs:       fsw,
		engine:   engine,
		done:     done,
	}, nil
}

// Close stops watching and closes the engine.
func (w *pageWatcher) Close() error {
	err := w.fs.Close()
	w.done()
	return err
}

// Run compiles everything once, then processes file events until ctx is
// done.
func (w *pageWatcher) Run(ctx context.Context) error {
	w.compileAll(ctx)

	if err := w.watchDirRecursive(w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}
	if w.scripts != "" && !w.under(w.scripts, w.root) {
		if _, err := os.Stat(w.scripts); err == nil {
			if err := w.watchDirRecursive(w.scripts); err != nil {
				return fmt.Errorf("watching %s: %w", w.scripts, err)
			}
		}
	}
	fmt.Fprintf(w.out, "Watching %s\n", w.root)

	pending := map[string]bool{}
	scriptsDirty := false
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDirRecursive(event.Name); err != nil {
						fmt.Fprintf(w.out, "watch %s: %v\n", event.Name, err)
					}
					continue
				}
			}
			switch {
			case w.isScript(event.Name):
				scriptsDirty = true
			case w.isPage(event.Name):
				pending[event.Name] = true
			default:
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.out, "watcher error: %v\n", err)

		case <-fire:
			fire = nil
			if scriptsDirty {
				w.reload(ctx)
			} else {
				w.apply(ctx, sortedKeys(pending))
			}
			pending = map[string]bool{}
			scriptsDirty = false
		}
	}
}

// apply recompiles the changed pages and drops the deleted ones.
func (w *pageWatcher) apply(ctx context.Context, paths []string) {
	var changed []string
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := w.engine.RemovePage(p); err != nil {
				fmt.Fprintf(w.out, "remove %s: %v\n", p, err)
				continue
			}
			fmt.Fprintf(w.out, "Removed %s\n", p)
			continue
		}
		changed = append(changed, p)
	}
	if len(changed) == 0 {
		return
	}
	if err := w.engine.CompileFiles(ctx, changed); err != nil {
		fmt.Fprintf(w.out, "compile: %v\n", err)
	}
	w.report(changed)
}

// reload reopens the engine so helper scripts are loaded again, then
// recompiles every page.
func (w *pageWatcher) reload(ctx context.Context) {
	engine, done, err := w.open()
	if err != nil {
		fmt.Fprintf(w.out, "reload scripts: %v\n", err)
		return
	}
	w.done()
	w.engine, w.done = engine, done
	fmt.Fprintln(w.out, "Scripts changed, recompiling")
	w.compileAll(ctx)
}

func (w *pageWatcher) compileAll(ctx context.Context) {
	if err := w.engine.CompileDirectory(ctx, w.root); err != nil {
		fmt.Fprintf(w.out, "compile: %v\n", err)
	}
	paths, err := w.engine.ListPages(w.root)
	if err != nil {
		fmt.Fprintf(w.out, "list pages: %v\n", err)
		return
	}
	w.report(paths)
}

// report prints the diagnostics of each page and a one-line status.
func (w *pageWatcher) report(paths []string) {
	q := w.engine.Query()
	for _, path := range paths {
		p, err := q.Page(path)
		if err != nil || p == nil {
			continue
		}
		ds, err := q.Diagnostics(path)
		if err != nil {
			fmt.Fprintf(w.out, "diagnostics %s: %v\n", path, err)
			continue
		}
		formatDiagnosticsText(w.out, diagnosticsToCLI(path, ds))
		status := "ok"
		if p.ErrorCount > 0 {
			status = fmt.Sprintf("%d error(s)", p.ErrorCount)
		}
		fmt.Fprintf(w.out, "Compiled %s: %s\n", path, status)
	}
}

func (w *pageWatcher) isScript(path string) bool {
	return w.scripts != "" && strings.HasSuffix(path, script.Ext) && w.under(path, w.scripts)
}

// under reports whether path is dir or inside it.
func (w *pageWatcher) under(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// watchDirRecursive adds a directory and its subdirectories to the watch list
func (w *pageWatcher) watchDirRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		return nil
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
