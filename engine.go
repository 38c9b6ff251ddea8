package pagelogic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jward/pagelogic/internal/compiler"
	"github.com/jward/pagelogic/internal/descriptor"
	"github.com/jward/pagelogic/internal/expr"
	"github.com/jward/pagelogic/internal/parse"
	"github.com/jward/pagelogic/internal/reactive"
	"github.com/jward/pagelogic/internal/render"
	"github.com/jward/pagelogic/internal/script"
	"github.com/jward/pagelogic/internal/store"
)

// Engine orchestrates the pagelogic pipeline: page discovery, change
// detection, compilation, persistence and booting live pages.
type Engine struct {
	store      *store.Store
	host       *script.Host
	scriptsDir string
	scriptsFS  fs.FS
	extensions []string // nil means every extension the parser knows
	globals    []string
	logf       func(format string, args ...any)

	// useParallel enables the parallel compile pipeline.
	useParallel bool

	scriptsOnce sync.Once
	scriptsErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel compilation. When true (default),
// CompileFiles uses a worker pool for parsing and compiling, with a single
// writer committing batches to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithScriptsDir loads Risor helper scripts from dir.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithScriptsFS loads Risor helper scripts from fsys instead of from disk.
// This enables embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithExtensions restricts which files are treated as pages.
func WithExtensions(exts ...string) Option {
	return func(e *Engine) {
		e.extensions = append([]string(nil), exts...)
	}
}

// WithGlobals adds global names that expressions may use unqualified. The
// runtime must be given values for them; helper scripts register theirs
// automatically.
func WithGlobals(names ...string) Option {
	return func(e *Engine) {
		e.globals = append(e.globals, names...)
	}
}

// WithLogger sets the logger for runtime and script messages. Default
// log.Printf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(e *Engine) {
		if logf != nil {
			e.logf = logf
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pagelogic: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pagelogic: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		logf:        log.Printf,
		useParallel: true, // default to parallel compilation
	}
	for _, opt := range opts {
		opt(e)
	}

	hostOpts := []script.Option{script.WithLogger(e.logf)}
	if e.scriptsFS != nil {
		hostOpts = append(hostOpts, script.WithFS(e.scriptsFS))
	}
	e.host = script.NewHost(e.scriptsDir, hostOpts...)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// loadScripts runs the helper scripts once.
func (e *Engine) loadScripts(ctx context.Context) error {
	e.scriptsOnce.Do(func() {
		if err := e.host.LoadAll(ctx); err != nil {
			e.scriptsErr = fmt.Errorf("pagelogic: load scripts: %w", err)
		}
	})
	return e.scriptsErr
}

// Helpers returns the names of the loaded helper functions.
func (e *Engine) Helpers(ctx context.Context) ([]string, error) {
	if err := e.loadScripts(ctx); err != nil {
		return nil, err
	}
	return e.host.Names(), nil
}

// globalNames returns every name compiled pages treat as global.
func (e *Engine) globalNames() []string {
	names := append([]string(nil), e.globals...)
	return append(names, e.host.Names()...)
}

// compileHash identifies everything besides page source that affects
// compile output: helper scripts and global names.
func (e *Engine) compileHash() string {
	sources := map[string]string{
		"globals": strings.Join(sortedCopy(e.globalNames()), ","),
	}
	fsys := e.scriptsFS
	if fsys == nil && e.scriptsDir != "" {
		fsys = os.DirFS(e.scriptsDir)
	}
	if fsys != nil {
		fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(p, script.Ext) {
				if data, err := fs.ReadFile(fsys, p); err == nil {
					sources["script:"+p] = string(data)
				}
			}
			return nil
		})
	}
	return store.SourcesHash(sources)
}

// ScriptsChanged reports whether the helper scripts or global names differ
// from what was used to build the current database. When true, the next
// CompileFiles recompiles every page regardless of content hashes.
func (e *Engine) ScriptsChanged() bool {
	stored, err := e.store.GetMetadata("compile_hash")
	if err != nil || stored == "" {
		return true
	}
	return e.compileHash() != stored
}

func (e *Engine) storeCompileHash() {
	_ = e.store.SetMetadata("compile_hash", e.compileHash())
}

// isPage reports whether path is a page the Engine compiles.
func (e *Engine) isPage(path string) bool {
	if e.extensions == nil {
		_, ok := parse.LanguageForFile(path)
		return ok
	}
	for _, ext := range e.extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// CompileSource compiles page source in memory. Front-end problems become
// diagnostics: malformed expressions are errors, malformed markup warnings.
// The returned error is reserved for failures other than diagnostics.
func (e *Engine) CompileSource(ctx context.Context, file string, src []byte) (*Result, error) {
	if err := e.loadScripts(ctx); err != nil {
		return nil, err
	}
	return compileSource(ctx, file, src, e.globalNames())
}

func compileSource(ctx context.Context, file string, src []byte, globals []string) (*Result, error) {
	doc, err := parse.ParseHTML(ctx, file, src)
	if err != nil {
		return nil, fmt.Errorf("pagelogic: parse %s: %w", file, err)
	}
	return compiler.Compile(doc.Root,
		compiler.WithFile(file),
		compiler.WithGlobals(globals...),
		compiler.WithDiagnostics(problemDiagnostics(doc.Problems)...),
	), nil
}

func problemDiagnostics(ps []parse.Problem) []Diagnostic {
	out := make([]Diagnostic, 0, len(ps))
	for _, p := range ps {
		d := Diagnostic{Type: compiler.SeverityWarning, Code: compiler.CodeBadMarkup, Msg: p.Msg, Loc: p.Loc}
		if p.Kind == parse.ExprProblem {
			d.Type = compiler.SeverityError
			d.Code = compiler.CodeExprSyntax
		}
		out = append(out, d)
	}
	return out
}

// Boot compiles the page at path and binds it to a live reactive context.
// The page is refreshed once, so its markup reflects every initial value.
func (e *Engine) Boot(ctx context.Context, path string) (*Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pagelogic: boot: %w", err)
	}
	return e.BootSource(ctx, path, src)
}

// BootSource is Boot over in-memory source.
func (e *Engine) BootSource(ctx context.Context, file string, src []byte) (*Page, error) {
	res, err := e.CompileSource(ctx, file, src)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("pagelogic: boot %s: %w", file, err)
	}
	rctx := reactive.New(res.Descriptor,
		reactive.WithGlobals(e.host.Globals()),
		reactive.WithLogger(e.logf),
	)
	p, err := render.Bind(res.Root, rctx)
	if err != nil {
		return nil, fmt.Errorf("pagelogic: boot %s: %w", file, err)
	}
	p.Refresh()
	return p, nil
}

// CompileFiles compiles the given page paths and stores the results. When
// WithParallel is enabled, uses a worker pool with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each page:
// 1. Skip non-page files
// 2. Skip unchanged pages (same content hash, same scripts and globals)
// 3. Delete stale data, insert the page record
// 4. Parse and compile, writing scopes, values, refs, diagnostics and the
// descriptor
//
// Pages with compile errors are stored with their diagnostics; they are not
// errors of CompileFiles. Errors on individual files are collected and
// processing continues.
func (e *Engine) CompileFiles(ctx context.Context, paths []string) error {
	if err := e.loadScripts(ctx); err != nil {
		return err
	}
	force := e.ScriptsChanged()
	var err error
	if e.useParallel {
		err = e.compileFilesParallel(ctx, paths, force)
	} else {
		err = e.compileFilesSerial(ctx, paths, force)
	}
	// Per-file failures are retried by their own hash; only an aborted pass
	// leaves the stored compile hash untouched.
	if ctx.Err() == nil {
		e.storeCompileHash()
	}
	return err
}

func (e *Engine) compileFilesSerial(ctx context.Context, paths []string, force bool) error {
	var errs []error
	for _, path := range paths {
		item, skip, err := e.preparePage(path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		stats, err := e.compilePage(ctx, item, e.store)
		if err != nil {
			errs = append(errs, fmt.Errorf("compile %s: %w", path, err))
			continue
		}
		if err := e.store.UpdatePageStats(item.pageID, stats.scopes, stats.errors); err != nil {
			errs = append(errs, fmt.Errorf("compile %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("compiling had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// workItem holds everything a compile worker needs.
type workItem struct {
	path   string
	src    []byte
	pageID int64
	batch  *store.BatchedStore
}

type pageStats struct {
	scopes int
	errors int
}

// preparePage does the serial work for a single page: hash check, cleanup,
// page record. skip=true means the page is unchanged or not a page.
func (e *Engine) preparePage(path string, force bool) (workItem, bool, error) {
	if !e.isPage(path) {
		return workItem{}, true, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(src)

	existing, err := e.store.PageByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup page: %w", err)
	}
	if existing != nil && existing.Hash == hash && !force {
		return workItem{}, true, nil // unchanged
	}
	if existing != nil {
		if err := e.store.DeletePage(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	pageID, err := e.store.InsertPage(&store.Page{
		Path:         path,
		Hash:         hash,
		LastCompiled: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert page: %w", err)
	}
	return workItem{path: path, src: src, pageID: pageID}, false, nil
}

// compilePage compiles one page and writes the result to ds.
func (e *Engine) compilePage(ctx context.Context, item workItem, ds store.DataStore) (pageStats, error) {
	res, err := compileSource(ctx, item.path, item.src, e.globalNames())
	if err != nil {
		return pageStats{}, err
	}
	return writeResult(ds, item.pageID, res)
}

// writeResult stores a compile result. Scopes are written parents first and
// values before the refs between them, so IDs from ds can be used directly.
func writeResult(ds store.DataStore, pageID int64, res *Result) (pageStats, error) {
	var stats pageStats
	for _, d := range res.Diagnostics {
		if d.IsError() {
			stats.errors++
		}
		if _, err := ds.InsertDiagnostic(&store.Diagnostic{
			PageID:   pageID,
			Severity: string(d.Type),
			Code:     string(d.Code),
			Message:  d.Msg,
			Line:     d.Loc.Line,
			Col:      d.Loc.Col,
		}); err != nil {
			return stats, err
		}
	}
	if res.Scope == nil {
		return stats, nil
	}

	scopeIDs := map[*compiler.Scope]int64{}
	valueIDs := map[*compiler.Value]int64{}
	var werr error
	compiler.Walk(res.Scope, func(s *compiler.Scope) {
		if werr != nil {
			return
		}
		stats.scopes++
		row := &store.Scope{PageID: pageID, LID: s.ID, Name: s.Name, Isolate: s.Isolate}
		if s.Node != nil {
			row.Tag = s.Node.Tag
			row.Line, row.Col = s.Node.Loc.Line, s.Node.Loc.Col
		}
		if s.Parent != nil {
			parentID := scopeIDs[s.Parent]
			row.ParentScopeID = &parentID
		}
		id, err := ds.InsertScope(row)
		if err != nil {
			werr = err
			return
		}
		scopeIDs[s] = id
		for _, k := range s.Keys {
			v := s.Values[k]
			vrow := &store.Value{PageID: pageID, ScopeID: id, Key: k, Line: v.Loc.Line, Col: v.Loc.Col}
			if n := v.Expr(); n != nil {
				vrow.Kind = store.KindExpression
				vrow.Source = expr.Format(n)
			} else {
				vrow.Kind = store.KindLiteral
				b, err := json.Marshal(v.Val)
				if err != nil {
					werr = fmt.Errorf("value %s: %w", k, err)
					return
				}
				vrow.Source = string(b)
			}
			vid, err := ds.InsertValue(vrow)
			if err != nil {
				werr = err
				return
			}
			valueIDs[v] = vid
		}
	})
	if werr != nil {
		return stats, werr
	}

	for _, v := range compiler.Values(res.Scope) {
		for i, target := range v.Targets {
			tid, ok := valueIDs[target]
			if !ok {
				continue
			}
			if _, err := ds.InsertRef(&store.Ref{
				ValueID:       valueIDs[v],
				TargetValueID: tid,
				Accessor:      expr.Format(v.Refs[i]),
			}); err != nil {
				return stats, err
			}
		}
	}

	if res.Descriptor != nil {
		js, err := descriptor.Encode(res.Descriptor)
		if err != nil {
			return stats, err
		}
		if err := ds.PutDescriptor(pageID, string(js)); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// RemovePage deletes a stored page and its data. Unknown paths are ignored.
func (e *Engine) RemovePage(path string) error {
	p, err := e.store.PageByPath(path)
	if err != nil {
		return fmt.Errorf("pagelogic: remove %s: %w", path, err)
	}
	if p == nil {
		return nil
	}
	if err := e.store.DeletePage(p.ID); err != nil {
		return fmt.Errorf("pagelogic: remove %s: %w", path, err)
	}
	return nil
}

// skipDirs are directories excluded from page discovery.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// CompileDirectory walks root and compiles every page. If root is inside a
// git repository, uses git ls-files to respect .gitignore. Falls back to a
// filesystem walk (skipping hidden dirs, node_modules and vendor) if git is
// unavailable.
//
// Stored pages under root that no longer exist on disk are removed.
func (e *Engine) CompileDirectory(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("pagelogic: resolve %s: %w", root, err)
	}
	root = abs
	paths, err := e.ListPages(root)
	if err != nil {
		return err
	}
	if err := e.pruneDeleted(root, paths); err != nil {
		return err
	}
	return e.CompileFiles(ctx, paths)
}

// pruneDeleted removes stored pages under root that are not in listed.
func (e *Engine) pruneDeleted(root string, listed []string) error {
	stored, err := e.store.Pages()
	if err != nil {
		return fmt.Errorf("pagelogic: prune: %w", err)
	}
	keep := make(map[string]bool, len(listed))
	for _, p := range listed {
		keep[p] = true
	}
	prefix := filepath.Clean(root) + string(filepath.Separator)
	for _, p := range stored {
		if keep[p.Path] || !strings.HasPrefix(p.Path, prefix) {
			continue
		}
		if err := e.store.DeletePage(p.ID); err != nil {
			return fmt.Errorf("pagelogic: prune %s: %w", p.Path, err)
		}
	}
	return nil
}

// ListPages returns the pages under root in lexical order.
func (e *Engine) ListPages(root string) ([]string, error) {
	paths, err := e.gitListFiles(root)
	if err != nil {
		// Not a git repo or git not available, fall back to walk.
		paths, err = e.walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) pages under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if e.isPage(absPath) {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers pages by walking the filesystem.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.isPage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
